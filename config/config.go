package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every configuration parameter of the engine, loaded once at
// startup and threaded through the services explicitly.
type Config struct {
	DatabaseURL  string
	RedisURL     string
	JWTSecretKey string
	ServerPort   int

	// Saturn dispatch.
	SaturnMaxFailures  int
	CompileTopic       string
	ExecuteTopic       string
	CompileOrderingKey string
	ExecuteOrderingKey string

	// Scrimmage limits.
	MaxMapsPerScrimmage int
	AutoscrimBestOf     int

	// When false the dispatcher is a no-op and blob writes are skipped.
	EnableActions bool

	// Blob storage (Cloudflare R2).
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2SecureBucket    string
	R2PublicBucket    string

	// Bracket service.
	ChallongeBaseURL string
	ChallongeAPIKey  string
}

// Load reads configuration from environment variables. A .env file is
// loaded first when present; its absence is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "localhost:6379"
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	port, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	maxFailures, err := intEnv("SATURN_MAX_FAILURES", 3)
	if err != nil {
		return nil, err
	}
	if maxFailures < 1 {
		return nil, fmt.Errorf("SATURN_MAX_FAILURES must be positive, got %d", maxFailures)
	}

	maxMaps, err := intEnv("MAX_MAPS_PER_SCRIMMAGE", 10)
	if err != nil {
		return nil, err
	}

	bestOf, err := intEnv("AUTOSCRIM_BEST_OF", 3)
	if err != nil {
		return nil, err
	}
	if bestOf < 1 || bestOf%2 == 0 {
		return nil, fmt.Errorf("AUTOSCRIM_BEST_OF must be a positive odd number, got %d", bestOf)
	}

	enableActions, err := boolEnv("ENABLE_ACTIONS", true)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:  dbURL,
		RedisURL:     redisURL,
		JWTSecretKey: jwtKey,
		ServerPort:   port,

		SaturnMaxFailures:  maxFailures,
		CompileTopic:       stringEnv("COMPILE_TOPIC", "compile"),
		ExecuteTopic:       stringEnv("EXECUTE_TOPIC", "execute"),
		CompileOrderingKey: stringEnv("COMPILE_ORDERING_KEY", "compile"),
		ExecuteOrderingKey: stringEnv("EXECUTE_ORDERING_KEY", "execute"),

		MaxMapsPerScrimmage: maxMaps,
		AutoscrimBestOf:     bestOf,
		EnableActions:       enableActions,

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2SecureBucket:    stringEnv("R2_SECURE_BUCKET", "secure"),
		R2PublicBucket:    stringEnv("R2_PUBLIC_BUCKET", "public"),

		ChallongeBaseURL: stringEnv("CHALLONGE_BASE_URL", "https://api.challonge.com/v1"),
		ChallongeAPIKey:  os.Getenv("CHALLONGE_API_KEY"),
	}

	if cfg.EnableActions {
		if cfg.R2AccountID == "" || cfg.R2AccessKeyID == "" || cfg.R2SecretAccessKey == "" {
			return nil, fmt.Errorf("R2 credentials are required when ENABLE_ACTIONS is true")
		}
	}

	return cfg, nil
}

func stringEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return n, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return b, nil
}
