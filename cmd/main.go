package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/scrimlab/match-engine/challonge"
	"github.com/scrimlab/match-engine/config"
	"github.com/scrimlab/match-engine/db"
	"github.com/scrimlab/match-engine/handlers"
	"github.com/scrimlab/match-engine/live"
	"github.com/scrimlab/match-engine/repositories"
	"github.com/scrimlab/match-engine/routes"
	"github.com/scrimlab/match-engine/saturn"
	"github.com/scrimlab/match-engine/services"
	"github.com/scrimlab/match-engine/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := run(logger); err != nil {
		logger.Error("engine exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort), slog.Bool("actions", cfg.EnableActions))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	var dispatcher saturn.Dispatcher
	var secureBucket, publicBucket storage.FileUploader
	if cfg.EnableActions {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to ping redis: %w", err)
		}
		defer redisClient.Close()
		dispatcher = saturn.NewRedisDispatcher(redisClient)

		if secureBucket, err = storage.NewR2Uploader(ctx, storage.R2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2SecureBucket,
		}); err != nil {
			return fmt.Errorf("failed to initialize secure bucket: %w", err)
		}
		if publicBucket, err = storage.NewR2Uploader(ctx, storage.R2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2PublicBucket,
		}); err != nil {
			return fmt.Errorf("failed to initialize public bucket: %w", err)
		}
	} else {
		dispatcher = saturn.NewNoopDispatcher()
		secureBucket = storage.NewNoopUploader()
		publicBucket = storage.NewNoopUploader()
	}
	episodeRepo := repositories.NewPostgresEpisodeRepository(dbConn)
	teamRepo := repositories.NewPostgresTeamRepository(dbConn)
	ratingRepo := repositories.NewPostgresRatingRepository(dbConn)
	submissionRepo := repositories.NewPostgresSubmissionRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	scrimmageRepo := repositories.NewPostgresScrimmageRepository(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	txRunner := db.NewTxRunner(dbConn)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	gateway := challonge.NewClient(cfg.ChallongeBaseURL, cfg.ChallongeAPIKey)

	ratingService := services.NewRatingService(logger, txRunner, matchRepo, ratingRepo, teamRepo)
	matchService := services.NewMatchService(cfg, logger, txRunner, matchRepo, dispatcher, ratingService, publicBucket)
	submissionService := services.NewSubmissionService(cfg, logger, txRunner, episodeRepo, submissionRepo, dispatcher, secureBucket)
	scrimmageService := services.NewScrimmageService(cfg, logger, txRunner, scrimmageRepo, teamRepo, submissionRepo, episodeRepo, matchService, rng)
	autoscrimService := services.NewAutoScrimService(cfg, logger, txRunner, teamRepo, episodeRepo, matchService, rng)
	tournamentService := services.NewTournamentService(cfg, logger, txRunner, tournamentRepo, teamRepo, matchRepo, matchService, gateway)
	logger.Info("services initialized")

	scheduler, err := startAutoscrimScheduler(ctx, logger, episodeRepo, autoscrimService)
	if err != nil {
		return err
	}

	hub := live.NewHub(logger)
	router := routes.InitRoutes(routes.Handlers{
		Submissions: handlers.NewSubmissionHandler(logger, submissionService, hub),
		Matches:     handlers.NewMatchHandler(logger, matchService, hub),
		Scrimmages:  handlers.NewScrimmageHandler(logger, scrimmageService),
		Tournaments: handlers.NewTournamentHandler(logger, tournamentService),
		AutoScrim:   handlers.NewAutoScrimHandler(logger, autoscrimService),
		Live:        handlers.NewLiveHandler(hub),
	}, cfg.JWTSecretKey)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting server", slog.String("address", server.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if scheduler != nil {
			if err := scheduler.Shutdown(); err != nil {
				logger.Error("failed to stop autoscrim scheduler", slog.Any("error", err))
			}
		}
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

const autoscrimRefreshInterval = 10 * time.Minute

// startAutoscrimScheduler registers one cron job per episode that has an
// autoscrim schedule and is inside its active window. Episodes enter and
// leave their windows while the server runs, so the job set is rebuilt
// every refresh interval.
func startAutoscrimScheduler(ctx context.Context, logger *slog.Logger, episodes repositories.EpisodeRepository, autoscrim *services.AutoScrimService) (gocron.Scheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	rebuild := func(ctx context.Context) error {
		active, err := episodes.ListAutoscrimEpisodes(ctx, time.Now())
		if err != nil {
			return fmt.Errorf("failed to list autoscrim episodes: %w", err)
		}
		scheduler.RemoveByTags("autoscrim")
		for _, episode := range active {
			episodeID := episode.ShortID
			_, err := scheduler.NewJob(
				gocron.CronJob(*episode.AutoscrimCron, false),
				gocron.NewTask(func() {
					if _, err := autoscrim.Run(context.Background(), episodeID); err != nil {
						logger.Error("autoscrim run failed", slog.String("episode_id", episodeID), slog.Any("error", err))
					}
				}),
				gocron.WithTags("autoscrim"),
			)
			if err != nil {
				return fmt.Errorf("failed to schedule autoscrim for episode %q: %w", episodeID, err)
			}
			logger.Info("autoscrim scheduled", slog.String("episode_id", episodeID), slog.String("cron", *episode.AutoscrimCron))
		}
		return nil
	}

	if err := rebuild(ctx); err != nil {
		return nil, err
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(autoscrimRefreshInterval),
		gocron.NewTask(func() {
			if err := rebuild(context.Background()); err != nil {
				logger.Error("autoscrim schedule refresh failed", slog.Any("error", err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule autoscrim refresh: %w", err)
	}
	scheduler.Start()
	return scheduler, nil
}
