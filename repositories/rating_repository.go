package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/scrimlab/match-engine/glicko2"
	"github.com/scrimlab/match-engine/models"
)

var ErrRatingNotFound = errors.New("rating not found")

type RatingRepository interface {
	// Create inserts an immutable rating snapshot and fills ID/CreatedAt.
	Create(ctx context.Context, exec SQLExecutor, rating *models.Rating) error

	GetByID(ctx context.Context, exec SQLExecutor, id int64) (*models.Rating, error)

	// InitialForTeam returns the team's n=0 rating, creating the default
	// snapshot the first time it is asked for.
	InitialForTeam(ctx context.Context, exec SQLExecutor, teamID int64) (*models.Rating, error)
}

type postgresRatingRepository struct {
	db *sql.DB
}

func NewPostgresRatingRepository(db *sql.DB) RatingRepository {
	return &postgresRatingRepository{db: db}
}

func (r *postgresRatingRepository) exec(exec SQLExecutor) SQLExecutor {
	if exec == nil {
		return r.db
	}
	return exec
}

func (r *postgresRatingRepository) Create(ctx context.Context, exec SQLExecutor, rating *models.Rating) error {
	query := `
		INSERT INTO ratings (team_id, mean, deviation, volatility, n)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	err := r.exec(exec).QueryRowContext(ctx, query,
		rating.TeamID, rating.Mean, rating.Deviation, rating.Volatility, rating.N,
	).Scan(&rating.ID, &rating.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create rating for team %d: %w", rating.TeamID, err)
	}
	return nil
}

const ratingColumns = `id, team_id, mean, deviation, volatility, n, created_at`

func scanRating(row *sql.Row) (*models.Rating, error) {
	var rt models.Rating
	err := row.Scan(&rt.ID, &rt.TeamID, &rt.Mean, &rt.Deviation, &rt.Volatility, &rt.N, &rt.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

func (r *postgresRatingRepository) GetByID(ctx context.Context, exec SQLExecutor, id int64) (*models.Rating, error) {
	query := `SELECT ` + ratingColumns + ` FROM ratings WHERE id = $1`
	rt, err := scanRating(r.exec(exec).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRatingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rating %d: %w", id, err)
	}
	return rt, nil
}

func (r *postgresRatingRepository) InitialForTeam(ctx context.Context, exec SQLExecutor, teamID int64) (*models.Rating, error) {
	query := `SELECT ` + ratingColumns + ` FROM ratings WHERE team_id = $1 AND n = 0 ORDER BY id LIMIT 1`
	rt, err := scanRating(r.exec(exec).QueryRowContext(ctx, query, teamID))
	if errors.Is(err, sql.ErrNoRows) {
		initial := glicko2.Default()
		created := &models.Rating{
			TeamID:     teamID,
			Mean:       initial.Mean,
			Deviation:  initial.Deviation,
			Volatility: initial.Volatility,
			N:          0,
		}
		if err := r.Create(ctx, exec, created); err != nil {
			return nil, err
		}
		return created, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get initial rating for team %d: %w", teamID, err)
	}
	return rt, nil
}
