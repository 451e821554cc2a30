package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/scrimlab/match-engine/models"
)

var (
	ErrTeamNotFound    = errors.New("team not found")
	ErrProfileNotFound = errors.New("team profile not found")
)

// TeamStanding is one row of the rating-ordered scrimmage-ready listing:
// a regular team together with its current rating and active submission.
type TeamStanding struct {
	TeamID       int64
	TeamName     string
	SubmissionID int64
	RatingMean   float64
}

type TeamRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Team, error)

	GetProfile(ctx context.Context, exec SQLExecutor, teamID int64) (*models.TeamProfile, error)

	// GetProfileForUpdate row-locks the profile, serializing concurrent
	// rating finalizations on the same team chain.
	GetProfileForUpdate(ctx context.Context, exec SQLExecutor, teamID int64) (*models.TeamProfile, error)

	UpdateProfileRating(ctx context.Context, exec SQLExecutor, teamID, ratingID int64) error

	// ListScrimmageReady returns the episode's regular teams that have an
	// accepted submission, ordered by rating mean descending (ties by id).
	ListScrimmageReady(ctx context.Context, episodeID string) ([]TeamStanding, error)
}

type postgresTeamRepository struct {
	db *sql.DB
}

func NewPostgresTeamRepository(db *sql.DB) TeamRepository {
	return &postgresTeamRepository{db: db}
}

func (r *postgresTeamRepository) GetByID(ctx context.Context, id int64) (*models.Team, error) {
	query := `SELECT id, episode_id, name, status, created_at FROM teams WHERE id = $1`
	var t models.Team
	err := r.db.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.EpisodeID, &t.Name, &t.Status, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team %d: %w", id, err)
	}
	return &t, nil
}

func (r *postgresTeamRepository) getProfile(ctx context.Context, exec SQLExecutor, teamID int64, forUpdate bool) (*models.TeamProfile, error) {
	lock := ""
	if forUpdate {
		lock = " FOR UPDATE OF p"
	}
	query := `
		SELECT p.team_id, p.rating_id, p.ranked_scrim_policy, p.unranked_scrim_policy,
		       r.id, r.team_id, r.mean, r.deviation, r.volatility, r.n, r.created_at
		FROM team_profiles p
		JOIN ratings r ON r.id = p.rating_id
		WHERE p.team_id = $1` + lock

	var p models.TeamProfile
	var rating models.Rating
	err := exec.QueryRowContext(ctx, query, teamID).Scan(
		&p.TeamID, &p.RatingID, &p.RankedScrimPolicy, &p.UnrankedScrimPolicy,
		&rating.ID, &rating.TeamID, &rating.Mean, &rating.Deviation, &rating.Volatility, &rating.N, &rating.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile for team %d: %w", teamID, err)
	}
	p.Rating = &rating
	return &p, nil
}

func (r *postgresTeamRepository) GetProfile(ctx context.Context, exec SQLExecutor, teamID int64) (*models.TeamProfile, error) {
	if exec == nil {
		exec = r.db
	}
	return r.getProfile(ctx, exec, teamID, false)
}

func (r *postgresTeamRepository) GetProfileForUpdate(ctx context.Context, exec SQLExecutor, teamID int64) (*models.TeamProfile, error) {
	return r.getProfile(ctx, exec, teamID, true)
}

func (r *postgresTeamRepository) UpdateProfileRating(ctx context.Context, exec SQLExecutor, teamID, ratingID int64) error {
	query := `UPDATE team_profiles SET rating_id = $1 WHERE team_id = $2`
	result, err := exec.ExecContext(ctx, query, ratingID, teamID)
	if err != nil {
		return fmt.Errorf("failed to update rating for team %d: %w", teamID, err)
	}
	return checkAffectedRows(result, ErrProfileNotFound)
}

func (r *postgresTeamRepository) ListScrimmageReady(ctx context.Context, episodeID string) ([]TeamStanding, error) {
	query := `
		SELECT t.id, t.name, sub.id, rt.mean
		FROM teams t
		JOIN team_profiles p ON p.team_id = t.id
		JOIN ratings rt ON rt.id = p.rating_id
		JOIN LATERAL (
			SELECT s.id FROM submissions s
			WHERE s.team_id = t.id AND s.accepted
			ORDER BY s.id DESC
			LIMIT 1
		) sub ON TRUE
		WHERE t.episode_id = $1 AND t.status = $2
		ORDER BY rt.mean DESC, t.id ASC`

	rows, err := r.db.QueryContext(ctx, query, episodeID, models.TeamStatusRegular)
	if err != nil {
		return nil, fmt.Errorf("failed to list scrimmage-ready teams for episode %q: %w", episodeID, err)
	}
	defer rows.Close()

	var standings []TeamStanding
	for rows.Next() {
		var s TeamStanding
		if err := rows.Scan(&s.TeamID, &s.TeamName, &s.SubmissionID, &s.RatingMean); err != nil {
			return nil, err
		}
		standings = append(standings, s)
	}
	return standings, rows.Err()
}
