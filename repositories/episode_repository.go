package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/scrimlab/match-engine/models"
)

var ErrEpisodeNotFound = errors.New("episode not found")

type EpisodeRepository interface {
	GetByShortID(ctx context.Context, shortID string) (*models.Episode, error)

	// IsFrozen combines the episode-level freeze state with any tournament
	// whose submission-freeze window contains now.
	IsFrozen(ctx context.Context, shortID string, now time.Time) (bool, error)

	ListPublicMapNames(ctx context.Context, episodeID string) ([]string, error)

	// ListAutoscrimEpisodes returns episodes currently inside their
	// competition window that carry an autoscrim cron spec.
	ListAutoscrimEpisodes(ctx context.Context, now time.Time) ([]*models.Episode, error)
}

type postgresEpisodeRepository struct {
	db *sql.DB
}

func NewPostgresEpisodeRepository(db *sql.DB) EpisodeRepository {
	return &postgresEpisodeRepository{db: db}
}

const episodeColumns = `short_id, name, language, registration, game_release, game_archive, submission_frozen, autoscrim_cron`

func scanEpisode(row interface{ Scan(...interface{}) error }) (*models.Episode, error) {
	var e models.Episode
	err := row.Scan(
		&e.ShortID,
		&e.Name,
		&e.Language,
		&e.Registration,
		&e.GameRelease,
		&e.GameArchive,
		&e.SubmissionFrozen,
		&e.AutoscrimCron,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *postgresEpisodeRepository) GetByShortID(ctx context.Context, shortID string) (*models.Episode, error) {
	query := `SELECT ` + episodeColumns + ` FROM episodes WHERE short_id = $1`
	e, err := scanEpisode(r.db.QueryRowContext(ctx, query, shortID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEpisodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get episode %q: %w", shortID, err)
	}
	return e, nil
}

func (r *postgresEpisodeRepository) IsFrozen(ctx context.Context, shortID string, now time.Time) (bool, error) {
	episode, err := r.GetByShortID(ctx, shortID)
	if err != nil {
		return false, err
	}
	if episode.Frozen(now) {
		return true, nil
	}

	query := `
		SELECT EXISTS (
			SELECT 1 FROM tournaments
			WHERE episode_id = $1
			  AND submission_freeze <= $2
			  AND $2 < submission_unfreeze
		)`
	var frozen bool
	if err := r.db.QueryRowContext(ctx, query, shortID, now).Scan(&frozen); err != nil {
		return false, fmt.Errorf("failed to check tournament freeze for episode %q: %w", shortID, err)
	}
	return frozen, nil
}

func (r *postgresEpisodeRepository) ListPublicMapNames(ctx context.Context, episodeID string) ([]string, error) {
	query := `SELECT name FROM maps WHERE episode_id = $1 AND is_public ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query, episodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list public maps for episode %q: %w", episodeID, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *postgresEpisodeRepository) ListAutoscrimEpisodes(ctx context.Context, now time.Time) ([]*models.Episode, error) {
	query := `
		SELECT ` + episodeColumns + `
		FROM episodes
		WHERE autoscrim_cron IS NOT NULL
		  AND game_release <= $1 AND $1 < game_archive
		ORDER BY short_id`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list autoscrim episodes: %w", err)
	}
	defer rows.Close()

	var episodes []*models.Episode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, e)
	}
	return episodes, rows.Err()
}
