package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/scrimlab/match-engine/models"
)

var (
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrRoundNotFound      = errors.New("tournament round not found")
)

type TournamentRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Tournament, error)

	GetRound(ctx context.Context, id int64) (*models.TournamentRound, error)

	SetExternalIDs(ctx context.Context, exec SQLExecutor, tournamentID int64, private, public string) error

	SetRoundExternalID(ctx context.Context, exec SQLExecutor, roundID int64, externalRound int) error
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) exec(exec SQLExecutor) SQLExecutor {
	if exec == nil {
		return r.db
	}
	return exec
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int64) (*models.Tournament, error) {
	query := `
		SELECT id, episode_id, name, external_id_private, external_id_public, submission_freeze, submission_unfreeze
		FROM tournaments
		WHERE id = $1`
	var t models.Tournament
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.EpisodeID, &t.Name, &t.ExternalIDPrivate, &t.ExternalIDPublic,
		&t.SubmissionFreeze, &t.SubmissionUnfreeze,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTournamentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tournament %d: %w", id, err)
	}
	return &t, nil
}

func (r *postgresTournamentRepository) GetRound(ctx context.Context, id int64) (*models.TournamentRound, error) {
	query := `
		SELECT id, tournament_id, name, release_status, external_round, maps
		FROM tournament_rounds
		WHERE id = $1`
	var round models.TournamentRound
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&round.ID, &round.TournamentID, &round.Name, &round.ReleaseStatus,
		&round.ExternalRound, pq.Array(&round.Maps),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tournament round %d: %w", id, err)
	}
	return &round, nil
}

func (r *postgresTournamentRepository) SetExternalIDs(ctx context.Context, exec SQLExecutor, tournamentID int64, private, public string) error {
	query := `UPDATE tournaments SET external_id_private = $1, external_id_public = $2 WHERE id = $3`
	result, err := r.exec(exec).ExecContext(ctx, query, private, public, tournamentID)
	if err != nil {
		return fmt.Errorf("failed to set external ids on tournament %d: %w", tournamentID, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) SetRoundExternalID(ctx context.Context, exec SQLExecutor, roundID int64, externalRound int) error {
	query := `UPDATE tournament_rounds SET external_round = $1 WHERE id = $2`
	result, err := r.exec(exec).ExecContext(ctx, query, externalRound, roundID)
	if err != nil {
		return fmt.Errorf("failed to set external round on round %d: %w", roundID, err)
	}
	return checkAffectedRows(result, ErrRoundNotFound)
}
