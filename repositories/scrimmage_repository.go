package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/scrimlab/match-engine/models"
)

var ErrScrimmageNotFound = errors.New("scrimmage request not found")

type ScrimmageRepository interface {
	Create(ctx context.Context, exec SQLExecutor, req *models.ScrimmageRequest) error

	GetByID(ctx context.Context, id int64) (*models.ScrimmageRequest, error)

	// LockPending row-locks the requests and returns only those still
	// pending, in the order of the input ids.
	LockPending(ctx context.Context, exec SQLExecutor, ids []int64) ([]*models.ScrimmageRequest, error)

	UpdateStatus(ctx context.Context, exec SQLExecutor, id int64, status models.ScrimmageStatus) error

	// ListInbox returns pending requests addressed to the team.
	ListInbox(ctx context.Context, teamID int64) ([]*models.ScrimmageRequest, error)

	// ListOutbox returns pending requests the team has sent.
	ListOutbox(ctx context.Context, teamID int64) ([]*models.ScrimmageRequest, error)
}

type postgresScrimmageRepository struct {
	db *sql.DB
}

func NewPostgresScrimmageRepository(db *sql.DB) ScrimmageRepository {
	return &postgresScrimmageRepository{db: db}
}

func (r *postgresScrimmageRepository) exec(exec SQLExecutor) SQLExecutor {
	if exec == nil {
		return r.db
	}
	return exec
}

const scrimmageColumns = `id, episode_id, requester_id, responder_id, status, is_ranked, player_order, maps, created_at`

func scanScrimmage(row interface{ Scan(...interface{}) error }) (*models.ScrimmageRequest, error) {
	var req models.ScrimmageRequest
	err := row.Scan(
		&req.ID, &req.EpisodeID, &req.RequesterID, &req.ResponderID,
		&req.Status, &req.IsRanked, &req.PlayerOrder, pq.Array(&req.Maps), &req.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *postgresScrimmageRepository) Create(ctx context.Context, exec SQLExecutor, req *models.ScrimmageRequest) error {
	query := `
		INSERT INTO scrimmage_requests (episode_id, requester_id, responder_id, status, is_ranked, player_order, maps)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`
	err := r.exec(exec).QueryRowContext(ctx, query,
		req.EpisodeID, req.RequesterID, req.ResponderID, req.Status,
		req.IsRanked, req.PlayerOrder, pq.Array(req.Maps),
	).Scan(&req.ID, &req.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create scrimmage request from team %d to team %d: %w", req.RequesterID, req.ResponderID, err)
	}
	return nil
}

func (r *postgresScrimmageRepository) GetByID(ctx context.Context, id int64) (*models.ScrimmageRequest, error) {
	query := `SELECT ` + scrimmageColumns + ` FROM scrimmage_requests WHERE id = $1`
	req, err := scanScrimmage(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrScrimmageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scrimmage request %d: %w", id, err)
	}
	return req, nil
}

func (r *postgresScrimmageRepository) LockPending(ctx context.Context, exec SQLExecutor, ids []int64) ([]*models.ScrimmageRequest, error) {
	query := `
		SELECT ` + scrimmageColumns + `
		FROM scrimmage_requests
		WHERE id = ANY($1) AND status = $2
		ORDER BY array_position($1, id)
		FOR UPDATE`
	rows, err := exec.QueryContext(ctx, query, pq.Array(ids), models.ScrimmagePending)
	if err != nil {
		return nil, fmt.Errorf("failed to lock scrimmage requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.ScrimmageRequest
	for rows.Next() {
		req, err := scanScrimmage(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func (r *postgresScrimmageRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int64, status models.ScrimmageStatus) error {
	query := `UPDATE scrimmage_requests SET status = $1 WHERE id = $2`
	result, err := r.exec(exec).ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update scrimmage request %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrScrimmageNotFound)
}

func (r *postgresScrimmageRepository) listPending(ctx context.Context, column string, teamID int64) ([]*models.ScrimmageRequest, error) {
	query := `SELECT ` + scrimmageColumns + ` FROM scrimmage_requests WHERE ` + column + ` = $1 AND status = $2 ORDER BY id DESC`
	// column is one of the two fixed caller constants, never user input.
	rows, err := r.db.QueryContext(ctx, query, teamID, models.ScrimmagePending)
	if err != nil {
		return nil, fmt.Errorf("failed to list scrimmage requests for team %d: %w", teamID, err)
	}
	defer rows.Close()

	var requests []*models.ScrimmageRequest
	for rows.Next() {
		req, err := scanScrimmage(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func (r *postgresScrimmageRepository) ListInbox(ctx context.Context, teamID int64) ([]*models.ScrimmageRequest, error) {
	return r.listPending(ctx, "responder_id", teamID)
}

func (r *postgresScrimmageRepository) ListOutbox(ctx context.Context, teamID int64) ([]*models.ScrimmageRequest, error) {
	return r.listPending(ctx, "requester_id", teamID)
}
