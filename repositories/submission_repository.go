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
	ErrSubmissionNotFound   = errors.New("submission not found")
	ErrNoAcceptedSubmission = errors.New("team has no accepted submission")
)

type SubmissionRepository interface {
	Create(ctx context.Context, exec SQLExecutor, submission *models.Submission) error

	GetByID(ctx context.Context, id int64) (*models.Submission, error)

	GetForUpdate(ctx context.Context, exec SQLExecutor, id int64) (*models.Submission, error)

	// LatestAccepted is the team's active submission: the most recent one
	// that passed compilation.
	LatestAccepted(ctx context.Context, exec SQLExecutor, teamID int64) (*models.Submission, error)

	ListByTeam(ctx context.Context, teamID int64, limit, offset int) ([]*models.Submission, error)

	ListIDsByStatus(ctx context.Context, episodeID string, statuses []models.SaturnStatus) ([]int64, error)

	// LockForEnqueue row-locks the given submissions and returns them in
	// the order of the input ids.
	LockForEnqueue(ctx context.Context, exec SQLExecutor, ids []int64) ([]*models.Submission, error)

	UpdateInvocation(ctx context.Context, exec SQLExecutor, id int64, status models.SaturnStatus, logs string, numFailures int) error

	// UpdateInvocationBatch persists the outcome of one enqueue batch with
	// a single statement.
	UpdateInvocationBatch(ctx context.Context, exec SQLExecutor, rows []InvocationRow) error

	SetAccepted(ctx context.Context, exec SQLExecutor, id int64, accepted bool) error
}

type postgresSubmissionRepository struct {
	db *sql.DB
}

func NewPostgresSubmissionRepository(db *sql.DB) SubmissionRepository {
	return &postgresSubmissionRepository{db: db}
}

func (r *postgresSubmissionRepository) exec(exec SQLExecutor) SQLExecutor {
	if exec == nil {
		return r.db
	}
	return exec
}

const submissionColumns = `id, episode_id, team_id, user_id, package, description, created_at, status, logs, num_failures, message_id, accepted`

func scanSubmission(row interface{ Scan(...interface{}) error }) (*models.Submission, error) {
	var s models.Submission
	err := row.Scan(
		&s.ID, &s.EpisodeID, &s.TeamID, &s.UserID, &s.Package, &s.Description,
		&s.CreatedAt, &s.Status, &s.Logs, &s.NumFailures, &s.MessageID, &s.Accepted,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *postgresSubmissionRepository) Create(ctx context.Context, exec SQLExecutor, submission *models.Submission) error {
	query := `
		INSERT INTO submissions (episode_id, team_id, user_id, package, description, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	err := r.exec(exec).QueryRowContext(ctx, query,
		submission.EpisodeID, submission.TeamID, submission.UserID,
		submission.Package, submission.Description, submission.Status,
	).Scan(&submission.ID, &submission.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create submission for team %d: %w", submission.TeamID, err)
	}
	return nil
}

func (r *postgresSubmissionRepository) GetByID(ctx context.Context, id int64) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`
	s, err := scanSubmission(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission %d: %w", id, err)
	}
	return s, nil
}

func (r *postgresSubmissionRepository) GetForUpdate(ctx context.Context, exec SQLExecutor, id int64) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1 FOR UPDATE`
	s, err := scanSubmission(exec.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock submission %d: %w", id, err)
	}
	return s, nil
}

func (r *postgresSubmissionRepository) LatestAccepted(ctx context.Context, exec SQLExecutor, teamID int64) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE team_id = $1 AND accepted ORDER BY id DESC LIMIT 1`
	s, err := scanSubmission(r.exec(exec).QueryRowContext(ctx, query, teamID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoAcceptedSubmission
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active submission for team %d: %w", teamID, err)
	}
	return s, nil
}

func (r *postgresSubmissionRepository) ListByTeam(ctx context.Context, teamID int64, limit, offset int) ([]*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE team_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, teamID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions for team %d: %w", teamID, err)
	}
	defer rows.Close()

	var submissions []*models.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, s)
	}
	return submissions, rows.Err()
}

func (r *postgresSubmissionRepository) ListIDsByStatus(ctx context.Context, episodeID string, statuses []models.SaturnStatus) ([]int64, error) {
	codes := make([]string, len(statuses))
	for i, s := range statuses {
		codes[i] = string(s)
	}
	query := `SELECT id FROM submissions WHERE episode_id = $1 AND status = ANY($2) ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, episodeID, pq.Array(codes))
	if err != nil {
		return nil, fmt.Errorf("failed to list submission ids for episode %q: %w", episodeID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *postgresSubmissionRepository) LockForEnqueue(ctx context.Context, exec SQLExecutor, ids []int64) ([]*models.Submission, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM submissions
		WHERE id = ANY($1)
		ORDER BY array_position($1, id)
		FOR UPDATE`
	rows, err := exec.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to lock submissions for enqueue: %w", err)
	}
	defer rows.Close()

	var submissions []*models.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, s)
	}
	return submissions, rows.Err()
}

func (r *postgresSubmissionRepository) UpdateInvocation(ctx context.Context, exec SQLExecutor, id int64, status models.SaturnStatus, logs string, numFailures int) error {
	query := `UPDATE submissions SET status = $1, logs = $2, num_failures = $3 WHERE id = $4`
	result, err := r.exec(exec).ExecContext(ctx, query, status, logs, numFailures, id)
	if err != nil {
		return fmt.Errorf("failed to update submission %d invocation: %w", id, err)
	}
	return checkAffectedRows(result, ErrSubmissionNotFound)
}

func (r *postgresSubmissionRepository) UpdateInvocationBatch(ctx context.Context, exec SQLExecutor, updates []InvocationRow) error {
	if len(updates) == 0 {
		return nil
	}
	ids := make([]int64, len(updates))
	statuses := make([]string, len(updates))
	logs := make([]string, len(updates))
	failures := make([]int64, len(updates))
	messageIDs := make([]sql.NullString, len(updates))
	for i, u := range updates {
		ids[i] = u.ID
		statuses[i] = u.Status
		logs[i] = u.Logs
		failures[i] = int64(u.NumFailures)
		if u.MessageID != nil {
			messageIDs[i] = sql.NullString{String: *u.MessageID, Valid: true}
		}
	}

	query := `
		UPDATE submissions AS s
		SET status = u.status, logs = u.logs, num_failures = u.num_failures, message_id = u.message_id
		FROM unnest($1::bigint[], $2::text[], $3::text[], $4::bigint[], $5::text[])
			AS u(id, status, logs, num_failures, message_id)
		WHERE s.id = u.id`
	_, err := exec.ExecContext(ctx, query,
		pq.Array(ids), pq.Array(statuses), pq.Array(logs), pq.Array(failures), pq.Array(messageIDs))
	if err != nil {
		return fmt.Errorf("failed to bulk-update %d submission invocations: %w", len(updates), err)
	}
	return nil
}

func (r *postgresSubmissionRepository) SetAccepted(ctx context.Context, exec SQLExecutor, id int64, accepted bool) error {
	query := `UPDATE submissions SET accepted = $1 WHERE id = $2`
	result, err := r.exec(exec).ExecContext(ctx, query, accepted, id)
	if err != nil {
		return fmt.Errorf("failed to set accepted on submission %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrSubmissionNotFound)
}
