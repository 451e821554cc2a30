package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/scrimlab/match-engine/models"
)

var (
	ErrMatchNotFound       = errors.New("match not found")
	ErrParticipantNotFound = errors.New("match participant not found")
)

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error

	AddMaps(ctx context.Context, exec SQLExecutor, matchID int64, maps []string) error

	// BulkCreateParticipants inserts all rows in one statement and fills
	// generated ids back in input order, so callers can assign the
	// per-team back-links right after.
	BulkCreateParticipants(ctx context.Context, exec SQLExecutor, participants []*models.MatchParticipant) error

	// LatestParticipationBefore returns the id of the team's most recent
	// participation with id < beforeID, or nil when none exists.
	LatestParticipationBefore(ctx context.Context, exec SQLExecutor, teamID, beforeID int64) (*int64, error)

	SetPreviousParticipation(ctx context.Context, exec SQLExecutor, participantID, previousID int64) error

	GetByID(ctx context.Context, id int64) (*models.Match, error)

	GetForUpdate(ctx context.Context, exec SQLExecutor, id int64) (*models.Match, error)

	// LockForEnqueue row-locks matches and returns them with maps loaded,
	// in the order of the input ids.
	LockForEnqueue(ctx context.Context, exec SQLExecutor, ids []int64) ([]*models.Match, error)

	ListByEpisode(ctx context.Context, episodeID string, limit, offset int) ([]*models.Match, error)

	ListIDsByStatus(ctx context.Context, episodeID string, statuses []models.SaturnStatus) ([]int64, error)

	UpdateInvocation(ctx context.Context, exec SQLExecutor, id int64, status models.SaturnStatus, logs string, numFailures int) error

	UpdateInvocationBatch(ctx context.Context, exec SQLExecutor, rows []InvocationRow) error

	// SetScores assigns scores to the match's participants in player_index
	// order; len(scores) must equal the participant count.
	SetScores(ctx context.Context, exec SQLExecutor, matchID int64, scores []int) error

	// ParticipantsForUpdate row-locks and returns the match's participants
	// ordered by player_index.
	ParticipantsForUpdate(ctx context.Context, exec SQLExecutor, matchID int64) ([]*models.MatchParticipant, error)

	GetParticipantForUpdate(ctx context.Context, exec SQLExecutor, id int64) (*models.MatchParticipant, error)

	// NextParticipation returns the team's earliest participation with
	// id > afterID, or nil when the chain ends there.
	NextParticipation(ctx context.Context, exec SQLExecutor, teamID, afterID int64) (*models.MatchParticipant, error)

	// SetParticipantRatings finalizes a participation. The post rating is
	// written at most once; a second write is refused.
	SetParticipantRatings(ctx context.Context, exec SQLExecutor, participantID int64, preID, postID int64) error

	// SetExternalBracketIDs links a tournament match to its counterpart
	// matches in the external private and public brackets.
	SetExternalBracketIDs(ctx context.Context, exec SQLExecutor, matchID int64, private, public string) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) exec(exec SQLExecutor) SQLExecutor {
	if exec == nil {
		return r.db
	}
	return exec
}

const matchColumns = `id, episode_id, tournament_round_id, replay_id, is_ranked, alternate_order, created_at, status, logs, num_failures, message_id, external_id_private, external_id_public`

func scanMatch(row interface{ Scan(...interface{}) error }) (*models.Match, error) {
	var m models.Match
	err := row.Scan(
		&m.ID, &m.EpisodeID, &m.TournamentRoundID, &m.ReplayID, &m.IsRanked,
		&m.AlternateOrder, &m.CreatedAt, &m.Status, &m.Logs, &m.NumFailures, &m.MessageID,
		&m.ExternalIDPrivate, &m.ExternalIDPublic,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	query := `
		INSERT INTO matches (episode_id, tournament_round_id, replay_id, is_ranked, alternate_order, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	err := r.exec(exec).QueryRowContext(ctx, query,
		match.EpisodeID, match.TournamentRoundID, match.ReplayID,
		match.IsRanked, match.AlternateOrder, match.Status,
	).Scan(&match.ID, &match.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create match in episode %q: %w", match.EpisodeID, err)
	}
	return nil
}

func (r *postgresMatchRepository) AddMaps(ctx context.Context, exec SQLExecutor, matchID int64, maps []string) error {
	query := `
		INSERT INTO match_maps (match_id, ordinal, map_name)
		SELECT $1, ord - 1, name
		FROM unnest($2::text[]) WITH ORDINALITY AS m(name, ord)`
	if _, err := r.exec(exec).ExecContext(ctx, query, matchID, pq.Array(maps)); err != nil {
		return fmt.Errorf("failed to add maps to match %d: %w", matchID, err)
	}
	return nil
}

func (r *postgresMatchRepository) BulkCreateParticipants(ctx context.Context, exec SQLExecutor, participants []*models.MatchParticipant) error {
	if len(participants) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO match_participants (match_id, team_id, submission_id, player_index) VALUES `)
	args := make([]interface{}, 0, len(participants)*4)
	for i, p := range participants {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 4
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4)
		args = append(args, p.MatchID, p.TeamID, p.SubmissionID, p.PlayerIndex)
	}
	sb.WriteString(` RETURNING id`)

	rows, err := r.exec(exec).QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return fmt.Errorf("failed to bulk-create %d participants: %w", len(participants), err)
	}
	defer rows.Close()

	// RETURNING yields rows in VALUES order for a plain multi-row insert,
	// which is what the back-link assignment depends on.
	i := 0
	for rows.Next() {
		if i >= len(participants) {
			return fmt.Errorf("bulk participant insert returned too many rows")
		}
		if err := rows.Scan(&participants[i].ID); err != nil {
			return err
		}
		i++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if i != len(participants) {
		return fmt.Errorf("bulk participant insert returned %d of %d ids", i, len(participants))
	}
	return nil
}

func (r *postgresMatchRepository) LatestParticipationBefore(ctx context.Context, exec SQLExecutor, teamID, beforeID int64) (*int64, error) {
	query := `
		SELECT id FROM match_participants
		WHERE team_id = $1 AND id < $2
		ORDER BY id DESC
		LIMIT 1`
	var id int64
	err := r.exec(exec).QueryRowContext(ctx, query, teamID, beforeID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find previous participation for team %d: %w", teamID, err)
	}
	return &id, nil
}

func (r *postgresMatchRepository) SetPreviousParticipation(ctx context.Context, exec SQLExecutor, participantID, previousID int64) error {
	query := `UPDATE match_participants SET previous_participation_id = $1 WHERE id = $2`
	result, err := r.exec(exec).ExecContext(ctx, query, previousID, participantID)
	if err != nil {
		return fmt.Errorf("failed to link participant %d to %d: %w", participantID, previousID, err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresMatchRepository) loadMaps(ctx context.Context, exec SQLExecutor, matchID int64) ([]string, error) {
	query := `SELECT map_name FROM match_maps WHERE match_id = $1 ORDER BY ordinal`
	rows, err := exec.QueryContext(ctx, query, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load maps for match %d: %w", matchID, err)
	}
	defer rows.Close()

	var maps []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		maps = append(maps, name)
	}
	return maps, rows.Err()
}

const participantColumns = `id, match_id, team_id, submission_id, player_index, score, rating_pre_id, rating_post_id, previous_participation_id`

func scanParticipant(row interface{ Scan(...interface{}) error }) (*models.MatchParticipant, error) {
	var p models.MatchParticipant
	err := row.Scan(
		&p.ID, &p.MatchID, &p.TeamID, &p.SubmissionID, &p.PlayerIndex,
		&p.Score, &p.RatingPreID, &p.RatingPostID, &p.PreviousParticipationID,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *postgresMatchRepository) loadParticipants(ctx context.Context, exec SQLExecutor, matchID int64, forUpdate bool) ([]*models.MatchParticipant, error) {
	query := `SELECT ` + participantColumns + ` FROM match_participants WHERE match_id = $1 ORDER BY player_index`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := exec.QueryContext(ctx, query, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants for match %d: %w", matchID, err)
	}
	defer rows.Close()

	var participants []*models.MatchParticipant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (r *postgresMatchRepository) getByID(ctx context.Context, exec SQLExecutor, id int64, forUpdate bool) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	m, err := scanMatch(exec.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match %d: %w", id, err)
	}
	if m.Maps, err = r.loadMaps(ctx, exec, id); err != nil {
		return nil, err
	}
	if m.Participants, err = r.loadParticipants(ctx, exec, id, false); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int64) (*models.Match, error) {
	return r.getByID(ctx, r.db, id, false)
}

func (r *postgresMatchRepository) GetForUpdate(ctx context.Context, exec SQLExecutor, id int64) (*models.Match, error) {
	return r.getByID(ctx, exec, id, true)
}

func (r *postgresMatchRepository) LockForEnqueue(ctx context.Context, exec SQLExecutor, ids []int64) ([]*models.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE id = ANY($1)
		ORDER BY array_position($1, id)
		FOR UPDATE`
	rows, err := exec.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to lock matches for enqueue: %w", err)
	}

	var matches []*models.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, m := range matches {
		if m.Maps, err = r.loadMaps(ctx, exec, m.ID); err != nil {
			return nil, err
		}
	}
	return matches, nil
}

func (r *postgresMatchRepository) ListByEpisode(ctx context.Context, episodeID string, limit, offset int) ([]*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE episode_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, episodeID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches for episode %q: %w", episodeID, err)
	}
	defer rows.Close()

	var matches []*models.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (r *postgresMatchRepository) ListIDsByStatus(ctx context.Context, episodeID string, statuses []models.SaturnStatus) ([]int64, error) {
	codes := make([]string, len(statuses))
	for i, s := range statuses {
		codes[i] = string(s)
	}
	query := `SELECT id FROM matches WHERE episode_id = $1 AND status = ANY($2) ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, episodeID, pq.Array(codes))
	if err != nil {
		return nil, fmt.Errorf("failed to list match ids for episode %q: %w", episodeID, err)
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

func (r *postgresMatchRepository) UpdateInvocation(ctx context.Context, exec SQLExecutor, id int64, status models.SaturnStatus, logs string, numFailures int) error {
	query := `UPDATE matches SET status = $1, logs = $2, num_failures = $3 WHERE id = $4`
	result, err := r.exec(exec).ExecContext(ctx, query, status, logs, numFailures, id)
	if err != nil {
		return fmt.Errorf("failed to update match %d invocation: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) UpdateInvocationBatch(ctx context.Context, exec SQLExecutor, updates []InvocationRow) error {
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
		UPDATE matches AS m
		SET status = u.status, logs = u.logs, num_failures = u.num_failures, message_id = u.message_id
		FROM unnest($1::bigint[], $2::text[], $3::text[], $4::bigint[], $5::text[])
			AS u(id, status, logs, num_failures, message_id)
		WHERE m.id = u.id`
	_, err := exec.ExecContext(ctx, query,
		pq.Array(ids), pq.Array(statuses), pq.Array(logs), pq.Array(failures), pq.Array(messageIDs))
	if err != nil {
		return fmt.Errorf("failed to bulk-update %d match invocations: %w", len(updates), err)
	}
	return nil
}

func (r *postgresMatchRepository) SetScores(ctx context.Context, exec SQLExecutor, matchID int64, scores []int) error {
	values := make([]int64, len(scores))
	for i, s := range scores {
		values[i] = int64(s)
	}
	query := `
		UPDATE match_participants AS p
		SET score = u.score
		FROM unnest($2::bigint[]) WITH ORDINALITY AS u(score, ord)
		WHERE p.match_id = $1 AND p.player_index = u.ord - 1`
	result, err := r.exec(exec).ExecContext(ctx, query, matchID, pq.Array(values))
	if err != nil {
		return fmt.Errorf("failed to set scores on match %d: %w", matchID, err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresMatchRepository) SetExternalBracketIDs(ctx context.Context, exec SQLExecutor, matchID int64, private, public string) error {
	query := `UPDATE matches SET external_id_private = $1, external_id_public = $2 WHERE id = $3`
	result, err := r.exec(exec).ExecContext(ctx, query, private, public, matchID)
	if err != nil {
		return fmt.Errorf("failed to set external bracket ids on match %d: %w", matchID, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) ParticipantsForUpdate(ctx context.Context, exec SQLExecutor, matchID int64) ([]*models.MatchParticipant, error) {
	return r.loadParticipants(ctx, exec, matchID, true)
}

func (r *postgresMatchRepository) GetParticipantForUpdate(ctx context.Context, exec SQLExecutor, id int64) (*models.MatchParticipant, error) {
	query := `SELECT ` + participantColumns + ` FROM match_participants WHERE id = $1 FOR UPDATE`
	p, err := scanParticipant(exec.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrParticipantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock participant %d: %w", id, err)
	}
	return p, nil
}

func (r *postgresMatchRepository) NextParticipation(ctx context.Context, exec SQLExecutor, teamID, afterID int64) (*models.MatchParticipant, error) {
	query := `
		SELECT ` + participantColumns + `
		FROM match_participants
		WHERE team_id = $1 AND id > $2
		ORDER BY id ASC
		LIMIT 1`
	p, err := scanParticipant(r.exec(exec).QueryRowContext(ctx, query, teamID, afterID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find next participation for team %d: %w", teamID, err)
	}
	return p, nil
}

func (r *postgresMatchRepository) SetParticipantRatings(ctx context.Context, exec SQLExecutor, participantID int64, preID, postID int64) error {
	// rating_post_id is write-once: refuse to touch an already-finalized row.
	query := `
		UPDATE match_participants
		SET rating_pre_id = $1, rating_post_id = $2
		WHERE id = $3 AND rating_post_id IS NULL`
	result, err := r.exec(exec).ExecContext(ctx, query, preID, postID, participantID)
	if err != nil {
		return fmt.Errorf("failed to finalize participant %d: %w", participantID, err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}
