package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"
	"github.com/scrimlab/match-engine/config"
	"github.com/scrimlab/match-engine/db"
	"github.com/scrimlab/match-engine/models"
	"github.com/scrimlab/match-engine/repositories"
	"github.com/scrimlab/match-engine/saturn"
	"github.com/scrimlab/match-engine/storage"
)

// MatchSide binds one team to its active submission at materialization
// time. Order in the slice is the player index.
type MatchSide struct {
	TeamID       int64
	SubmissionID int64
}

// MatchParams describes one match to materialize.
type MatchParams struct {
	EpisodeID         string
	Sides             []MatchSide
	Maps              []string
	IsRanked          bool
	AlternateOrder    bool
	TournamentRoundID *int64
}

// MatchService owns match materialization, execute dispatch, and cluster
// report ingestion. Rating finalization is delegated to the rating engine
// after the report transaction commits.
type MatchService struct {
	cfg        *config.Config
	logger     *slog.Logger
	tx         db.TxRunner
	matches    repositories.MatchRepository
	dispatcher saturn.Dispatcher
	ratings    *RatingService
	replays    storage.FileUploader
}

func NewMatchService(
	cfg *config.Config,
	logger *slog.Logger,
	tx db.TxRunner,
	matches repositories.MatchRepository,
	dispatcher saturn.Dispatcher,
	ratings *RatingService,
	replays storage.FileUploader,
) *MatchService {
	return &MatchService{
		cfg:        cfg,
		logger:     logger,
		tx:         tx,
		matches:    matches,
		dispatcher: dispatcher,
		ratings:    ratings,
		replays:    replays,
	}
}

// ReplayURL is the public link to a completed match's replay, or empty
// while the match has not finished.
func (s *MatchService) ReplayURL(match *models.Match) string {
	if match.Status != models.SaturnStatusCompleted {
		return ""
	}
	return s.replays.GetPublicURL(match.ReplayKey())
}

// CreateInTx materializes one match inside a caller-owned transaction:
// match row, maps, both participants, and each participant's back-link to
// the same team's most recent earlier participation. It does not enqueue;
// callers batch that separately so a whole accept or autoscrim run shares
// one ordered dispatch.
func (s *MatchService) CreateInTx(ctx context.Context, exec repositories.SQLExecutor, params MatchParams) (*models.Match, error) {
	if len(params.Sides) != 2 {
		return nil, fmt.Errorf("%w: a match needs exactly 2 sides, got %d", ErrValidationFailed, len(params.Sides))
	}
	if len(params.Maps) == 0 {
		return nil, fmt.Errorf("%w: map set is empty", ErrValidationFailed)
	}

	match := &models.Match{
		EpisodeID:         params.EpisodeID,
		TournamentRoundID: params.TournamentRoundID,
		ReplayID:          uuid.NewString(),
		IsRanked:          params.IsRanked,
		AlternateOrder:    params.AlternateOrder,
		Status:            models.SaturnStatusCreated,
		Maps:              params.Maps,
	}
	if err := s.matches.Create(ctx, exec, match); err != nil {
		return nil, err
	}
	if err := s.matches.AddMaps(ctx, exec, match.ID, params.Maps); err != nil {
		return nil, err
	}

	participants := make([]*models.MatchParticipant, len(params.Sides))
	for i, side := range params.Sides {
		participants[i] = &models.MatchParticipant{
			MatchID:      match.ID,
			TeamID:       side.TeamID,
			SubmissionID: side.SubmissionID,
			PlayerIndex:  i,
		}
	}
	if err := s.matches.BulkCreateParticipants(ctx, exec, participants); err != nil {
		return nil, err
	}

	for _, p := range participants {
		prev, err := s.matches.LatestParticipationBefore(ctx, exec, p.TeamID, p.ID)
		if err != nil {
			return nil, err
		}
		if prev != nil {
			if err := s.matches.SetPreviousParticipation(ctx, exec, p.ID, *prev); err != nil {
				return nil, err
			}
			p.PreviousParticipationID = prev
		}
	}
	match.Participants = participants
	return match, nil
}

// Materialize creates one match and enqueues it in a single transaction.
func (s *MatchService) Materialize(ctx context.Context, params MatchParams) (*models.Match, error) {
	var match *models.Match
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		var err error
		if match, err = s.CreateInTx(ctx, exec, params); err != nil {
			return err
		}
		return s.EnqueueInTx(ctx, exec, []*models.Match{match})
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}

// EnqueueInTx dispatches already-locked matches on the execute topic and
// persists the batch outcome.
func (s *MatchService) EnqueueInTx(ctx context.Context, exec repositories.SQLExecutor, matches []*models.Match) error {
	invocations := make([]Invocation, len(matches))
	for i, m := range matches {
		invocations[i] = m
	}
	rows := enqueueBatch(ctx, s.logger, s.dispatcher,
		s.cfg.ExecuteTopic, s.cfg.ExecuteOrderingKey, "match", invocations)
	if err := s.matches.UpdateInvocationBatch(ctx, exec, rows); err != nil {
		return err
	}
	for i, m := range matches {
		m.Status = models.SaturnStatus(rows[i].Status)
		m.Logs = rows[i].Logs
		m.NumFailures = rows[i].NumFailures
		m.MessageID = rows[i].MessageID
	}
	return nil
}

// Report applies a cluster status report and, when provided, the per-side
// scores. After the transaction commits it kicks the rating engine, which
// runs its own transaction.
func (s *MatchService) Report(ctx context.Context, id int64, update models.InvocationUpdate, scores []int) error {
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		match, err := s.matches.GetForUpdate(ctx, exec, id)
		if err != nil {
			return err
		}
		out, err := applyInvocationUpdate(match.Status, match.Logs, match.NumFailures, update, s.cfg.SaturnMaxFailures)
		if err != nil {
			return err
		}
		if scores != nil && len(scores) != len(match.Participants) {
			return fmt.Errorf("%w: got %d scores for %d participants", ErrValidationFailed, len(scores), len(match.Participants))
		}
		for _, score := range scores {
			if score < 0 || score > math.MaxUint16 {
				return fmt.Errorf("%w: score %d out of range", ErrValidationFailed, score)
			}
		}
		if err := s.matches.UpdateInvocation(ctx, exec, id, out.Status, out.Logs, out.NumFailures); err != nil {
			return err
		}
		if scores != nil {
			if err := s.matches.SetScores(ctx, exec, id, scores); err != nil {
				return err
			}
		}
		s.logger.InfoContext(ctx, "match report applied",
			"operation", "report", "entity_kind", "match",
			"entity_id", id, "status", out.Status)
		return nil
	})
	if err != nil {
		return err
	}
	return s.ratings.TryFinalize(ctx, id)
}

// Enqueue dispatches the episode's matches that are still in the created
// state.
func (s *MatchService) Enqueue(ctx context.Context, episodeID string) (int, error) {
	ids, err := s.matches.ListIDsByStatus(ctx, episodeID, []models.SaturnStatus{models.SaturnStatusCreated})
	if err != nil {
		return 0, err
	}
	return s.enqueueIDs(ctx, ids)
}

// EnqueueAll force-requeues every match in the episode regardless of state.
func (s *MatchService) EnqueueAll(ctx context.Context, episodeID string) (int, error) {
	ids, err := s.matches.ListIDsByStatus(ctx, episodeID, allSaturnStatuses)
	if err != nil {
		return 0, err
	}
	return s.enqueueIDs(ctx, ids)
}

func (s *MatchService) enqueueIDs(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		matches, err := s.matches.LockForEnqueue(ctx, exec, ids)
		if err != nil {
			return err
		}
		return s.EnqueueInTx(ctx, exec, matches)
	})
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Cancel transitions a non-terminal match to cancelled. Cancelled is a
// terminal state, so it kicks the rating engine the same way Report does:
// the pass-through finalization keeps both teams' chains moving.
func (s *MatchService) Cancel(ctx context.Context, id int64) error {
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		match, err := s.matches.GetForUpdate(ctx, exec, id)
		if err != nil {
			return err
		}
		if match.Status.IsTerminal() {
			return ErrAlreadyFinalized
		}
		return s.matches.UpdateInvocation(ctx, exec, id, models.SaturnStatusCancelled, match.Logs, match.NumFailures)
	})
	if err != nil {
		return err
	}
	return s.ratings.TryFinalize(ctx, id)
}

func (s *MatchService) GetByID(ctx context.Context, id int64) (*models.Match, error) {
	return s.matches.GetByID(ctx, id)
}

func (s *MatchService) ListByEpisode(ctx context.Context, episodeID string, limit, offset int) ([]*models.Match, error) {
	return s.matches.ListByEpisode(ctx, episodeID, limit, offset)
}
