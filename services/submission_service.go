package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/scrimlab/match-engine/config"
	"github.com/scrimlab/match-engine/db"
	"github.com/scrimlab/match-engine/models"
	"github.com/scrimlab/match-engine/repositories"
	"github.com/scrimlab/match-engine/saturn"
	"github.com/scrimlab/match-engine/storage"
)

const maxSourceBytes = 5 << 20

// SubmissionService owns the submission lifecycle: creation with blob
// upload and compile dispatch, cluster report ingestion, and the admin
// requeue and cancel operations.
type SubmissionService struct {
	cfg          *config.Config
	logger       *slog.Logger
	tx           db.TxRunner
	episodes     repositories.EpisodeRepository
	submissions  repositories.SubmissionRepository
	dispatcher   saturn.Dispatcher
	secureBucket storage.FileUploader
}

func NewSubmissionService(
	cfg *config.Config,
	logger *slog.Logger,
	tx db.TxRunner,
	episodes repositories.EpisodeRepository,
	submissions repositories.SubmissionRepository,
	dispatcher saturn.Dispatcher,
	secureBucket storage.FileUploader,
) *SubmissionService {
	return &SubmissionService{
		cfg:          cfg,
		logger:       logger,
		tx:           tx,
		episodes:     episodes,
		submissions:  submissions,
		dispatcher:   dispatcher,
		secureBucket: secureBucket,
	}
}

// Create persists a new submission, uploads its source archive, and
// enqueues the compile job. A blob failure aborts the whole transaction; a
// publish failure leaves the submission persisted as errored.
func (s *SubmissionService) Create(ctx context.Context, episodeID string, teamID, userID int64, pkg, description string, source []byte) (*models.Submission, error) {
	frozen, err := s.episodes.IsFrozen(ctx, episodeID, time.Now())
	if err != nil {
		return nil, err
	}
	if frozen {
		return nil, ErrFrozenEpisode
	}
	if len(source) > maxSourceBytes {
		return nil, fmt.Errorf("%w: source archive exceeds %d bytes", ErrValidationFailed, maxSourceBytes)
	}

	submission := &models.Submission{
		EpisodeID:   episodeID,
		TeamID:      teamID,
		UserID:      userID,
		Package:     pkg,
		Description: description,
		Status:      models.SaturnStatusCreated,
	}

	err = s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.submissions.Create(ctx, exec, submission); err != nil {
			return err
		}
		if _, err := s.secureBucket.Upload(ctx, submission.SourceKey(), "application/zip", bytes.NewReader(source)); err != nil {
			return fmt.Errorf("failed to upload submission source: %w", err)
		}

		rows := enqueueBatch(ctx, s.logger, s.dispatcher,
			s.cfg.CompileTopic, s.cfg.CompileOrderingKey, "submission",
			[]Invocation{submission})
		if err := s.submissions.UpdateInvocationBatch(ctx, exec, rows); err != nil {
			return err
		}
		submission.Status = models.SaturnStatus(rows[0].Status)
		submission.Logs = rows[0].Logs
		submission.NumFailures = rows[0].NumFailures
		submission.MessageID = rows[0].MessageID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return submission, nil
}

// Report applies a cluster status report to a submission. Reports against
// terminal submissions return ErrAlreadyFinalized and change nothing,
// including the accepted flag.
func (s *SubmissionService) Report(ctx context.Context, id int64, update models.InvocationUpdate, accepted *bool) error {
	return s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		submission, err := s.submissions.GetForUpdate(ctx, exec, id)
		if err != nil {
			return err
		}
		out, err := applyInvocationUpdate(submission.Status, submission.Logs, submission.NumFailures, update, s.cfg.SaturnMaxFailures)
		if err != nil {
			return err
		}
		if err := s.submissions.UpdateInvocation(ctx, exec, id, out.Status, out.Logs, out.NumFailures); err != nil {
			return err
		}
		if accepted != nil {
			if err := s.submissions.SetAccepted(ctx, exec, id, *accepted); err != nil {
				return err
			}
		}
		s.logger.InfoContext(ctx, "submission report applied",
			"operation", "report", "entity_kind", "submission",
			"entity_id", id, "status", out.Status)
		return nil
	})
}

// Enqueue dispatches the episode's submissions that are still in the
// created state.
func (s *SubmissionService) Enqueue(ctx context.Context, episodeID string) (int, error) {
	ids, err := s.submissions.ListIDsByStatus(ctx, episodeID, []models.SaturnStatus{models.SaturnStatusCreated})
	if err != nil {
		return 0, err
	}
	return s.enqueueIDs(ctx, ids)
}

// EnqueueAll force-requeues every submission in the episode regardless of
// state. Admin-only recovery path after dispatcher outages.
func (s *SubmissionService) EnqueueAll(ctx context.Context, episodeID string) (int, error) {
	ids, err := s.submissions.ListIDsByStatus(ctx, episodeID, allSaturnStatuses)
	if err != nil {
		return 0, err
	}
	return s.enqueueIDs(ctx, ids)
}

func (s *SubmissionService) enqueueIDs(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		submissions, err := s.submissions.LockForEnqueue(ctx, exec, ids)
		if err != nil {
			return err
		}
		invocations := make([]Invocation, len(submissions))
		for i, sub := range submissions {
			invocations[i] = sub
		}
		rows := enqueueBatch(ctx, s.logger, s.dispatcher,
			s.cfg.CompileTopic, s.cfg.CompileOrderingKey, "submission", invocations)
		return s.submissions.UpdateInvocationBatch(ctx, exec, rows)
	})
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Cancel transitions a non-terminal submission to cancelled.
func (s *SubmissionService) Cancel(ctx context.Context, id int64) error {
	return s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		submission, err := s.submissions.GetForUpdate(ctx, exec, id)
		if err != nil {
			return err
		}
		if submission.Status.IsTerminal() {
			return ErrAlreadyFinalized
		}
		return s.submissions.UpdateInvocation(ctx, exec, id, models.SaturnStatusCancelled, submission.Logs, submission.NumFailures)
	})
}

// GetByID returns a submission for the read API.
func (s *SubmissionService) GetByID(ctx context.Context, id int64) (*models.Submission, error) {
	return s.submissions.GetByID(ctx, id)
}

// ListByTeam returns a page of the team's submissions, newest first.
func (s *SubmissionService) ListByTeam(ctx context.Context, teamID int64, limit, offset int) ([]*models.Submission, error) {
	return s.submissions.ListByTeam(ctx, teamID, limit, offset)
}

var allSaturnStatuses = []models.SaturnStatus{
	models.SaturnStatusCreated, models.SaturnStatusQueued,
	models.SaturnStatusRunning, models.SaturnStatusRetrying,
	models.SaturnStatusCompleted, models.SaturnStatusErrored,
	models.SaturnStatusCancelled,
}
