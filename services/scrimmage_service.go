package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/scrimlab/match-engine/config"
	"github.com/scrimlab/match-engine/db"
	"github.com/scrimlab/match-engine/models"
	"github.com/scrimlab/match-engine/repositories"
)

const rankedScrimmageMaps = 3

// ScrimmageService owns the request state machine and its materialization
// into matches: validation at creation, the responder auto-policies, and
// the batch accept path that turns requests into enqueued matches.
type ScrimmageService struct {
	cfg         *config.Config
	logger      *slog.Logger
	tx          db.TxRunner
	scrimmages  repositories.ScrimmageRepository
	teams       repositories.TeamRepository
	submissions repositories.SubmissionRepository
	episodes    repositories.EpisodeRepository
	matches     *MatchService

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewScrimmageService(
	cfg *config.Config,
	logger *slog.Logger,
	tx db.TxRunner,
	scrimmages repositories.ScrimmageRepository,
	teams repositories.TeamRepository,
	submissions repositories.SubmissionRepository,
	episodes repositories.EpisodeRepository,
	matches *MatchService,
	rng *rand.Rand,
) *ScrimmageService {
	return &ScrimmageService{
		cfg:         cfg,
		logger:      logger,
		tx:          tx,
		scrimmages:  scrimmages,
		teams:       teams,
		submissions: submissions,
		episodes:    episodes,
		matches:     matches,
		rng:         rng,
	}
}

// Create validates and persists a new pending request, then applies the
// responder's auto-policy. Ranked requests must use the shuffled order and
// get their map list overwritten with a random sample of public maps.
func (s *ScrimmageService) Create(ctx context.Context, episodeID string, requesterID, responderID int64, isRanked bool, order models.PlayerOrder, maps []string) (*models.ScrimmageRequest, error) {
	if requesterID == responderID {
		return nil, fmt.Errorf("%w: a team cannot scrimmage itself", ErrValidationFailed)
	}

	frozen, err := s.episodes.IsFrozen(ctx, episodeID, time.Now())
	if err != nil {
		return nil, err
	}
	if frozen {
		return nil, ErrFrozenEpisode
	}

	requester, err := s.teams.GetByID(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	responder, err := s.teams.GetByID(ctx, responderID)
	if err != nil {
		return nil, err
	}
	if isRanked && (requester.IsStaff() || responder.IsStaff()) {
		return nil, fmt.Errorf("%w: staff teams cannot play ranked", ErrNotAllowed)
	}

	if isRanked {
		if order != models.OrderShuffled {
			return nil, fmt.Errorf("%w: ranked requests must use the shuffled player order", ErrValidationFailed)
		}
		if maps, err = s.sampleRankedMaps(ctx, episodeID); err != nil {
			return nil, err
		}
	} else {
		if len(maps) == 0 {
			return nil, fmt.Errorf("%w: map set is empty", ErrValidationFailed)
		}
		if len(maps) > s.cfg.MaxMapsPerScrimmage {
			return nil, fmt.Errorf("%w: at most %d maps per scrimmage", ErrValidationFailed, s.cfg.MaxMapsPerScrimmage)
		}
	}

	request := &models.ScrimmageRequest{
		EpisodeID:   episodeID,
		RequesterID: requesterID,
		ResponderID: responderID,
		IsRanked:    isRanked,
		PlayerOrder: order,
		Maps:        maps,
		Status:      models.ScrimmagePending,
	}
	err = s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		return s.scrimmages.Create(ctx, exec, request)
	})
	if err != nil {
		return nil, err
	}

	if err := s.afterCreate(ctx, request, responderID); err != nil {
		return nil, err
	}
	return request, nil
}

// afterCreate applies the responder's standing policy to the fresh request.
func (s *ScrimmageService) afterCreate(ctx context.Context, request *models.ScrimmageRequest, responderID int64) error {
	profile, err := s.teams.GetProfile(ctx, nil, responderID)
	if err != nil {
		return err
	}
	switch profile.PolicyFor(request.IsRanked) {
	case models.ScrimmagePolicyAutoAccept:
		return s.Accept(ctx, []int64{request.ID})
	case models.ScrimmagePolicyAutoReject:
		return s.Reject(ctx, []int64{request.ID})
	}
	return nil
}

// Accept marks the still-pending requests accepted, materializes one match
// per request, and enqueues all new matches as a single ordered batch.
// Requests that left the pending state since listing are skipped. If any
// involved team lost its accepted submission the whole batch rolls back.
func (s *ScrimmageService) Accept(ctx context.Context, ids []int64) error {
	return s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		requests, err := s.scrimmages.LockPending(ctx, exec, ids)
		if err != nil {
			return err
		}

		var created []*models.Match
		for _, request := range requests {
			if err := s.scrimmages.UpdateStatus(ctx, exec, request.ID, models.ScrimmageAccepted); err != nil {
				return err
			}

			sides, err := s.resolveSides(ctx, exec, request)
			if err != nil {
				return err
			}
			match, err := s.matches.CreateInTx(ctx, exec, MatchParams{
				EpisodeID:      request.EpisodeID,
				Sides:          sides,
				Maps:           request.Maps,
				IsRanked:       request.IsRanked,
				AlternateOrder: request.PlayerOrder.IsAlternating(),
			})
			if err != nil {
				return err
			}
			created = append(created, match)
		}

		if len(created) == 0 {
			return nil
		}
		return s.matches.EnqueueInTx(ctx, exec, created)
	})
}

// resolveSides binds both teams to their active submissions, ordered by
// the request's player-order policy.
func (s *ScrimmageService) resolveSides(ctx context.Context, exec repositories.SQLExecutor, request *models.ScrimmageRequest) ([]MatchSide, error) {
	s.rngMu.Lock()
	first, second := request.PlayerOrder.Ordered(request.RequesterID, request.ResponderID, s.rng)
	s.rngMu.Unlock()

	sides := make([]MatchSide, 0, 2)
	for _, teamID := range []int64{first, second} {
		submission, err := s.submissions.LatestAccepted(ctx, exec, teamID)
		if err != nil {
			if errors.Is(err, repositories.ErrNoAcceptedSubmission) {
				return nil, fmt.Errorf("%w: team %d", ErrMissingActiveSubmission, teamID)
			}
			return nil, err
		}
		sides = append(sides, MatchSide{TeamID: teamID, SubmissionID: submission.ID})
	}
	return sides, nil
}

// Reject marks the still-pending requests rejected.
func (s *ScrimmageService) Reject(ctx context.Context, ids []int64) error {
	return s.transition(ctx, ids, models.ScrimmageRejected)
}

// Cancel marks the still-pending requests cancelled. Only the requester
// side uses this path.
func (s *ScrimmageService) Cancel(ctx context.Context, ids []int64) error {
	return s.transition(ctx, ids, models.ScrimmageCancelled)
}

func (s *ScrimmageService) transition(ctx context.Context, ids []int64, status models.ScrimmageStatus) error {
	return s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		requests, err := s.scrimmages.LockPending(ctx, exec, ids)
		if err != nil {
			return err
		}
		for _, request := range requests {
			if err := s.scrimmages.UpdateStatus(ctx, exec, request.ID, status); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *ScrimmageService) GetByID(ctx context.Context, id int64) (*models.ScrimmageRequest, error) {
	return s.scrimmages.GetByID(ctx, id)
}

func (s *ScrimmageService) ListInbox(ctx context.Context, teamID int64) ([]*models.ScrimmageRequest, error) {
	return s.scrimmages.ListInbox(ctx, teamID)
}

func (s *ScrimmageService) ListOutbox(ctx context.Context, teamID int64) ([]*models.ScrimmageRequest, error) {
	return s.scrimmages.ListOutbox(ctx, teamID)
}

// sampleRankedMaps draws the fixed ranked map count uniformly without
// replacement from the episode's public maps.
func (s *ScrimmageService) sampleRankedMaps(ctx context.Context, episodeID string) ([]string, error) {
	names, err := s.episodes.ListPublicMapNames(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	if len(names) < rankedScrimmageMaps {
		return nil, fmt.Errorf("%w: episode has %d public maps, need %d", ErrValidationFailed, len(names), rankedScrimmageMaps)
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return sampleMaps(names, rankedScrimmageMaps, s.rng), nil
}

// sampleMaps picks k distinct names uniformly. Caller holds the rng lock.
func sampleMaps(names []string, k int, rng *rand.Rand) []string {
	picked := make([]string, k)
	for i, j := range rng.Perm(len(names))[:k] {
		picked[i] = names[j]
	}
	return picked
}
