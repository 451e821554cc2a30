package services

import (
	"context"
	"log/slog"

	"github.com/scrimlab/match-engine/db"
	"github.com/scrimlab/match-engine/glicko2"
	"github.com/scrimlab/match-engine/models"
	"github.com/scrimlab/match-engine/repositories"
)

// RatingService resolves deferred rating finalization. Matches can reach a
// terminal state out of chronological order, so a ranked result is only
// applied to a team once every earlier participation of that team has its
// post-match rating written. Finalization therefore runs as a worklist:
// start from the just-reported match, finalize what is ready, and follow
// each team's chain forward to whatever the new result unblocked.
type RatingService struct {
	logger  *slog.Logger
	tx      db.TxRunner
	matches repositories.MatchRepository
	ratings repositories.RatingRepository
	teams   repositories.TeamRepository
}

func NewRatingService(
	logger *slog.Logger,
	tx db.TxRunner,
	matches repositories.MatchRepository,
	ratings repositories.RatingRepository,
	teams repositories.TeamRepository,
) *RatingService {
	return &RatingService{
		logger:  logger,
		tx:      tx,
		matches: matches,
		ratings: ratings,
		teams:   teams,
	}
}

// TryFinalize finalizes every participation the given match makes ready,
// cascading down the affected team chains. It is idempotent: participants
// with a post rating already written are skipped, so calling it again for
// the same match is a no-op. The whole cascade runs in one transaction
// with row locks on participants and team profiles.
func (s *RatingService) TryFinalize(ctx context.Context, matchID int64) error {
	return s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		// A match may enter the worklist more than once: visiting it can
		// finalize a participant that makes its other entry's prerequisite
		// true on a later pass. Re-visits terminate because follow-ups are
		// only pushed when a participant is newly finalized, and each
		// participant finalizes at most once.
		worklist := []int64{matchID}
		for len(worklist) > 0 {
			id := worklist[0]
			worklist = worklist[1:]

			next, err := s.finalizeMatch(ctx, exec, id)
			if err != nil {
				return err
			}
			worklist = append(worklist, next...)
		}
		return nil
	})
}

// finalizeMatch attempts to finalize both participants of one match and
// returns the match ids of any immediately-subsequent participations on
// the affected chains.
func (s *RatingService) finalizeMatch(ctx context.Context, exec repositories.SQLExecutor, matchID int64) ([]int64, error) {
	match, err := s.matches.GetForUpdate(ctx, exec, matchID)
	if err != nil {
		return nil, err
	}
	if !match.Status.IsTerminal() {
		return nil, nil
	}

	participants, err := s.matches.ParticipantsForUpdate(ctx, exec, matchID)
	if err != nil {
		return nil, err
	}

	var followUps []int64
	for i, p := range participants {
		if p.Finalized() {
			continue
		}
		opponent := participants[1-i]

		ready, err := s.isReady(ctx, exec, p)
		if err != nil {
			return nil, err
		}
		if !ready {
			continue
		}

		post, err := s.resolvePost(ctx, exec, match, p, opponent)
		if err != nil {
			return nil, err
		}
		if post == nil {
			continue
		}

		pre, err := s.preRating(ctx, exec, p)
		if err != nil {
			return nil, err
		}
		if err := s.matches.SetParticipantRatings(ctx, exec, p.ID, pre.ID, post.ID); err != nil {
			return nil, err
		}
		p.RatingPreID = &pre.ID
		p.RatingPostID = &post.ID

		if err := s.updateProfile(ctx, exec, p.TeamID, post); err != nil {
			return nil, err
		}

		s.logger.InfoContext(ctx, "participation finalized",
			"operation", "finalize", "entity_kind", "participant",
			"entity_id", p.ID, "team_id", p.TeamID, "rating_n", post.N)

		nextP, err := s.matches.NextParticipation(ctx, exec, p.TeamID, p.ID)
		if err != nil {
			return nil, err
		}
		if nextP != nil {
			followUps = append(followUps, nextP.MatchID)
		}
	}
	return followUps, nil
}

// isReady checks the causal prerequisite: the participant's previous
// participation, when one exists, must already be finalized.
func (s *RatingService) isReady(ctx context.Context, exec repositories.SQLExecutor, p *models.MatchParticipant) (bool, error) {
	if p.PreviousParticipationID == nil {
		return true, nil
	}
	prev, err := s.matches.GetParticipantForUpdate(ctx, exec, *p.PreviousParticipationID)
	if err != nil {
		return false, err
	}
	return prev.Finalized(), nil
}

// preRating resolves r_pre: the previous participation's post rating, or
// the team's initial rating for the first link of the chain.
func (s *RatingService) preRating(ctx context.Context, exec repositories.SQLExecutor, p *models.MatchParticipant) (*models.Rating, error) {
	if p.PreviousParticipationID != nil {
		prev, err := s.matches.GetParticipantForUpdate(ctx, exec, *p.PreviousParticipationID)
		if err != nil {
			return nil, err
		}
		if prev.RatingPostID != nil {
			return s.ratings.GetByID(ctx, exec, *prev.RatingPostID)
		}
	}
	return s.ratings.InitialForTeam(ctx, exec, p.TeamID)
}

// resolvePost computes the participant's post rating according to the
// match outcome, or returns nil when the participant is not yet eligible.
// Unranked completions and errored or cancelled matches pass r_pre through
// unchanged; ranked completions take a Glicko-2 step against the opponent
// and append a new snapshot with n+1.
func (s *RatingService) resolvePost(ctx context.Context, exec repositories.SQLExecutor, match *models.Match, p, opponent *models.MatchParticipant) (*models.Rating, error) {
	ranked := match.Status == models.SaturnStatusCompleted && match.IsRanked
	if !ranked {
		return s.preRating(ctx, exec, p)
	}

	// Ranked completion: both sides must be ready and scored.
	if p.Score == nil || opponent.Score == nil {
		return nil, nil
	}
	opponentReady := opponent.Finalized()
	if !opponentReady {
		var err error
		if opponentReady, err = s.isReady(ctx, exec, opponent); err != nil {
			return nil, err
		}
	}
	if !opponentReady {
		return nil, nil
	}

	pre, err := s.preRating(ctx, exec, p)
	if err != nil {
		return nil, err
	}
	opponentPre, err := s.preRating(ctx, exec, opponent)
	if err != nil {
		return nil, err
	}

	outcome := glicko2.Draw
	switch {
	case *p.Score > *opponent.Score:
		outcome = glicko2.Win
	case *p.Score < *opponent.Score:
		outcome = glicko2.Loss
	}

	stepped, err := glicko2.Step(
		glicko2.Rating{Mean: pre.Mean, Deviation: pre.Deviation, Volatility: pre.Volatility},
		glicko2.Rating{Mean: opponentPre.Mean, Deviation: opponentPre.Deviation, Volatility: opponentPre.Volatility},
		outcome,
	)
	if err != nil {
		return nil, err
	}

	post := &models.Rating{
		TeamID:     p.TeamID,
		Mean:       stepped.Mean,
		Deviation:  stepped.Deviation,
		Volatility: stepped.Volatility,
		N:          pre.N + 1,
	}
	if err := s.ratings.Create(ctx, exec, post); err != nil {
		return nil, err
	}
	return post, nil
}

// updateProfile replaces the team's current rating when the new snapshot
// incorporates more matches. The profile row lock serializes concurrent
// finalizations on the same chain.
func (s *RatingService) updateProfile(ctx context.Context, exec repositories.SQLExecutor, teamID int64, post *models.Rating) error {
	profile, err := s.teams.GetProfileForUpdate(ctx, exec, teamID)
	if err != nil {
		return err
	}
	current, err := s.ratings.GetByID(ctx, exec, profile.RatingID)
	if err != nil {
		return err
	}
	if post.N <= current.N {
		return nil
	}
	return s.teams.UpdateProfileRating(ctx, exec, teamID, post.ID)
}
