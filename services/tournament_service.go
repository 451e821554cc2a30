package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/scrimlab/match-engine/challonge"
	"github.com/scrimlab/match-engine/config"
	"github.com/scrimlab/match-engine/db"
	"github.com/scrimlab/match-engine/models"
	"github.com/scrimlab/match-engine/repositories"
)

// TournamentService mirrors tournaments into the external bracket service
// and turns bracket rounds into enqueued matches. Each tournament keeps
// two brackets: a private one advanced as results arrive and a public one
// revealed round by round.
type TournamentService struct {
	cfg         *config.Config
	logger      *slog.Logger
	tx          db.TxRunner
	tournaments repositories.TournamentRepository
	teams       repositories.TeamRepository
	matchRepo   repositories.MatchRepository
	matches     *MatchService
	gateway     challonge.Gateway
}

func NewTournamentService(
	cfg *config.Config,
	logger *slog.Logger,
	tx db.TxRunner,
	tournaments repositories.TournamentRepository,
	teams repositories.TeamRepository,
	matchRepo repositories.MatchRepository,
	matches *MatchService,
	gateway challonge.Gateway,
) *TournamentService {
	return &TournamentService{
		cfg:         cfg,
		logger:      logger,
		tx:          tx,
		tournaments: tournaments,
		teams:       teams,
		matchRepo:   matchRepo,
		matches:     matches,
		gateway:     gateway,
	}
}

// CreateBrackets creates the private and public external brackets for the
// tournament and records their ids.
func (s *TournamentService) CreateBrackets(ctx context.Context, tournamentID int64) error {
	t, err := s.tournaments.GetByID(ctx, tournamentID)
	if err != nil {
		return err
	}

	private, err := s.gateway.CreateTournament(ctx, t.Name, fmt.Sprintf("engine_%d_private", t.ID), true)
	if err != nil {
		return err
	}
	public, err := s.gateway.CreateTournament(ctx, t.Name, fmt.Sprintf("engine_%d_public", t.ID), false)
	if err != nil {
		return err
	}

	return s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		return s.tournaments.SetExternalIDs(ctx, exec, tournamentID, private, public)
	})
}

// SeedTeams adds the episode's eligible teams to both brackets, seeded by
// rating descending. Each entrant carries its team and active submission
// ids as opaque metadata; pairings hand them back at round enqueue time.
func (s *TournamentService) SeedTeams(ctx context.Context, tournamentID int64) (int, error) {
	t, err := s.tournaments.GetByID(ctx, tournamentID)
	if err != nil {
		return 0, err
	}
	standings, err := s.teams.ListScrimmageReady(ctx, t.EpisodeID)
	if err != nil {
		return 0, err
	}
	if len(standings) < 2 {
		return 0, fmt.Errorf("%w: tournament needs at least 2 eligible teams, got %d", ErrValidationFailed, len(standings))
	}

	seeded := make([]challonge.SeededTeam, len(standings))
	for i, st := range standings {
		seeded[i] = challonge.SeededTeam{
			Name:         st.TeamName,
			Seed:         i + 1,
			TeamID:       st.TeamID,
			SubmissionID: st.SubmissionID,
		}
	}
	for _, externalID := range []string{t.ExternalIDPrivate, t.ExternalIDPublic} {
		if err := s.gateway.BulkAddTeams(ctx, externalID, seeded); err != nil {
			return 0, err
		}
	}
	return len(seeded), nil
}

// Start starts both external brackets.
func (s *TournamentService) Start(ctx context.Context, tournamentID int64) error {
	t, err := s.tournaments.GetByID(ctx, tournamentID)
	if err != nil {
		return err
	}
	for _, externalID := range []string{t.ExternalIDPrivate, t.ExternalIDPublic} {
		if err := s.gateway.StartTournament(ctx, externalID); err != nil {
			return err
		}
	}
	return nil
}

// EnqueueRound pulls the round's pairings from the private bracket,
// materializes one match per pairing bound to the round, and enqueues them
// all as a single ordered batch. Tournament matches are unranked and
// alternate sides between maps. ErrBracketNotReady propagates untouched so
// the admin can retry once the bracket has advanced.
func (s *TournamentService) EnqueueRound(ctx context.Context, roundID int64) (int, error) {
	round, err := s.tournaments.GetRound(ctx, roundID)
	if err != nil {
		return 0, err
	}
	if len(round.Maps) == 0 {
		return 0, fmt.Errorf("%w: round %d has no maps", ErrValidationFailed, roundID)
	}
	t, err := s.tournaments.GetByID(ctx, round.TournamentID)
	if err != nil {
		return 0, err
	}

	pairings, err := s.gateway.GetRoundPairings(ctx, t.ExternalIDPrivate, round.ExternalRound)
	if err != nil {
		return 0, err
	}
	publicPairings, err := s.gateway.GetRoundPairings(ctx, t.ExternalIDPublic, round.ExternalRound)
	if err != nil {
		return 0, err
	}
	publicByTeams := make(map[[2]int64]string, len(publicPairings))
	for _, p := range publicPairings {
		publicByTeams[pairKey(p.Sides[0].TeamID, p.Sides[1].TeamID)] = p.ExternalMatchID
	}

	err = s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		created := make([]*models.Match, 0, len(pairings))
		for _, pairing := range pairings {
			match, err := s.matches.CreateInTx(ctx, exec, MatchParams{
				EpisodeID: t.EpisodeID,
				Sides: []MatchSide{
					{TeamID: pairing.Sides[0].TeamID, SubmissionID: pairing.Sides[0].SubmissionID},
					{TeamID: pairing.Sides[1].TeamID, SubmissionID: pairing.Sides[1].SubmissionID},
				},
				Maps:              round.Maps,
				IsRanked:          false,
				AlternateOrder:    true,
				TournamentRoundID: &round.ID,
			})
			if err != nil {
				return err
			}

			publicID := publicByTeams[pairKey(pairing.Sides[0].TeamID, pairing.Sides[1].TeamID)]
			if err := s.matchRepo.SetExternalBracketIDs(ctx, exec, match.ID, pairing.ExternalMatchID, publicID); err != nil {
				return err
			}
			created = append(created, match)
		}
		return s.matches.EnqueueInTx(ctx, exec, created)
	})
	if err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "tournament round enqueued",
		"operation", "enqueue_round", "round_id", roundID, "matches", len(pairings))
	return len(pairings), nil
}

// ReportResult forwards a completed tournament match to the external
// brackets: always to the private one, to the public one only once the
// round's results are released.
func (s *TournamentService) ReportResult(ctx context.Context, matchID int64) error {
	match, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		return err
	}
	if match.TournamentRoundID == nil {
		return fmt.Errorf("%w: match %d is not a tournament match", ErrValidationFailed, matchID)
	}
	if match.Status != models.SaturnStatusCompleted {
		return fmt.Errorf("%w: match %d is not completed", ErrValidationFailed, matchID)
	}

	scores := make([]int, len(match.Participants))
	winner := int64(0)
	best := -1
	for i, p := range match.Participants {
		if p.Score == nil {
			return fmt.Errorf("%w: match %d has no recorded scores", ErrValidationFailed, matchID)
		}
		scores[i] = *p.Score
		if *p.Score > best {
			best = *p.Score
			winner = p.TeamID
		}
	}

	round, err := s.tournaments.GetRound(ctx, *match.TournamentRoundID)
	if err != nil {
		return err
	}
	t, err := s.tournaments.GetByID(ctx, round.TournamentID)
	if err != nil {
		return err
	}

	if match.ExternalIDPrivate == nil {
		return fmt.Errorf("%w: match %d has no external bracket id", ErrValidationFailed, matchID)
	}
	if err := s.gateway.ReportMatchResult(ctx, t.ExternalIDPrivate, *match.ExternalIDPrivate, scores, winner); err != nil {
		return err
	}
	if round.ReleaseStatus >= models.RoundResults && match.ExternalIDPublic != nil {
		return s.gateway.ReportMatchResult(ctx, t.ExternalIDPublic, *match.ExternalIDPublic, scores, winner)
	}
	return nil
}

func pairKey(a, b int64) [2]int64 {
	if a > b {
		a, b = b, a
	}
	return [2]int64{a, b}
}
