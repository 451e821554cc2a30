package services

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/scrimlab/match-engine/config"
	"github.com/scrimlab/match-engine/db"
	"github.com/scrimlab/match-engine/models"
	"github.com/scrimlab/match-engine/repositories"
	"github.com/scrimlab/match-engine/sparring"
)

// AutoScrimService periodically pairs every scrimmage-ready team in an
// episode into ranked matches over a sparring graph: the complete graph
// for up to four teams, a 4-regular near-neighbor graph above that. Edge
// directions and the edge order are randomized for color and
// queue-priority fairness.
type AutoScrimService struct {
	cfg      *config.Config
	logger   *slog.Logger
	tx       db.TxRunner
	teams    repositories.TeamRepository
	episodes repositories.EpisodeRepository
	matches  *MatchService

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewAutoScrimService(
	cfg *config.Config,
	logger *slog.Logger,
	tx db.TxRunner,
	teams repositories.TeamRepository,
	episodes repositories.EpisodeRepository,
	matches *MatchService,
	rng *rand.Rand,
) *AutoScrimService {
	return &AutoScrimService{
		cfg:      cfg,
		logger:   logger,
		tx:       tx,
		teams:    teams,
		episodes: episodes,
		matches:  matches,
		rng:      rng,
	}
}

// Run generates one autoscrim round for the episode and returns how many
// matches it materialized. Team indices into the sparring graph follow the
// rating-ordered standings, so graph locality pairs teams of similar
// strength.
func (s *AutoScrimService) Run(ctx context.Context, episodeID string) (int, error) {
	standings, err := s.teams.ListScrimmageReady(ctx, episodeID)
	if err != nil {
		return 0, err
	}
	if len(standings) <= 1 {
		return 0, nil
	}

	mapNames, err := s.episodes.ListPublicMapNames(ctx, episodeID)
	if err != nil {
		return 0, err
	}
	bestOf := s.cfg.AutoscrimBestOf
	if len(mapNames) < bestOf {
		s.logger.WarnContext(ctx, "skipping autoscrim round",
			"episode_id", episodeID, "public_maps", len(mapNames), "best_of", bestOf)
		return 0, nil
	}

	s.rngMu.Lock()
	var edges []sparring.Edge
	if len(standings) <= 4 {
		edges = sparring.RoundRobin(len(standings))
	} else {
		if edges, err = sparring.Regular4(len(standings), s.rng); err != nil {
			s.rngMu.Unlock()
			return 0, err
		}
	}
	sparring.FlipAndShuffle(edges, s.rng)

	matchMaps := make([][]string, len(edges))
	for i := range edges {
		matchMaps[i] = sampleMaps(mapNames, bestOf, s.rng)
	}
	s.rngMu.Unlock()

	err = s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		created := make([]*models.Match, 0, len(edges))
		for i, edge := range edges {
			u, v := standings[edge.U], standings[edge.V]
			match, err := s.matches.CreateInTx(ctx, exec, MatchParams{
				EpisodeID: episodeID,
				Sides: []MatchSide{
					{TeamID: u.TeamID, SubmissionID: u.SubmissionID},
					{TeamID: v.TeamID, SubmissionID: v.SubmissionID},
				},
				Maps:           matchMaps[i],
				IsRanked:       true,
				AlternateOrder: true,
			})
			if err != nil {
				return err
			}
			created = append(created, match)
		}
		return s.matches.EnqueueInTx(ctx, exec, created)
	})
	if err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "autoscrim round generated",
		"operation", "autoscrim", "episode_id", episodeID,
		"teams", len(standings), "matches", len(edges))
	return len(edges), nil
}
