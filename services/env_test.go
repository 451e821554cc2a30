package services

import (
	"context"
	"io"
	"log/slog"
	"math/rand"

	"github.com/scrimlab/match-engine/config"
	"github.com/scrimlab/match-engine/models"
	"github.com/scrimlab/match-engine/storage"
)

// fakeUploader records uploaded keys and serves deterministic public URLs.
type fakeUploader struct {
	uploaded []string
}

func (u *fakeUploader) Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*storage.UploadResult, error) {
	u.uploaded = append(u.uploaded, key)
	return &storage.UploadResult{Key: key, Location: u.GetPublicURL(key)}, nil
}

func (u *fakeUploader) Delete(ctx context.Context, key string) error { return nil }

func (u *fakeUploader) GetPublicURL(key string) string { return "https://cdn.test/" + key }

const testEpisode = "bc24"

// testEnv wires every service against the in-memory fakes.
type testEnv struct {
	cfg        *config.Config
	dispatcher *fakeDispatcher
	uploader   *fakeUploader
	episodes   *fakeEpisodeRepo
	teams      *fakeTeamRepo
	ratings    *fakeRatingRepo
	subs       *fakeSubmissionRepo
	matchRepo  *fakeMatchRepo
	scrims     *fakeScrimmageRepo

	ratingSvc *RatingService
	matchSvc  *MatchService
	subSvc    *SubmissionService
	scrimSvc  *ScrimmageService
	autoSvc   *AutoScrimService
}

func newTestEnv() *testEnv {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		SaturnMaxFailures:   3,
		CompileTopic:        "compile",
		ExecuteTopic:        "execute",
		CompileOrderingKey:  "compile-order",
		ExecuteOrderingKey:  "execute-order",
		MaxMapsPerScrimmage: 10,
		AutoscrimBestOf:     3,
	}

	env := &testEnv{
		cfg:        cfg,
		dispatcher: newFakeDispatcher(),
		uploader:   &fakeUploader{},
		episodes:   newFakeEpisodeRepo(),
		teams:      newFakeTeamRepo(),
		ratings:    newFakeRatingRepo(),
		subs:       newFakeSubmissionRepo(),
		matchRepo:  newFakeMatchRepo(),
		scrims:     newFakeScrimmageRepo(),
	}

	tx := fakeTxRunner{}
	rng := rand.New(rand.NewSource(1))
	env.ratingSvc = NewRatingService(logger, tx, env.matchRepo, env.ratings, env.teams)
	env.matchSvc = NewMatchService(cfg, logger, tx, env.matchRepo, env.dispatcher, env.ratingSvc, env.uploader)
	env.subSvc = NewSubmissionService(cfg, logger, tx, env.episodes, env.subs, env.dispatcher, env.uploader)
	env.scrimSvc = NewScrimmageService(cfg, logger, tx, env.scrims, env.teams, env.subs, env.episodes, env.matchSvc, rng)
	env.autoSvc = NewAutoScrimService(cfg, logger, tx, env.teams, env.episodes, env.matchSvc, rng)

	env.episodes.episodes[testEpisode] = &models.Episode{ShortID: testEpisode, Name: "Test Episode"}
	env.episodes.publicMaps[testEpisode] = []string{"plains", "maze", "islands", "quadrants", "rivers"}
	return env
}

// addTeam registers a regular team with manual policies, an initial rating
// snapshot, and an accepted submission.
func (e *testEnv) addTeam(id int64) *models.Submission {
	return e.addTeamWithStatus(id, models.TeamStatusRegular)
}

func (e *testEnv) addTeamWithStatus(id int64, status models.TeamStatus) *models.Submission {
	ratingID := e.ratings.seed(id, 1500, 0)
	e.teams.teams[id] = &models.Team{ID: id, EpisodeID: testEpisode, Status: status}
	e.teams.profiles[id] = &models.TeamProfile{
		TeamID:              id,
		RatingID:            ratingID,
		RankedScrimPolicy:   models.ScrimmagePolicyManual,
		UnrankedScrimPolicy: models.ScrimmagePolicyManual,
	}
	return e.subs.seedAccepted(testEpisode, id)
}

func boolPtr(v bool) *bool { return &v }
