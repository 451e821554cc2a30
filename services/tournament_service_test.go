package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrimlab/match-engine/challonge"
	"github.com/scrimlab/match-engine/models"
	"github.com/scrimlab/match-engine/repositories"
)

type fakeTournamentRepo struct {
	tournaments map[int64]*models.Tournament
	rounds      map[int64]*models.TournamentRound
}

func newFakeTournamentRepo() *fakeTournamentRepo {
	return &fakeTournamentRepo{
		tournaments: make(map[int64]*models.Tournament),
		rounds:      make(map[int64]*models.TournamentRound),
	}
}

func (r *fakeTournamentRepo) GetByID(ctx context.Context, id int64) (*models.Tournament, error) {
	t, ok := r.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	clone := *t
	return &clone, nil
}

func (r *fakeTournamentRepo) GetRound(ctx context.Context, id int64) (*models.TournamentRound, error) {
	round, ok := r.rounds[id]
	if !ok {
		return nil, repositories.ErrRoundNotFound
	}
	clone := *round
	return &clone, nil
}

func (r *fakeTournamentRepo) SetExternalIDs(ctx context.Context, exec repositories.SQLExecutor, tournamentID int64, private, public string) error {
	t, ok := r.tournaments[tournamentID]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.ExternalIDPrivate, t.ExternalIDPublic = private, public
	return nil
}

func (r *fakeTournamentRepo) SetRoundExternalID(ctx context.Context, exec repositories.SQLExecutor, roundID int64, externalRound int) error {
	round, ok := r.rounds[roundID]
	if !ok {
		return repositories.ErrRoundNotFound
	}
	round.ExternalRound = externalRound
	return nil
}

// fakeGateway records every bracket-service call.
type fakeGateway struct {
	created  []string
	added    map[string][]challonge.SeededTeam
	started  []string
	pairings map[string][]challonge.Pairing
	reported []reportedResult
	notReady bool
}

type reportedResult struct {
	Bracket  string
	MatchID  string
	Scores   []int
	WinnerID int64
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		added:    make(map[string][]challonge.SeededTeam),
		pairings: make(map[string][]challonge.Pairing),
	}
}

func (g *fakeGateway) CreateTournament(ctx context.Context, name, slug string, private bool) (string, error) {
	g.created = append(g.created, slug)
	return slug, nil
}

func (g *fakeGateway) BulkAddTeams(ctx context.Context, tournamentID string, teams []challonge.SeededTeam) error {
	g.added[tournamentID] = teams
	return nil
}

func (g *fakeGateway) StartTournament(ctx context.Context, tournamentID string) error {
	g.started = append(g.started, tournamentID)
	return nil
}

func (g *fakeGateway) GetRoundPairings(ctx context.Context, tournamentID string, round int) ([]challonge.Pairing, error) {
	if g.notReady {
		return nil, challonge.ErrBracketNotReady
	}
	return g.pairings[tournamentID], nil
}

func (g *fakeGateway) ReportMatchResult(ctx context.Context, tournamentID, matchID string, scores []int, winnerTeamID int64) error {
	g.reported = append(g.reported, reportedResult{Bracket: tournamentID, MatchID: matchID, Scores: scores, WinnerID: winnerTeamID})
	return nil
}

type tournamentEnv struct {
	*testEnv
	repo    *fakeTournamentRepo
	gateway *fakeGateway
	svc     *TournamentService
}

func newTournamentEnv() *tournamentEnv {
	base := newTestEnv()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &tournamentEnv{
		testEnv: base,
		repo:    newFakeTournamentRepo(),
		gateway: newFakeGateway(),
	}
	env.svc = NewTournamentService(base.cfg, logger, fakeTxRunner{}, env.repo, base.teams, base.matchRepo, base.matchSvc, env.gateway)

	env.repo.tournaments[1] = &models.Tournament{
		ID:                1,
		EpisodeID:         testEpisode,
		Name:              "Winter Finals",
		ExternalIDPrivate: "engine_1_private",
		ExternalIDPublic:  "engine_1_public",
	}
	env.repo.rounds[1] = &models.TournamentRound{
		ID:            1,
		TournamentID:  1,
		ExternalRound: 1,
		Name:          "Round of 16",
		Maps:          []string{"plains", "maze", "islands"},
	}
	return env
}

// pairBoth registers the same team pairing in both brackets under distinct
// external match ids.
func (env *tournamentEnv) pairBoth(n int, teamA, teamB *models.Submission) {
	pairing := challonge.Pairing{
		Sides: [2]challonge.PairingSide{
			{TeamID: teamA.TeamID, SubmissionID: teamA.ID},
			{TeamID: teamB.TeamID, SubmissionID: teamB.ID},
		},
	}
	private, public := pairing, pairing
	private.ExternalMatchID = fmt.Sprintf("priv-%d", n)
	public.ExternalMatchID = fmt.Sprintf("pub-%d", n)
	env.gateway.pairings["engine_1_private"] = append(env.gateway.pairings["engine_1_private"], private)
	env.gateway.pairings["engine_1_public"] = append(env.gateway.pairings["engine_1_public"], public)
}

func TestCreateBracketsRecordsBothIDs(t *testing.T) {
	env := newTournamentEnv()
	env.repo.tournaments[1].ExternalIDPrivate = ""
	env.repo.tournaments[1].ExternalIDPublic = ""

	require.NoError(t, env.svc.CreateBrackets(context.Background(), 1))
	assert.Equal(t, []string{"engine_1_private", "engine_1_public"}, env.gateway.created)
	assert.Equal(t, "engine_1_private", env.repo.tournaments[1].ExternalIDPrivate)
	assert.Equal(t, "engine_1_public", env.repo.tournaments[1].ExternalIDPublic)
}

func TestSeedTeamsSeedsByStanding(t *testing.T) {
	env := newTournamentEnv()
	seedStandings(env.testEnv, 4)

	n, err := env.svc.SeedTeams(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	for _, bracket := range []string{"engine_1_private", "engine_1_public"} {
		teams := env.gateway.added[bracket]
		require.Len(t, teams, 4, bracket)
		for i, team := range teams {
			assert.Equal(t, i+1, team.Seed)
			assert.Equal(t, int64(i+1), team.TeamID)
		}
	}
}

func TestSeedTeamsNeedsTwoTeams(t *testing.T) {
	env := newTournamentEnv()
	seedStandings(env.testEnv, 1)

	_, err := env.svc.SeedTeams(context.Background(), 1)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestEnqueueRoundMaterializesPairings(t *testing.T) {
	env := newTournamentEnv()
	subA, subB := env.addTeam(1), env.addTeam(2)
	subC, subD := env.addTeam(3), env.addTeam(4)
	env.pairBoth(1, subA, subB)
	env.pairBoth(2, subC, subD)

	n, err := env.svc.EnqueueRound(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	matches, err := env.matchSvc.ListByEpisode(context.Background(), testEpisode, 50, 0)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	for _, match := range matches {
		assert.False(t, match.IsRanked)
		assert.True(t, match.AlternateOrder)
		require.NotNil(t, match.TournamentRoundID)
		assert.Equal(t, int64(1), *match.TournamentRoundID)
		assert.Equal(t, models.SaturnStatusQueued, match.Status)
		assert.Equal(t, []string{"plains", "maze", "islands"}, match.Maps)

		// Private and public ids correlate through the team pair.
		require.NotNil(t, match.ExternalIDPrivate)
		require.NotNil(t, match.ExternalIDPublic)
		assert.Equal(t, "priv", (*match.ExternalIDPrivate)[:4])
		assert.Equal(t, "pub", (*match.ExternalIDPublic)[:3])
		assert.Equal(t, (*match.ExternalIDPrivate)[5:], (*match.ExternalIDPublic)[4:])
	}
}

func TestEnqueueRoundPropagatesBracketNotReady(t *testing.T) {
	env := newTournamentEnv()
	env.gateway.notReady = true

	_, err := env.svc.EnqueueRound(context.Background(), 1)
	assert.ErrorIs(t, err, challonge.ErrBracketNotReady)
}

func TestEnqueueRoundRequiresMaps(t *testing.T) {
	env := newTournamentEnv()
	env.repo.rounds[1].Maps = nil

	_, err := env.svc.EnqueueRound(context.Background(), 1)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestReportResultHonorsReleaseStatus(t *testing.T) {
	env := newTournamentEnv()
	subA, subB := env.addTeam(1), env.addTeam(2)
	env.pairBoth(1, subA, subB)

	_, err := env.svc.EnqueueRound(context.Background(), 1)
	require.NoError(t, err)
	matches, err := env.matchSvc.ListByEpisode(context.Background(), testEpisode, 50, 0)
	require.NoError(t, err)
	matchID := matches[0].ID
	reportCompleted(t, env.testEnv, matchID, []int{1, 2})

	// Round results still hidden: only the private bracket hears about it.
	require.NoError(t, env.svc.ReportResult(context.Background(), matchID))
	require.Len(t, env.gateway.reported, 1)
	assert.Equal(t, "engine_1_private", env.gateway.reported[0].Bracket)
	assert.Equal(t, int64(2), env.gateway.reported[0].WinnerID)
	assert.Equal(t, []int{1, 2}, env.gateway.reported[0].Scores)

	env.repo.rounds[1].ReleaseStatus = models.RoundResults
	require.NoError(t, env.svc.ReportResult(context.Background(), matchID))
	require.Len(t, env.gateway.reported, 3)
	assert.Equal(t, "engine_1_public", env.gateway.reported[2].Bracket)
}

func TestReportResultRejectsUnfinishedMatches(t *testing.T) {
	env := newTournamentEnv()
	subA, subB := env.addTeam(1), env.addTeam(2)
	env.pairBoth(1, subA, subB)

	_, err := env.svc.EnqueueRound(context.Background(), 1)
	require.NoError(t, err)
	matches, err := env.matchSvc.ListByEpisode(context.Background(), testEpisode, 50, 0)
	require.NoError(t, err)

	err = env.svc.ReportResult(context.Background(), matches[0].ID)
	assert.ErrorIs(t, err, ErrValidationFailed)

	// A completed non-tournament match is rejected too.
	plain := materialize(t, env.testEnv, false, subA, subB)
	reportCompleted(t, env.testEnv, plain.ID, []int{1, 0})
	err = env.svc.ReportResult(context.Background(), plain.ID)
	assert.ErrorIs(t, err, ErrValidationFailed)
}
