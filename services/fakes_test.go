package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/scrimlab/match-engine/glicko2"
	"github.com/scrimlab/match-engine/models"
	"github.com/scrimlab/match-engine/repositories"
	"github.com/scrimlab/match-engine/saturn"
)

// fakeTxRunner executes the function directly. The in-memory repositories
// below ignore the executor, so tests exercise service logic without a
// database. Rollback is not simulated; tests assert on returned errors.
type fakeTxRunner struct{}

func (fakeTxRunner) WithinTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	return fn(nil)
}

// fakeDispatcher records publishes and resumes. failAt holds 1-based
// publish sequence numbers that should fail.
type fakeDispatcher struct {
	mu        sync.Mutex
	seq       int
	published []fakePublish
	failAt    map[int]bool
	resumes   map[string]int
}

type fakePublish struct {
	Topic       string
	OrderingKey string
	Payload     []byte
	MessageID   string
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{
		failAt:  make(map[int]bool),
		resumes: make(map[string]int),
	}
}

func (d *fakeDispatcher) Publish(ctx context.Context, topic, orderingKey string, payload []byte) *saturn.PublishResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	if d.failAt[d.seq] {
		return saturn.ResolvedResult("", fmt.Errorf("simulated publisher failure"))
	}
	id := fmt.Sprintf("m-%d", d.seq)
	d.published = append(d.published, fakePublish{Topic: topic, OrderingKey: orderingKey, Payload: payload, MessageID: id})
	return saturn.ResolvedResult(id, nil)
}

func (d *fakeDispatcher) Resume(ctx context.Context, topic, orderingKey string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resumes[topic+"/"+orderingKey]++
	return nil
}

// --- episode ---

type fakeEpisodeRepo struct {
	episodes   map[string]*models.Episode
	frozen     map[string]bool
	publicMaps map[string][]string
}

func newFakeEpisodeRepo() *fakeEpisodeRepo {
	return &fakeEpisodeRepo{
		episodes:   make(map[string]*models.Episode),
		frozen:     make(map[string]bool),
		publicMaps: make(map[string][]string),
	}
}

func (r *fakeEpisodeRepo) GetByShortID(ctx context.Context, shortID string) (*models.Episode, error) {
	e, ok := r.episodes[shortID]
	if !ok {
		return nil, repositories.ErrEpisodeNotFound
	}
	return e, nil
}

func (r *fakeEpisodeRepo) IsFrozen(ctx context.Context, shortID string, now time.Time) (bool, error) {
	if _, ok := r.episodes[shortID]; !ok {
		return false, repositories.ErrEpisodeNotFound
	}
	return r.frozen[shortID], nil
}

func (r *fakeEpisodeRepo) ListPublicMapNames(ctx context.Context, episodeID string) ([]string, error) {
	return r.publicMaps[episodeID], nil
}

func (r *fakeEpisodeRepo) ListAutoscrimEpisodes(ctx context.Context, now time.Time) ([]*models.Episode, error) {
	return nil, nil
}

// --- team ---

type fakeTeamRepo struct {
	teams     map[int64]*models.Team
	profiles  map[int64]*models.TeamProfile
	standings []repositories.TeamStanding
}

func newFakeTeamRepo() *fakeTeamRepo {
	return &fakeTeamRepo{
		teams:    make(map[int64]*models.Team),
		profiles: make(map[int64]*models.TeamProfile),
	}
}

func (r *fakeTeamRepo) GetByID(ctx context.Context, id int64) (*models.Team, error) {
	t, ok := r.teams[id]
	if !ok {
		return nil, repositories.ErrTeamNotFound
	}
	return t, nil
}

func (r *fakeTeamRepo) GetProfile(ctx context.Context, exec repositories.SQLExecutor, teamID int64) (*models.TeamProfile, error) {
	p, ok := r.profiles[teamID]
	if !ok {
		return nil, repositories.ErrProfileNotFound
	}
	return p, nil
}

func (r *fakeTeamRepo) GetProfileForUpdate(ctx context.Context, exec repositories.SQLExecutor, teamID int64) (*models.TeamProfile, error) {
	return r.GetProfile(ctx, exec, teamID)
}

func (r *fakeTeamRepo) UpdateProfileRating(ctx context.Context, exec repositories.SQLExecutor, teamID, ratingID int64) error {
	p, ok := r.profiles[teamID]
	if !ok {
		return repositories.ErrProfileNotFound
	}
	p.RatingID = ratingID
	return nil
}

func (r *fakeTeamRepo) ListScrimmageReady(ctx context.Context, episodeID string) ([]repositories.TeamStanding, error) {
	return r.standings, nil
}

// --- rating ---

type fakeRatingRepo struct {
	nextID  int64
	ratings map[int64]*models.Rating
}

func newFakeRatingRepo() *fakeRatingRepo {
	return &fakeRatingRepo{ratings: make(map[int64]*models.Rating)}
}

func (r *fakeRatingRepo) Create(ctx context.Context, exec repositories.SQLExecutor, rating *models.Rating) error {
	r.nextID++
	rating.ID = r.nextID
	rating.CreatedAt = time.Now()
	clone := *rating
	r.ratings[rating.ID] = &clone
	return nil
}

func (r *fakeRatingRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int64) (*models.Rating, error) {
	rating, ok := r.ratings[id]
	if !ok {
		return nil, fmt.Errorf("rating %d not found", id)
	}
	clone := *rating
	return &clone, nil
}

func (r *fakeRatingRepo) InitialForTeam(ctx context.Context, exec repositories.SQLExecutor, teamID int64) (*models.Rating, error) {
	for _, rating := range r.ratings {
		if rating.TeamID == teamID && rating.N == 0 {
			clone := *rating
			return &clone, nil
		}
	}
	initial := glicko2.Default()
	rating := &models.Rating{
		TeamID:     teamID,
		Mean:       initial.Mean,
		Deviation:  initial.Deviation,
		Volatility: initial.Volatility,
	}
	if err := r.Create(ctx, exec, rating); err != nil {
		return nil, err
	}
	return rating, nil
}

// seed inserts a rating snapshot directly and returns its id.
func (r *fakeRatingRepo) seed(teamID int64, mean float64, n int) int64 {
	rating := &models.Rating{TeamID: teamID, Mean: mean, Deviation: 80, Volatility: glicko2.DefaultVolatility, N: n}
	_ = r.Create(context.Background(), nil, rating)
	return rating.ID
}

// --- submission ---

type fakeSubmissionRepo struct {
	nextID      int64
	submissions map[int64]*models.Submission
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{submissions: make(map[int64]*models.Submission)}
}

func (r *fakeSubmissionRepo) Create(ctx context.Context, exec repositories.SQLExecutor, s *models.Submission) error {
	r.nextID++
	s.ID = r.nextID
	s.CreatedAt = time.Now()
	clone := *s
	r.submissions[s.ID] = &clone
	return nil
}

func (r *fakeSubmissionRepo) GetByID(ctx context.Context, id int64) (*models.Submission, error) {
	s, ok := r.submissions[id]
	if !ok {
		return nil, repositories.ErrSubmissionNotFound
	}
	clone := *s
	return &clone, nil
}

func (r *fakeSubmissionRepo) GetForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int64) (*models.Submission, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeSubmissionRepo) LatestAccepted(ctx context.Context, exec repositories.SQLExecutor, teamID int64) (*models.Submission, error) {
	var latest *models.Submission
	for _, s := range r.submissions {
		if s.TeamID == teamID && s.Accepted && (latest == nil || s.ID > latest.ID) {
			latest = s
		}
	}
	if latest == nil {
		return nil, repositories.ErrNoAcceptedSubmission
	}
	clone := *latest
	return &clone, nil
}

func (r *fakeSubmissionRepo) ListByTeam(ctx context.Context, teamID int64, limit, offset int) ([]*models.Submission, error) {
	var out []*models.Submission
	for _, s := range r.submissions {
		if s.TeamID == teamID {
			clone := *s
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *fakeSubmissionRepo) ListIDsByStatus(ctx context.Context, episodeID string, statuses []models.SaturnStatus) ([]int64, error) {
	want := make(map[models.SaturnStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var ids []int64
	for _, s := range r.submissions {
		if s.EpisodeID == episodeID && want[s.Status] {
			ids = append(ids, s.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *fakeSubmissionRepo) LockForEnqueue(ctx context.Context, exec repositories.SQLExecutor, ids []int64) ([]*models.Submission, error) {
	out := make([]*models.Submission, 0, len(ids))
	for _, id := range ids {
		s, ok := r.submissions[id]
		if !ok {
			return nil, repositories.ErrSubmissionNotFound
		}
		clone := *s
		out = append(out, &clone)
	}
	return out, nil
}

func (r *fakeSubmissionRepo) UpdateInvocation(ctx context.Context, exec repositories.SQLExecutor, id int64, status models.SaturnStatus, logs string, numFailures int) error {
	s, ok := r.submissions[id]
	if !ok {
		return repositories.ErrSubmissionNotFound
	}
	s.Status, s.Logs, s.NumFailures = status, logs, numFailures
	return nil
}

func (r *fakeSubmissionRepo) UpdateInvocationBatch(ctx context.Context, exec repositories.SQLExecutor, rows []repositories.InvocationRow) error {
	for _, row := range rows {
		s, ok := r.submissions[row.ID]
		if !ok {
			return repositories.ErrSubmissionNotFound
		}
		s.Status = models.SaturnStatus(row.Status)
		s.Logs = row.Logs
		s.NumFailures = row.NumFailures
		s.MessageID = row.MessageID
	}
	return nil
}

func (r *fakeSubmissionRepo) SetAccepted(ctx context.Context, exec repositories.SQLExecutor, id int64, accepted bool) error {
	s, ok := r.submissions[id]
	if !ok {
		return repositories.ErrSubmissionNotFound
	}
	s.Accepted = accepted
	return nil
}

// seedAccepted inserts an accepted submission for the team.
func (r *fakeSubmissionRepo) seedAccepted(episodeID string, teamID int64) *models.Submission {
	s := &models.Submission{
		EpisodeID: episodeID,
		TeamID:    teamID,
		Status:    models.SaturnStatusCompleted,
		Accepted:  true,
	}
	_ = r.Create(context.Background(), nil, s)
	r.submissions[s.ID].Accepted = true
	return r.submissions[s.ID]
}

// --- match ---

type fakeMatchRepo struct {
	nextMatchID       int64
	nextParticipantID int64
	matches           map[int64]*models.Match
	participants      map[int64]*models.MatchParticipant
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{
		matches:      make(map[int64]*models.Match),
		participants: make(map[int64]*models.MatchParticipant),
	}
}

func (r *fakeMatchRepo) Create(ctx context.Context, exec repositories.SQLExecutor, m *models.Match) error {
	r.nextMatchID++
	m.ID = r.nextMatchID
	m.CreatedAt = time.Now()
	clone := *m
	clone.Participants = nil
	r.matches[m.ID] = &clone
	return nil
}

func (r *fakeMatchRepo) AddMaps(ctx context.Context, exec repositories.SQLExecutor, matchID int64, maps []string) error {
	m, ok := r.matches[matchID]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.Maps = append([]string(nil), maps...)
	return nil
}

func (r *fakeMatchRepo) BulkCreateParticipants(ctx context.Context, exec repositories.SQLExecutor, parts []*models.MatchParticipant) error {
	for _, p := range parts {
		r.nextParticipantID++
		p.ID = r.nextParticipantID
		clone := *p
		r.participants[p.ID] = &clone
	}
	return nil
}

func (r *fakeMatchRepo) LatestParticipationBefore(ctx context.Context, exec repositories.SQLExecutor, teamID, beforeID int64) (*int64, error) {
	var best *int64
	for id, p := range r.participants {
		if p.TeamID == teamID && id < beforeID && (best == nil || id > *best) {
			v := id
			best = &v
		}
	}
	return best, nil
}

func (r *fakeMatchRepo) SetPreviousParticipation(ctx context.Context, exec repositories.SQLExecutor, participantID, previousID int64) error {
	p, ok := r.participants[participantID]
	if !ok {
		return repositories.ErrParticipantNotFound
	}
	p.PreviousParticipationID = &previousID
	return nil
}

func (r *fakeMatchRepo) load(id int64) (*models.Match, error) {
	m, ok := r.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	clone := *m
	clone.Participants = r.matchParticipants(id)
	return &clone, nil
}

func (r *fakeMatchRepo) matchParticipants(matchID int64) []*models.MatchParticipant {
	var out []*models.MatchParticipant
	for _, p := range r.participants {
		if p.MatchID == matchID {
			clone := *p
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerIndex < out[j].PlayerIndex })
	return out
}

func (r *fakeMatchRepo) GetByID(ctx context.Context, id int64) (*models.Match, error) {
	return r.load(id)
}

func (r *fakeMatchRepo) GetForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int64) (*models.Match, error) {
	return r.load(id)
}

func (r *fakeMatchRepo) LockForEnqueue(ctx context.Context, exec repositories.SQLExecutor, ids []int64) ([]*models.Match, error) {
	out := make([]*models.Match, 0, len(ids))
	for _, id := range ids {
		m, err := r.load(id)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *fakeMatchRepo) ListByEpisode(ctx context.Context, episodeID string, limit, offset int) ([]*models.Match, error) {
	var out []*models.Match
	for id, m := range r.matches {
		if m.EpisodeID == episodeID {
			loaded, _ := r.load(id)
			out = append(out, loaded)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *fakeMatchRepo) ListIDsByStatus(ctx context.Context, episodeID string, statuses []models.SaturnStatus) ([]int64, error) {
	want := make(map[models.SaturnStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var ids []int64
	for id, m := range r.matches {
		if m.EpisodeID == episodeID && want[m.Status] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *fakeMatchRepo) UpdateInvocation(ctx context.Context, exec repositories.SQLExecutor, id int64, status models.SaturnStatus, logs string, numFailures int) error {
	m, ok := r.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.Status, m.Logs, m.NumFailures = status, logs, numFailures
	return nil
}

func (r *fakeMatchRepo) UpdateInvocationBatch(ctx context.Context, exec repositories.SQLExecutor, rows []repositories.InvocationRow) error {
	for _, row := range rows {
		m, ok := r.matches[row.ID]
		if !ok {
			return repositories.ErrMatchNotFound
		}
		m.Status = models.SaturnStatus(row.Status)
		m.Logs = row.Logs
		m.NumFailures = row.NumFailures
		m.MessageID = row.MessageID
	}
	return nil
}

func (r *fakeMatchRepo) SetScores(ctx context.Context, exec repositories.SQLExecutor, matchID int64, scores []int) error {
	parts := r.matchParticipants(matchID)
	if len(parts) != len(scores) {
		return repositories.ErrParticipantNotFound
	}
	for i, p := range parts {
		score := scores[i]
		r.participants[p.ID].Score = &score
	}
	return nil
}

func (r *fakeMatchRepo) ParticipantsForUpdate(ctx context.Context, exec repositories.SQLExecutor, matchID int64) ([]*models.MatchParticipant, error) {
	return r.matchParticipants(matchID), nil
}

func (r *fakeMatchRepo) GetParticipantForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int64) (*models.MatchParticipant, error) {
	p, ok := r.participants[id]
	if !ok {
		return nil, repositories.ErrParticipantNotFound
	}
	clone := *p
	return &clone, nil
}

func (r *fakeMatchRepo) NextParticipation(ctx context.Context, exec repositories.SQLExecutor, teamID, afterID int64) (*models.MatchParticipant, error) {
	var best *models.MatchParticipant
	for _, p := range r.participants {
		if p.TeamID == teamID && p.ID > afterID && (best == nil || p.ID < best.ID) {
			best = p
		}
	}
	if best == nil {
		return nil, nil
	}
	clone := *best
	return &clone, nil
}

func (r *fakeMatchRepo) SetParticipantRatings(ctx context.Context, exec repositories.SQLExecutor, participantID int64, preID, postID int64) error {
	p, ok := r.participants[participantID]
	if !ok {
		return repositories.ErrParticipantNotFound
	}
	if p.RatingPostID != nil {
		return repositories.ErrParticipantNotFound
	}
	p.RatingPreID = &preID
	p.RatingPostID = &postID
	return nil
}

func (r *fakeMatchRepo) SetExternalBracketIDs(ctx context.Context, exec repositories.SQLExecutor, matchID int64, private, public string) error {
	m, ok := r.matches[matchID]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.ExternalIDPrivate = &private
	m.ExternalIDPublic = &public
	return nil
}

// --- scrimmage ---

type fakeScrimmageRepo struct {
	nextID   int64
	requests map[int64]*models.ScrimmageRequest
}

func newFakeScrimmageRepo() *fakeScrimmageRepo {
	return &fakeScrimmageRepo{requests: make(map[int64]*models.ScrimmageRequest)}
}

func (r *fakeScrimmageRepo) Create(ctx context.Context, exec repositories.SQLExecutor, req *models.ScrimmageRequest) error {
	r.nextID++
	req.ID = r.nextID
	req.CreatedAt = time.Now()
	clone := *req
	r.requests[req.ID] = &clone
	return nil
}

func (r *fakeScrimmageRepo) GetByID(ctx context.Context, id int64) (*models.ScrimmageRequest, error) {
	req, ok := r.requests[id]
	if !ok {
		return nil, repositories.ErrScrimmageNotFound
	}
	clone := *req
	return &clone, nil
}

func (r *fakeScrimmageRepo) LockPending(ctx context.Context, exec repositories.SQLExecutor, ids []int64) ([]*models.ScrimmageRequest, error) {
	var out []*models.ScrimmageRequest
	for _, id := range ids {
		req, ok := r.requests[id]
		if !ok || req.Status != models.ScrimmagePending {
			continue
		}
		clone := *req
		out = append(out, &clone)
	}
	return out, nil
}

func (r *fakeScrimmageRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int64, status models.ScrimmageStatus) error {
	req, ok := r.requests[id]
	if !ok {
		return repositories.ErrScrimmageNotFound
	}
	req.Status = status
	return nil
}

func (r *fakeScrimmageRepo) ListInbox(ctx context.Context, teamID int64) ([]*models.ScrimmageRequest, error) {
	return r.list(func(req *models.ScrimmageRequest) bool { return req.ResponderID == teamID }), nil
}

func (r *fakeScrimmageRepo) ListOutbox(ctx context.Context, teamID int64) ([]*models.ScrimmageRequest, error) {
	return r.list(func(req *models.ScrimmageRequest) bool { return req.RequesterID == teamID }), nil
}

func (r *fakeScrimmageRepo) list(match func(*models.ScrimmageRequest) bool) []*models.ScrimmageRequest {
	var out []*models.ScrimmageRequest
	for _, req := range r.requests {
		if req.Status == models.ScrimmagePending && match(req) {
			clone := *req
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}
