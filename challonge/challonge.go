package challonge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrBracketNotReady is returned by GetRoundPairings when not every match
// of the requested round is open yet. The admin retries once the bracket
// service has advanced.
var ErrBracketNotReady = errors.New("bracket round is not fully open")

// SeededTeam is one bracket entrant. Seed is 1-indexed; the team and
// submission ids travel as opaque metadata and come back in pairings.
type SeededTeam struct {
	Name         string
	Seed         int
	TeamID       int64
	SubmissionID int64
}

// PairingSide identifies one side of a bracket match.
type PairingSide struct {
	TeamID       int64
	SubmissionID int64
}

// Pairing is one open match of a bracket round.
type Pairing struct {
	ExternalMatchID string
	Sides           [2]PairingSide
}

// Gateway is the engine's view of the external bracket service. Every call
// addresses one bracket by its external id; the engine keeps a private and
// a public bracket per tournament and calls twice.
type Gateway interface {
	CreateTournament(ctx context.Context, name, slug string, private bool) (string, error)

	BulkAddTeams(ctx context.Context, externalID string, teams []SeededTeam) error

	StartTournament(ctx context.Context, externalID string) error

	// GetRoundPairings returns the round's matches with the team and
	// submission metadata attached. ErrBracketNotReady when any match of
	// the round is not open.
	GetRoundPairings(ctx context.Context, externalID string, round int) ([]Pairing, error)

	// ReportMatchResult posts the score line and advances the winner.
	ReportMatchResult(ctx context.Context, externalID, externalMatchID string, scores []int, winnerTeamID int64) error
}

// Client talks to the Challonge v1 API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type tournamentEnvelope struct {
	Tournament struct {
		ID  int64  `json:"id"`
		URL string `json:"url"`
	} `json:"tournament"`
}

type matchEnvelope struct {
	Match struct {
		ID        int64  `json:"id"`
		Round     int    `json:"round"`
		State     string `json:"state"`
		Player1ID *int64 `json:"player1_id"`
		Player2ID *int64 `json:"player2_id"`
	} `json:"match"`
}

type participantEnvelope struct {
	Participant struct {
		ID   int64  `json:"id"`
		Misc string `json:"misc"`
	} `json:"participant"`
}

func (c *Client) CreateTournament(ctx context.Context, name, slug string, private bool) (string, error) {
	form := url.Values{}
	form.Set("tournament[name]", name)
	form.Set("tournament[url]", slug)
	form.Set("tournament[tournament_type]", "single elimination")
	form.Set("tournament[private]", strconv.FormatBool(private))

	var out tournamentEnvelope
	if err := c.do(ctx, http.MethodPost, "/tournaments.json", form, &out); err != nil {
		return "", fmt.Errorf("failed to create bracket %q: %w", slug, err)
	}
	return out.Tournament.URL, nil
}

func (c *Client) BulkAddTeams(ctx context.Context, externalID string, teams []SeededTeam) error {
	form := url.Values{}
	for _, t := range teams {
		form.Add("participants[][name]", t.Name)
		form.Add("participants[][seed]", strconv.Itoa(t.Seed))
		form.Add("participants[][misc]", encodeMisc(t.TeamID, t.SubmissionID))
	}
	path := fmt.Sprintf("/tournaments/%s/participants/bulk_add.json", url.PathEscape(externalID))
	if err := c.do(ctx, http.MethodPost, path, form, nil); err != nil {
		return fmt.Errorf("failed to add %d teams to bracket %s: %w", len(teams), externalID, err)
	}
	return nil
}

func (c *Client) StartTournament(ctx context.Context, externalID string) error {
	path := fmt.Sprintf("/tournaments/%s/start.json", url.PathEscape(externalID))
	if err := c.do(ctx, http.MethodPost, path, url.Values{}, nil); err != nil {
		return fmt.Errorf("failed to start bracket %s: %w", externalID, err)
	}
	return nil
}

func (c *Client) GetRoundPairings(ctx context.Context, externalID string, round int) ([]Pairing, error) {
	sides, err := c.participantSides(ctx, externalID)
	if err != nil {
		return nil, err
	}

	var all []matchEnvelope
	path := fmt.Sprintf("/tournaments/%s/matches.json", url.PathEscape(externalID))
	if err := c.do(ctx, http.MethodGet, path, nil, &all); err != nil {
		return nil, fmt.Errorf("failed to list matches of bracket %s: %w", externalID, err)
	}

	var pairings []Pairing
	for _, env := range all {
		m := env.Match
		if m.Round != round {
			continue
		}
		if m.State != "open" {
			return nil, fmt.Errorf("%w: match %d in state %q", ErrBracketNotReady, m.ID, m.State)
		}
		if m.Player1ID == nil || m.Player2ID == nil {
			return nil, fmt.Errorf("%w: match %d has unassigned players", ErrBracketNotReady, m.ID)
		}
		p := Pairing{ExternalMatchID: strconv.FormatInt(m.ID, 10)}
		for i, pid := range []int64{*m.Player1ID, *m.Player2ID} {
			side, ok := sides[pid]
			if !ok {
				return nil, fmt.Errorf("bracket %s references unknown participant %d", externalID, pid)
			}
			p.Sides[i] = side
		}
		pairings = append(pairings, p)
	}
	return pairings, nil
}

func (c *Client) ReportMatchResult(ctx context.Context, externalID, externalMatchID string, scores []int, winnerTeamID int64) error {
	sides, err := c.participantSides(ctx, externalID)
	if err != nil {
		return err
	}
	var winnerID int64
	for pid, side := range sides {
		if side.TeamID == winnerTeamID {
			winnerID = pid
			break
		}
	}
	if winnerID == 0 {
		return fmt.Errorf("bracket %s has no participant for team %d", externalID, winnerTeamID)
	}

	csv := make([]string, 0, 1)
	if len(scores) == 2 {
		csv = append(csv, fmt.Sprintf("%d-%d", scores[0], scores[1]))
	}
	form := url.Values{}
	form.Set("match[scores_csv]", strings.Join(csv, ","))
	form.Set("match[winner_id]", strconv.FormatInt(winnerID, 10))

	path := fmt.Sprintf("/tournaments/%s/matches/%s.json", url.PathEscape(externalID), url.PathEscape(externalMatchID))
	if err := c.do(ctx, http.MethodPut, path, form, nil); err != nil {
		return fmt.Errorf("failed to report match %s on bracket %s: %w", externalMatchID, externalID, err)
	}
	return nil
}

func (c *Client) participantSides(ctx context.Context, externalID string) (map[int64]PairingSide, error) {
	var all []participantEnvelope
	path := fmt.Sprintf("/tournaments/%s/participants.json", url.PathEscape(externalID))
	if err := c.do(ctx, http.MethodGet, path, nil, &all); err != nil {
		return nil, fmt.Errorf("failed to list participants of bracket %s: %w", externalID, err)
	}
	sides := make(map[int64]PairingSide, len(all))
	for _, env := range all {
		side, err := decodeMisc(env.Participant.Misc)
		if err != nil {
			return nil, fmt.Errorf("participant %d of bracket %s: %w", env.Participant.ID, externalID, err)
		}
		sides[env.Participant.ID] = side
	}
	return sides, nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	var body io.Reader
	if method == http.MethodGet {
		q := url.Values{}
		q.Set("api_key", c.apiKey)
		endpoint += "?" + q.Encode()
	} else {
		form.Set("api_key", c.apiKey)
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("bracket service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func encodeMisc(teamID, submissionID int64) string {
	return strconv.FormatInt(teamID, 10) + "," + strconv.FormatInt(submissionID, 10)
}

func decodeMisc(misc string) (PairingSide, error) {
	parts := strings.Split(misc, ",")
	if len(parts) != 2 {
		return PairingSide{}, fmt.Errorf("malformed participant metadata %q", misc)
	}
	teamID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return PairingSide{}, fmt.Errorf("malformed participant metadata %q", misc)
	}
	submissionID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return PairingSide{}, fmt.Errorf("malformed participant metadata %q", misc)
	}
	return PairingSide{TeamID: teamID, SubmissionID: submissionID}, nil
}
