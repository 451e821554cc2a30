package challonge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bracketStub struct {
	mux      *http.ServeMux
	requests []*http.Request
	forms    []map[string][]string
}

func newBracketStub(t *testing.T) (*bracketStub, *Client) {
	t.Helper()
	stub := &bracketStub{mux: http.NewServeMux()}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		stub.requests = append(stub.requests, r)
		stub.forms = append(stub.forms, r.Form)
		stub.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)
	return stub, NewClient(server.URL, "test-key")
}

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func participantsPayload(entries map[int64][2]int64) []map[string]map[string]interface{} {
	var out []map[string]map[string]interface{}
	for id, side := range entries {
		out = append(out, map[string]map[string]interface{}{
			"participant": {
				"id":   id,
				"misc": fmt.Sprintf("%d,%d", side[0], side[1]),
			},
		})
	}
	return out
}

func matchPayload(id int64, round int, state string, p1, p2 *int64) map[string]map[string]interface{} {
	return map[string]map[string]interface{}{
		"match": {
			"id":         id,
			"round":      round,
			"state":      state,
			"player1_id": p1,
			"player2_id": p2,
		},
	}
}

func pid(v int64) *int64 { return &v }

func TestCreateTournamentSendsFormAndKey(t *testing.T) {
	stub, client := newBracketStub(t)
	stub.mux.HandleFunc("POST /tournaments.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]map[string]interface{}{
			"tournament": {"id": 99, "url": "engine_7_private"},
		})
	})

	id, err := client.CreateTournament(context.Background(), "Winter Finals", "engine_7_private", true)
	require.NoError(t, err)
	assert.Equal(t, "engine_7_private", id)

	require.Len(t, stub.forms, 1)
	form := stub.forms[0]
	assert.Equal(t, "test-key", form["api_key"][0])
	assert.Equal(t, "Winter Finals", form["tournament[name]"][0])
	assert.Equal(t, "engine_7_private", form["tournament[url]"][0])
	assert.Equal(t, "true", form["tournament[private]"][0])
}

func TestBulkAddTeamsCarriesMetadata(t *testing.T) {
	stub, client := newBracketStub(t)
	stub.mux.HandleFunc("POST /tournaments/engine_7_private/participants/bulk_add.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]map[string]interface{}{})
	})

	err := client.BulkAddTeams(context.Background(), "engine_7_private", []SeededTeam{
		{Name: "alpha", Seed: 1, TeamID: 10, SubmissionID: 100},
		{Name: "beta", Seed: 2, TeamID: 20, SubmissionID: 200},
	})
	require.NoError(t, err)

	form := stub.forms[0]
	assert.Equal(t, []string{"alpha", "beta"}, form["participants[][name]"])
	assert.Equal(t, []string{"1", "2"}, form["participants[][seed]"])
	assert.Equal(t, []string{"10,100", "20,200"}, form["participants[][misc]"])
}

func TestGetRoundPairingsBindsSides(t *testing.T) {
	stub, client := newBracketStub(t)
	stub.mux.HandleFunc("GET /tournaments/b/participants.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, participantsPayload(map[int64][2]int64{
			501: {10, 100},
			502: {20, 200},
			503: {30, 300},
			504: {40, 400},
		}))
	})
	stub.mux.HandleFunc("GET /tournaments/b/matches.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]map[string]interface{}{
			matchPayload(9001, 1, "open", pid(501), pid(502)),
			matchPayload(9002, 1, "open", pid(503), pid(504)),
			matchPayload(9003, 2, "pending", nil, nil),
		})
	})

	pairings, err := client.GetRoundPairings(context.Background(), "b", 1)
	require.NoError(t, err)
	require.Len(t, pairings, 2)

	assert.Equal(t, "9001", pairings[0].ExternalMatchID)
	assert.Equal(t, PairingSide{TeamID: 10, SubmissionID: 100}, pairings[0].Sides[0])
	assert.Equal(t, PairingSide{TeamID: 20, SubmissionID: 200}, pairings[0].Sides[1])
	assert.Equal(t, "9002", pairings[1].ExternalMatchID)
	assert.Equal(t, PairingSide{TeamID: 30, SubmissionID: 300}, pairings[1].Sides[0])
}

func TestGetRoundPairingsNotReady(t *testing.T) {
	stub, client := newBracketStub(t)
	stub.mux.HandleFunc("GET /tournaments/b/participants.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, participantsPayload(map[int64][2]int64{501: {10, 100}, 502: {20, 200}}))
	})
	stub.mux.HandleFunc("GET /tournaments/b/matches.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]map[string]interface{}{
			matchPayload(9001, 1, "pending", pid(501), pid(502)),
		})
	})

	_, err := client.GetRoundPairings(context.Background(), "b", 1)
	assert.ErrorIs(t, err, ErrBracketNotReady)
}

func TestGetRoundPairingsUnassignedPlayers(t *testing.T) {
	stub, client := newBracketStub(t)
	stub.mux.HandleFunc("GET /tournaments/b/participants.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, participantsPayload(map[int64][2]int64{501: {10, 100}}))
	})
	stub.mux.HandleFunc("GET /tournaments/b/matches.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]map[string]interface{}{
			matchPayload(9001, 1, "open", pid(501), nil),
		})
	})

	_, err := client.GetRoundPairings(context.Background(), "b", 1)
	assert.ErrorIs(t, err, ErrBracketNotReady)
}

func TestReportMatchResultResolvesWinnerParticipant(t *testing.T) {
	stub, client := newBracketStub(t)
	stub.mux.HandleFunc("GET /tournaments/b/participants.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, participantsPayload(map[int64][2]int64{501: {10, 100}, 502: {20, 200}}))
	})
	stub.mux.HandleFunc("PUT /tournaments/b/matches/9001.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]map[string]interface{}{"match": {"id": 9001}})
	})

	require.NoError(t, client.ReportMatchResult(context.Background(), "b", "9001", []int{1, 2}, 20))

	form := stub.forms[len(stub.forms)-1]
	assert.Equal(t, "1-2", form["match[scores_csv]"][0])
	assert.Equal(t, "502", form["match[winner_id]"][0])
}

func TestReportMatchResultUnknownWinner(t *testing.T) {
	stub, client := newBracketStub(t)
	stub.mux.HandleFunc("GET /tournaments/b/participants.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, participantsPayload(map[int64][2]int64{501: {10, 100}}))
	})

	err := client.ReportMatchResult(context.Background(), "b", "9001", []int{1, 2}, 999)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no participant for team 999")
}

func TestServerErrorsSurfaceStatusAndBody(t *testing.T) {
	_, client := newBracketStub(t)
	// No handler registered: the mux answers 404.

	_, err := client.CreateTournament(context.Background(), "x", "y", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestMiscRoundTrip(t *testing.T) {
	side, err := decodeMisc(encodeMisc(42, 720))
	require.NoError(t, err)
	assert.Equal(t, PairingSide{TeamID: 42, SubmissionID: 720}, side)

	_, err = decodeMisc("garbage")
	assert.Error(t, err)
	_, err = decodeMisc("1,two")
	assert.Error(t, err)
}
