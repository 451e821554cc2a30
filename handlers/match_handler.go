package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/scrimlab/match-engine/live"
	"github.com/scrimlab/match-engine/models"
	"github.com/scrimlab/match-engine/services"
)

// MatchHandler exposes match reads, the cluster report hook, and the
// admin dispatch operations.
type MatchHandler struct {
	logger  *slog.Logger
	matches *services.MatchService
	hub     *live.Hub
}

func NewMatchHandler(logger *slog.Logger, matches *services.MatchService, hub *live.Hub) *MatchHandler {
	return &MatchHandler{logger: logger, matches: matches, hub: hub}
}

type matchReportRequest struct {
	Invocation models.InvocationUpdate `json:"invocation"`
	Scores     []int                   `json:"scores,omitempty"`
}

// Report is the cluster's finalization hook for execute jobs. A
// successful report also kicks rating finalization and notifies live
// subscribers.
func (h *MatchHandler) Report(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		badRequestResponse(w, err)
		return
	}
	var req matchReportRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err)
		return
	}

	if err := h.matches.Report(r.Context(), id, req.Invocation, req.Scores); err != nil {
		serviceError(h.logger, w, r, err)
		return
	}

	if match, err := h.matches.GetByID(r.Context(), id); err == nil {
		h.hub.Broadcast(match.EpisodeID, live.Event{Type: "MATCH_UPDATED", Payload: match})
		if match.IsRanked && match.Status.IsTerminal() {
			h.hub.Broadcast(match.EpisodeID, live.Event{Type: "RATING_UPDATED", Payload: match.Participants})
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		badRequestResponse(w, err)
		return
	}
	match, err := h.matches.GetByID(r.Context(), id)
	if err != nil {
		serviceError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"match": match, "replay_url": h.matches.ReplayURL(match)})
}

func (h *MatchHandler) ListByEpisode(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	matches, err := h.matches.ListByEpisode(r.Context(), chi.URLParam(r, "episode"), limit, offset)
	if err != nil {
		serviceError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"matches": matches})
}

func (h *MatchHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		badRequestResponse(w, err)
		return
	}
	if err := h.matches.Cancel(r.Context(), id); err != nil {
		serviceError(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MatchHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, h.matches.Enqueue)
}

func (h *MatchHandler) EnqueueAll(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, h.matches.EnqueueAll)
}

func (h *MatchHandler) enqueue(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, episodeID string) (int, error)) {
	count, err := fn(r.Context(), chi.URLParam(r, "episode"))
	if err != nil {
		serviceError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"enqueued": count})
}
