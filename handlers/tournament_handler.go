package handlers

import (
	"log/slog"
	"net/http"

	"github.com/scrimlab/match-engine/services"
)

// TournamentHandler exposes the admin bracket operations: external bracket
// setup, round dispatch, and result forwarding.
type TournamentHandler struct {
	logger      *slog.Logger
	tournaments *services.TournamentService
}

func NewTournamentHandler(logger *slog.Logger, tournaments *services.TournamentService) *TournamentHandler {
	return &TournamentHandler{logger: logger, tournaments: tournaments}
}

func (h *TournamentHandler) CreateBrackets(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		badRequestResponse(w, err)
		return
	}
	if err := h.tournaments.CreateBrackets(r.Context(), id); err != nil {
		serviceError(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TournamentHandler) SeedTeams(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		badRequestResponse(w, err)
		return
	}
	count, err := h.tournaments.SeedTeams(r.Context(), id)
	if err != nil {
		serviceError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"seeded": count})
}

func (h *TournamentHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		badRequestResponse(w, err)
		return
	}
	if err := h.tournaments.Start(r.Context(), id); err != nil {
		serviceError(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TournamentHandler) EnqueueRound(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "roundID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}
	count, err := h.tournaments.EnqueueRound(r.Context(), id)
	if err != nil {
		serviceError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"enqueued": count})
}

func (h *TournamentHandler) ReportResult(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}
	if err := h.tournaments.ReportResult(r.Context(), id); err != nil {
		serviceError(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
