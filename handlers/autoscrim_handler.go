package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/scrimlab/match-engine/services"
)

type AutoScrimHandler struct {
	logger    *slog.Logger
	autoscrim *services.AutoScrimService
}

func NewAutoScrimHandler(logger *slog.Logger, autoscrim *services.AutoScrimService) *AutoScrimHandler {
	return &AutoScrimHandler{logger: logger, autoscrim: autoscrim}
}

// Run triggers one autoscrim round for the episode outside the schedule.
func (h *AutoScrimHandler) Run(w http.ResponseWriter, r *http.Request) {
	count, err := h.autoscrim.Run(r.Context(), chi.URLParam(r, "episode"))
	if err != nil {
		serviceError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"matches": count})
}
