package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/scrimlab/match-engine/live"
)

type LiveHandler struct {
	hub *live.Hub
}

func NewLiveHandler(hub *live.Hub) *LiveHandler {
	return &LiveHandler{hub: hub}
}

// Subscribe upgrades to a websocket feed of the episode's match and
// submission updates.
func (h *LiveHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	h.hub.Serve(w, r, chi.URLParam(r, "episode"))
}
