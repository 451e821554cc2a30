package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/scrimlab/match-engine/models"
	"github.com/scrimlab/match-engine/services"
)

var errEmptyIDList = errors.New("ids must be a non-empty list")

type ScrimmageHandler struct {
	logger     *slog.Logger
	scrimmages *services.ScrimmageService
}

func NewScrimmageHandler(logger *slog.Logger, scrimmages *services.ScrimmageService) *ScrimmageHandler {
	return &ScrimmageHandler{logger: logger, scrimmages: scrimmages}
}

type createScrimmageRequest struct {
	RequesterID int64    `json:"requester_id"`
	ResponderID int64    `json:"responder_id"`
	IsRanked    bool     `json:"is_ranked"`
	PlayerOrder string   `json:"player_order"`
	Maps        []string `json:"maps,omitempty"`
}

func (h *ScrimmageHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createScrimmageRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err)
		return
	}
	order, err := models.ParsePlayerOrder(req.PlayerOrder)
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	request, err := h.scrimmages.Create(r.Context(),
		chi.URLParam(r, "episode"), req.RequesterID, req.ResponderID,
		req.IsRanked, order, req.Maps)
	if err != nil {
		serviceError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, request)
}

type scrimmageBatchRequest struct {
	IDs []int64 `json:"ids"`
}

func (h *ScrimmageHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, h.scrimmages.Accept)
}

func (h *ScrimmageHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, h.scrimmages.Reject)
}

func (h *ScrimmageHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, h.scrimmages.Cancel)
}

func (h *ScrimmageHandler) batch(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, ids []int64) error) {
	var req scrimmageBatchRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err)
		return
	}
	if len(req.IDs) == 0 {
		badRequestResponse(w, errEmptyIDList)
		return
	}
	if err := fn(r.Context(), req.IDs); err != nil {
		serviceError(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ScrimmageHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		badRequestResponse(w, err)
		return
	}
	request, err := h.scrimmages.GetByID(r.Context(), id)
	if err != nil {
		serviceError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (h *ScrimmageHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.scrimmages.ListInbox)
}

func (h *ScrimmageHandler) Outbox(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.scrimmages.ListOutbox)
}

func (h *ScrimmageHandler) list(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, teamID int64) ([]*models.ScrimmageRequest, error)) {
	teamID, err := idParam(r, "teamID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}
	requests, err := fn(r.Context(), teamID)
	if err != nil {
		serviceError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"requests": requests})
}
