package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/scrimlab/match-engine/live"
	"github.com/scrimlab/match-engine/models"
	"github.com/scrimlab/match-engine/services"
)

// SubmissionHandler exposes the submission lifecycle over HTTP: team
// uploads, the cluster report hook, and the admin requeue and cancel
// operations.
type SubmissionHandler struct {
	logger      *slog.Logger
	submissions *services.SubmissionService
	hub         *live.Hub
}

func NewSubmissionHandler(logger *slog.Logger, submissions *services.SubmissionService, hub *live.Hub) *SubmissionHandler {
	return &SubmissionHandler{logger: logger, submissions: submissions, hub: hub}
}

// Create accepts a multipart form with the source archive under "source"
// and the submission metadata as plain fields.
func (h *SubmissionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(6 << 20); err != nil {
		badRequestResponse(w, err)
		return
	}

	teamID, err := strconv.ParseInt(r.FormValue("team_id"), 10, 64)
	if err != nil {
		badRequestResponse(w, errors.New("team_id must be an integer"))
		return
	}
	userID, err := strconv.ParseInt(r.FormValue("user_id"), 10, 64)
	if err != nil {
		badRequestResponse(w, errors.New("user_id must be an integer"))
		return
	}

	file, _, err := r.FormFile("source")
	if err != nil {
		badRequestResponse(w, errors.New("source archive is required"))
		return
	}
	defer file.Close()
	source, err := io.ReadAll(file)
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	submission, err := h.submissions.Create(r.Context(),
		chi.URLParam(r, "episode"), teamID, userID,
		r.FormValue("package"), r.FormValue("description"), source)
	if err != nil {
		serviceError(h.logger, w, r, err)
		return
	}

	h.hub.Broadcast(submission.EpisodeID, live.Event{Type: "SUBMISSION_CREATED", Payload: submission})
	writeJSON(w, http.StatusCreated, submission)
}

type submissionReportRequest struct {
	Invocation models.InvocationUpdate `json:"invocation"`
	Accepted   *bool                   `json:"accepted,omitempty"`
}

// Report is the cluster's finalization hook for compile jobs.
func (h *SubmissionHandler) Report(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		badRequestResponse(w, err)
		return
	}
	var req submissionReportRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err)
		return
	}

	if err := h.submissions.Report(r.Context(), id, req.Invocation, req.Accepted); err != nil {
		serviceError(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SubmissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		badRequestResponse(w, err)
		return
	}
	submission, err := h.submissions.GetByID(r.Context(), id)
	if err != nil {
		serviceError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, submission)
}

func (h *SubmissionHandler) ListByTeam(w http.ResponseWriter, r *http.Request) {
	teamID, err := idParam(r, "teamID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}
	limit, offset := pagination(r)
	submissions, err := h.submissions.ListByTeam(r.Context(), teamID, limit, offset)
	if err != nil {
		serviceError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"submissions": submissions})
}

func (h *SubmissionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		badRequestResponse(w, err)
		return
	}
	if err := h.submissions.Cancel(r.Context(), id); err != nil {
		serviceError(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Enqueue dispatches the episode's pending submissions (admin).
func (h *SubmissionHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, h.submissions.Enqueue)
}

// EnqueueAll force-requeues every submission in the episode (admin).
func (h *SubmissionHandler) EnqueueAll(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, h.submissions.EnqueueAll)
}

func (h *SubmissionHandler) enqueue(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, episodeID string) (int, error)) {
	count, err := fn(r.Context(), chi.URLParam(r, "episode"))
	if err != nil {
		serviceError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"enqueued": count})
}
