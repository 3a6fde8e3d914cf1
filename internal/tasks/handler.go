package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/errandhub/backend/internal/apperr"
	"github.com/errandhub/backend/internal/httpx"
	"github.com/errandhub/backend/internal/middleware"
	"github.com/errandhub/backend/internal/models"
	"github.com/errandhub/backend/internal/repository"
)

const maxCreateBody = 64 << 10

// Handler serves /api/v1/tasks endpoints.
type Handler struct {
	Lifecycle *Lifecycle
	Validator *Validator
	Logger    *slog.Logger
}

func NewHandler(lc *Lifecycle, v *Validator, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{Lifecycle: lc, Validator: v, Logger: log}
}

// --- POST /api/v1/tasks ---

// CreateTask validates the body against the create-task schema, then holds the
// reward in escrow and persists the task.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, h.Logger, apperr.ErrUnauthorized)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCreateBody))
	if err != nil {
		httpx.WriteError(w, h.Logger, fmt.Errorf("%w: read body: %v", apperr.ErrInvalidInput, err))
		return
	}
	if h.Validator != nil {
		if err := h.Validator.ValidateCreate(body); err != nil {
			httpx.WriteError(w, h.Logger, err)
			return
		}
	}
	var in CreateInput
	if err := json.Unmarshal(body, &in); err != nil {
		httpx.WriteError(w, h.Logger, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err))
		return
	}
	task, err := h.Lifecycle.Create(r.Context(), userID, in)
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, task)
}

// --- GET /api/v1/tasks ---

// ListTasks handles GET /api/v1/tasks?status=&category=&role=requester|runner&limit=&offset=.
// role narrows the list to tasks the caller posted or runs.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, h.Logger, apperr.ErrUnauthorized)
		return
	}
	q := r.URL.Query()
	f := repository.TaskFilter{Status: q.Get("status"), Category: q.Get("category")}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))
	switch q.Get("role") {
	case "":
	case "requester":
		f.RequesterID = &userID
	case "runner":
		f.RunnerID = &userID
	default:
		httpx.WriteError(w, h.Logger, fmt.Errorf("%w: role must be requester or runner", apperr.ErrInvalidInput))
		return
	}
	list, err := h.Lifecycle.List(r.Context(), f)
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"tasks": list})
}

// --- GET /api/v1/tasks/{id} ---

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := h.taskID(w, r)
	if !ok {
		return
	}
	task, err := h.Lifecycle.Get(r.Context(), taskID)
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, task)
}

// --- POST /api/v1/tasks/{id}/accept|start|complete ---

func (h *Handler) AcceptTask(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Lifecycle.Accept)
}

func (h *Handler) StartTask(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Lifecycle.Start)
}

func (h *Handler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Lifecycle.Complete)
}

// --- POST /api/v1/tasks/{id}/cancel ---

type cancelRequest struct {
	Reason string `json:"reason"`
}

// CancelTask accepts an optional {"reason": "..."} body.
func (h *Handler) CancelTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, h.Logger, apperr.ErrUnauthorized)
		return
	}
	taskID, ok := h.taskID(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, h.Logger, err)
			return
		}
	}
	task, err := h.Lifecycle.Cancel(r.Context(), taskID, userID, req.Reason)
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, task)
}

// --- helpers ---

type transitionFunc func(ctx context.Context, taskID, callerID uuid.UUID) (*models.Task, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, h.Logger, apperr.ErrUnauthorized)
		return
	}
	taskID, ok := h.taskID(w, r)
	if !ok {
		return
	}
	task, err := fn(r.Context(), taskID, userID)
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, task)
}

func (h *Handler) taskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, h.Logger, fmt.Errorf("%w: invalid task id", apperr.ErrInvalidInput))
		return uuid.Nil, false
	}
	return id, true
}
