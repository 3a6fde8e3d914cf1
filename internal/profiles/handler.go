package profiles

import (
	"log/slog"
	"net/http"

	"github.com/errandhub/backend/internal/apperr"
	"github.com/errandhub/backend/internal/httpx"
	"github.com/errandhub/backend/internal/middleware"
)

type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// GET /api/v1/profile
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, h.log, apperr.ErrUnauthorized)
		return
	}
	p, err := h.svc.GetProfile(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

// POST /api/v1/profile/runner
func (h *Handler) BecomeRunner(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, h.log, apperr.ErrUnauthorized)
		return
	}
	p, err := h.svc.BecomeRunner(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}
