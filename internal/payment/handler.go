package payment

import (
	"log/slog"
	"net/http"

	"github.com/errandhub/backend/internal/apperr"
	"github.com/errandhub/backend/internal/httpx"
	"github.com/errandhub/backend/internal/middleware"
	"github.com/errandhub/backend/internal/models"
)

// Handler serves deposit and payout provider endpoints.
type Handler struct {
	Intake  *Intake
	Payouts *Payouts
	Logger  *slog.Logger
}

func NewHandler(in *Intake, po *Payouts, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{Intake: in, Payouts: po, Logger: log}
}

type depositRequest struct {
	Amount        int64  `json:"amount"`
	PaymentMethod string `json:"payment_method"`
}

type depositResponse struct {
	Transaction *models.Transaction `json:"transaction"`
	Checkout    *Checkout           `json:"checkout"`
}

// POST /api/v1/wallet/deposits
func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, h.Logger, apperr.ErrUnauthorized)
		return
	}
	var req depositRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	rec, co, err := h.Intake.StartDeposit(r.Context(), userID, req.Amount, req.PaymentMethod)
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, depositResponse{Transaction: rec, Checkout: co})
}

// GET /api/v1/payments/return
// The payer's browser lands here from the gateway; the signature, not a
// bearer token, authenticates the request.
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Intake.HandleReturn(r.Context(), r.URL.Query())
	if err != nil {
		if rec != nil {
			httpx.WriteJSON(w, apperr.HTTPStatus(err), map[string]any{
				"error":       err.Error(),
				"code":        apperr.CodeOf(err),
				"transaction": rec,
			})
			return
		}
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"transaction": rec})
}

// POST /api/v1/payouts/callback
// Sent by the payout provider; authenticated by its signature.
func (h *Handler) PayoutCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httpx.WriteError(w, h.Logger, apperr.ErrInvalidInput)
		return
	}
	rec, err := h.Payouts.HandleCallback(r.Context(), r.Form)
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"transaction": rec})
}
