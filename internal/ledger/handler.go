package ledger

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/errandhub/backend/internal/apperr"
	"github.com/errandhub/backend/internal/httpx"
	"github.com/errandhub/backend/internal/middleware"
)

// Handler serves /api/v1/wallet endpoints.
type Handler struct {
	Ledger *Ledger
	Logger *slog.Logger
}

func NewHandler(l *Ledger, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{Ledger: l, Logger: log}
}

// GET /api/v1/wallet
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, h.Logger, apperr.ErrUnauthorized)
		return
	}
	wallet, err := h.Ledger.Wallet(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, wallet)
}

// GET /api/v1/wallet/transactions?limit=&offset=
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, h.Logger, apperr.ErrUnauthorized)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	list, err := h.Ledger.Transactions(r.Context(), userID, limit, offset)
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"transactions": list})
}

type withdrawRequest struct {
	Amount int64 `json:"amount"`
	BankDetails
}

// POST /api/v1/wallet/withdrawals
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, h.Logger, apperr.ErrUnauthorized)
		return
	}
	var req withdrawRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	rec, err := h.Ledger.Withdraw(r.Context(), userID, req.Amount, req.BankDetails)
	if err != nil {
		httpx.WriteError(w, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, rec)
}
