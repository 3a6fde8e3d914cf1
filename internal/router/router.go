// Package router wires the HTTP handlers onto a ServeMux under /api/v1.
package router

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/errandhub/backend/internal/auth"
	"github.com/errandhub/backend/internal/httpx"
	"github.com/errandhub/backend/internal/ledger"
	"github.com/errandhub/backend/internal/middleware"
	"github.com/errandhub/backend/internal/payment"
	"github.com/errandhub/backend/internal/profiles"
	"github.com/errandhub/backend/internal/tasks"
)

// Handlers groups the endpoint handlers.
type Handlers struct {
	Auth     *auth.Handler
	Wallet   *ledger.Handler
	Payments *payment.Handler
	Tasks    *tasks.Handler
	Profiles *profiles.Handler
}

// Deps are the cross-cutting pieces the routes are wrapped with.
type Deps struct {
	Tokens   middleware.TokenValidator
	Settings middleware.SettingsSource
	Limiter  *middleware.RateLimiter
	// Health reports whether the service can reach its dependencies.
	Health func(ctx context.Context) error
	Logger *slog.Logger
}

// New returns the API handler with request metrics recorded per route.
func New(h Handlers, d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	mux := http.NewServeMux()
	base := "/api/v1"

	authed := middleware.BearerAuth(d.Tokens)
	writable := middleware.Maintenance(d.Settings, d.Logger)
	protect := func(fn http.HandlerFunc) http.Handler { return authed(writable(fn)) }
	limited := func(next http.Handler) http.Handler {
		if d.Limiter == nil {
			return next
		}
		return d.Limiter.Limit(next)
	}

	mux.Handle("POST "+base+"/auth/register", limited(http.HandlerFunc(h.Auth.Register)))
	mux.Handle("POST "+base+"/auth/login", limited(http.HandlerFunc(h.Auth.Login)))

	mux.Handle("GET "+base+"/wallet", protect(h.Wallet.GetWallet))
	mux.Handle("GET "+base+"/wallet/transactions", protect(h.Wallet.ListTransactions))
	mux.Handle("POST "+base+"/wallet/deposits", limited(protect(h.Payments.CreateDeposit)))
	mux.Handle("POST "+base+"/wallet/withdrawals", limited(protect(h.Wallet.Withdraw)))
	mux.Handle("GET "+base+"/payments/return", limited(http.HandlerFunc(h.Payments.Return)))
	mux.Handle("POST "+base+"/payouts/callback", limited(http.HandlerFunc(h.Payments.PayoutCallback)))

	mux.Handle("POST "+base+"/tasks", protect(h.Tasks.CreateTask))
	mux.Handle("GET "+base+"/tasks", protect(h.Tasks.ListTasks))
	mux.Handle("GET "+base+"/tasks/{id}", protect(h.Tasks.GetTask))
	mux.Handle("POST "+base+"/tasks/{id}/accept", protect(h.Tasks.AcceptTask))
	mux.Handle("POST "+base+"/tasks/{id}/start", protect(h.Tasks.StartTask))
	mux.Handle("POST "+base+"/tasks/{id}/complete", protect(h.Tasks.CompleteTask))
	mux.Handle("POST "+base+"/tasks/{id}/cancel", protect(h.Tasks.CancelTask))

	mux.Handle("GET "+base+"/profile", protect(h.Profiles.GetProfile))
	mux.Handle("POST "+base+"/profile/runner", protect(h.Profiles.BecomeRunner))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if d.Health != nil {
			if err := d.Health(r.Context()); err != nil {
				d.Logger.Warn("health check failed", "error", err)
				httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.Metrics(mux)
}
