package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/errandhub/backend/internal/apperr"
	"github.com/errandhub/backend/internal/httpx"
	"github.com/errandhub/backend/internal/models"
)

// SettingsSource supplies the current platform settings.
type SettingsSource interface {
	Get(ctx context.Context) (*models.PlatformSettings, error)
}

// Maintenance rejects state-changing requests with 503 while the platform
// maintenance flag is set. Safe methods always pass.
func Maintenance(src SettingsSource, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			s, err := src.Get(r.Context())
			if err != nil {
				httpx.WriteError(w, log, err)
				return
			}
			if s.MaintenanceMode {
				httpx.WriteError(w, log, apperr.ErrMaintenance)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
