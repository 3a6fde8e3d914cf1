package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/errandhub/backend/internal/apperr"
	"github.com/errandhub/backend/internal/httpx"
)

type contextKey string

const ctxUserKey contextKey = "user_id"

// TokenValidator resolves a bearer token to the user it was issued for.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (uuid.UUID, error)
}

// BearerAuth authenticates requests with a JWT bearer token and puts the
// user ID into the request context.
func BearerAuth(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				httpx.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or malformed Authorization header", "code": string(apperr.CodeUnauthorized)})
				return
			}
			userID, err := v.ValidateToken(r.Context(), raw)
			if err != nil {
				httpx.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token", "code": string(apperr.CodeUnauthorized)})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// UserIDFromCtx returns the authenticated user and whether one is set.
func UserIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ctxUserKey).(uuid.UUID)
	return id, ok
}

// WithUserID returns a context carrying the given user.
func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxUserKey, id)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
