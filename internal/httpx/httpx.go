// Package httpx holds the JSON response helpers shared by the HTTP handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/errandhub/backend/internal/apperr"
)

const maxBodyBytes = 1 << 20

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError responds with the status and code mapped from err. Unclassified
// errors are logged and reported as a generic 500.
func WriteError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := apperr.HTTPStatus(err)
	code := apperr.CodeOf(err)
	msg := err.Error()
	if code == "" {
		if log != nil {
			log.Error("request failed", "error", err)
		}
		code, msg = "INTERNAL", "internal error"
	}
	WriteJSON(w, status, map[string]string{"error": msg, "code": string(code)})
}

// DecodeJSON reads a bounded JSON body into v. Malformed bodies yield apperr.ErrInvalidInput.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", apperr.ErrInvalidInput)
		}
		return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	return nil
}
