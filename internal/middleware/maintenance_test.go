package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/errandhub/backend/internal/models"
)

type stubSettings struct {
	s     models.PlatformSettings
	calls int
}

func (s *stubSettings) Get(context.Context) (*models.PlatformSettings, error) {
	s.calls++
	cp := s.s
	return &cp, nil
}

func TestMaintenance_BlocksWrites(t *testing.T) {
	src := &stubSettings{s: models.PlatformSettings{MaintenanceMode: true}}
	h := Maintenance(src, nil)(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tasks", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("POST status = %d, want 503", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", rec.Code)
	}
}

func TestMaintenance_PassesWhenOff(t *testing.T) {
	src := &stubSettings{}
	rec := httptest.NewRecorder()
	Maintenance(src, nil)(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tasks", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if src.calls != 1 {
		t.Errorf("settings read %d times, want 1", src.calls)
	}
}
