package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIs_WrappedSentinel(t *testing.T) {
	err := fmt.Errorf("move to escrow: %w", ErrInsufficientFunds)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected wrapped error to match ErrInsufficientFunds")
	}
	if errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("did not expect match with ErrInvalidAmount")
	}
}

func TestIs_SameCodeDifferentMessage(t *testing.T) {
	err := New(CodeNotFound, "wallet not found")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected code equality to match")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrInvalidAmount, http.StatusBadRequest},
		{ErrInsufficientFunds, http.StatusPaymentRequired},
		{ErrUnauthorized, http.StatusForbidden},
		{fmt.Errorf("x: %w", ErrNotFound), http.StatusNotFound},
		{ErrInvalidTransition, http.StatusConflict},
		{ErrAlreadyClosed, http.StatusConflict},
		{ErrMaintenance, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := HTTPStatus(c.err); got != c.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}
