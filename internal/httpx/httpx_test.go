package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/errandhub/backend/internal/apperr"
)

func TestWriteErrorUsesCode(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, nil, fmt.Errorf("hold 500: %w", apperr.ErrInsufficientFunds))

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INSUFFICIENT_FUNDS", body["code"])
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, nil, errors.New("connection refused on 10.0.0.3"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.3")
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Amount int64 `json:"amount"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount": 500}`))
	require.NoError(t, DecodeJSON(r, &v))
	assert.Equal(t, int64(500), v.Amount)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.ErrorIs(t, DecodeJSON(r, &v), apperr.ErrInvalidInput)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	assert.ErrorIs(t, DecodeJSON(r, &v), apperr.ErrInvalidInput)
}
