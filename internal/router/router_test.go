package router

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/errandhub/backend/internal/auth"
	"github.com/errandhub/backend/internal/escrow"
	"github.com/errandhub/backend/internal/ledger"
	"github.com/errandhub/backend/internal/middleware"
	"github.com/errandhub/backend/internal/models"
	"github.com/errandhub/backend/internal/payment"
	"github.com/errandhub/backend/internal/profiles"
	"github.com/errandhub/backend/internal/settings"
	"github.com/errandhub/backend/internal/tasks"
	"github.com/errandhub/backend/internal/testkit"
)

type app struct {
	handler http.Handler
	store   *testkit.Store
	gateway *payment.HostedCheckout
	health  error
}

func newApp(t *testing.T) *app {
	t.Helper()
	store := testkit.NewStore()
	prov := settings.NewProvider(store.Settings(), models.PlatformSettings{
		CommissionPercentage: 10,
		MinimumTaskAmount:    100,
		MaximumTaskAmount:    1_000_000,
		RunnerStakeRequired:  true,
	})
	l := ledger.New(store, store.Wallets(), store.Transactions(), prov, nil)
	authSvc := auth.NewService(store, store.Accounts(), store.Wallets(), store.Profiles(), "router-test-secret", nil)
	v, err := tasks.NewValidator()
	require.NoError(t, err)
	lc := &tasks.Lifecycle{
		Pool:     store,
		Tasks:    store.Tasks(),
		Profiles: store.Profiles(),
		Reviews:  store.Reviews(),
		Escrows:  escrow.NewManager(store.Escrows()),
		Ledger:   l,
		Settings: prov,
	}
	gw := payment.NewHostedCheckout("https://pay.example.com", "m-1", "secret", "IDR", "http://localhost/api/v1/payments/return")

	a := &app{store: store, gateway: gw}
	a.handler = New(Handlers{
		Auth:     auth.NewHandler(authSvc, nil),
		Wallet:   ledger.NewHandler(l, nil),
		Payments: payment.NewHandler(payment.NewIntake(l, gw, nil), payment.NewPayouts(l, gw, nil), nil),
		Tasks:    tasks.NewHandler(lc, v, nil),
		Profiles: profiles.NewHandler(profiles.NewService(store.Profiles(), nil), nil),
	}, Deps{
		Tokens:   authSvc,
		Settings: prov,
		Limiter:  middleware.NewRateLimiter(1000, 1000, time.Minute),
		Health:   func(context.Context) error { return a.health },
	})
	return a
}

func (a *app) call(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *app) signup(t *testing.T, email, role string) string {
	t.Helper()
	rec := a.call(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": email, "password": "password1", "role": role,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = a.call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": email, "password": "password1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct{ Token string }
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out.Token
}

// pay starts a card deposit over the API and completes it with the signed
// return redirect the checkout provider would send.
func (a *app) pay(t *testing.T, token string, amount int64) {
	t.Helper()
	rec := a.call(t, http.MethodPost, "/api/v1/wallet/deposits", token, map[string]any{"amount": amount, "payment_method": "card"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var out struct {
		Transaction models.Transaction `json:"transaction"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))

	fields := map[string]string{
		"merchant_id": a.gateway.MerchantID,
		"order_id":    out.Transaction.ID.String(),
		"amount":      strconv.FormatInt(amount, 10),
		"status":      payment.StatusSuccess,
		"reference":   "gw-" + out.Transaction.ID.String()[:8],
	}
	q := url.Values{}
	for k, v := range fields {
		q.Set(k, v)
	}
	q.Set("signature", signFields(a.gateway.Secret, fields))
	rec = a.call(t, http.MethodGet, "/api/v1/payments/return?"+q.Encode(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// signFields signs sorted k=v pairs with HMAC-SHA256, as the checkout provider does.
func signFields(secret []byte, fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + fields[k]
	}
	m := hmac.New(sha256.New, secret)
	m.Write([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(m.Sum(nil))
}

func walletOf(t *testing.T, rec *httptest.ResponseRecorder) models.Wallet {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var w models.Wallet
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&w))
	return w
}

func TestRouter_EndToEnd(t *testing.T) {
	a := newApp(t)
	requester := a.signup(t, "req@example.com", "requester")
	runner := a.signup(t, "run@example.com", "runner")

	a.pay(t, requester, 5000)
	a.pay(t, runner, 1800)

	rec := a.call(t, http.MethodPost, "/api/v1/tasks", requester, map[string]any{"title": "Deliver documents", "reward_amount": 2000})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var task models.Task
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&task))
	base := "/api/v1/tasks/" + task.ID.String()

	w := walletOf(t, a.call(t, http.MethodGet, "/api/v1/wallet", requester, nil))
	assert.Equal(t, int64(3000), w.Balance)
	assert.Equal(t, int64(2000), w.EscrowBalance)

	rec = a.call(t, http.MethodPost, base+"/accept", runner, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = a.call(t, http.MethodPost, base+"/complete", requester, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	w = walletOf(t, a.call(t, http.MethodGet, "/api/v1/wallet", runner, nil))
	assert.Equal(t, int64(1800), w.Balance)
	assert.Equal(t, int64(1800), w.TotalEarned)

	rec = a.call(t, http.MethodGet, "/api/v1/wallet/transactions?limit=10", runner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), models.TxTypeTaskEarning)

	rec = a.call(t, http.MethodGet, "/api/v1/profile", runner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p models.Profile
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	assert.Equal(t, 1, p.CompletedTasks)
}

func TestRouter_DepositNeedsGatewayConfirmation(t *testing.T) {
	a := newApp(t)
	tok := a.signup(t, "free@example.com", "requester")

	rec := a.call(t, http.MethodPost, "/api/v1/wallet/deposits", tok, map[string]any{"amount": 999999999})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	rec = a.call(t, http.MethodPost, "/api/v1/wallet/deposits", tok, map[string]any{"amount": 1, "payment_method": "internal"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = a.call(t, http.MethodPost, "/api/v1/wallet/deposits", tok, map[string]any{"amount": 500, "payment_method": "card"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "https://pay.example.com")

	w := walletOf(t, a.call(t, http.MethodGet, "/api/v1/wallet", tok, nil))
	assert.Zero(t, w.Balance)
}

func TestRouter_RequiresBearerToken(t *testing.T) {
	a := newApp(t)
	rec := a.call(t, http.MethodGet, "/api/v1/wallet", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = a.call(t, http.MethodGet, "/api/v1/wallet", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_MaintenanceBlocksWritesOnly(t *testing.T) {
	a := newApp(t)
	tok := a.signup(t, "m@example.com", "both")
	require.NoError(t, a.store.Settings().Upsert(context.Background(), &models.PlatformSettings{
		CommissionPercentage: 10,
		MinimumTaskAmount:    100,
		MaximumTaskAmount:    1_000_000,
		MaintenanceMode:      true,
	}))

	rec := a.call(t, http.MethodPost, "/api/v1/wallet/deposits", tok, map[string]any{"amount": 100, "payment_method": "card"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "MAINTENANCE")

	rec = a.call(t, http.MethodGet, "/api/v1/wallet", tok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	a := newApp(t)

	rec := a.call(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	a.health = errors.New("db down")
	rec = a.call(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = a.call(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "errandhub_http_requests_total")
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	a := newApp(t)
	rec := a.call(t, http.MethodDelete, "/api/v1/wallet", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
