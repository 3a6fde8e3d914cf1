package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/errandhub/backend/internal/apperr"
	"github.com/errandhub/backend/internal/ledger"
	"github.com/errandhub/backend/internal/middleware"
	"github.com/errandhub/backend/internal/models"
	"github.com/errandhub/backend/internal/settings"
	"github.com/errandhub/backend/internal/testkit"
)

func newGateway() *HostedCheckout {
	g := NewHostedCheckout("https://pay.example.com/checkout", "m-1", "s3cret", "IDR", "https://api.example.com/api/v1/payments/return")
	g.Now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return g
}

func newIntake(t *testing.T) (*Intake, *testkit.Store, *HostedCheckout) {
	t.Helper()
	store := testkit.NewStore()
	prov := settings.NewProvider(store.Settings(), models.PlatformSettings{
		CommissionPercentage:  10,
		MinimumTaskAmount:     100,
		MaximumTaskAmount:     1_000_000,
		AllowedPaymentMethods: []string{"card", "ewallet"},
	})
	l := ledger.New(store, store.Wallets(), store.Transactions(), prov, nil)
	g := newGateway()
	return NewIntake(l, g, nil), store, g
}

// returnValues builds a signed return redirect as the provider would.
func returnValues(g *HostedCheckout, orderID uuid.UUID, amount int64, status string) url.Values {
	fields := map[string]string{
		"merchant_id": g.MerchantID,
		"order_id":    orderID.String(),
		"amount":      strconv.FormatInt(amount, 10),
		"status":      status,
		"reference":   "gw-123",
	}
	fields["signature"] = g.sign(fields)
	v := url.Values{}
	for k, s := range fields {
		v.Set(k, s)
	}
	return v
}

func balance(t *testing.T, store *testkit.Store, user uuid.UUID) int64 {
	t.Helper()
	w, ok := store.Wallet(user)
	require.True(t, ok)
	return w.Balance
}

func TestHostedCheckout_InitiateSignsFields(t *testing.T) {
	g := newGateway()
	order := uuid.New()

	co, err := g.Initiate(context.Background(), CheckoutRequest{OrderID: order, Amount: 2500, Method: "card"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(co.URL, "https://pay.example.com/checkout?"))
	assert.Equal(t, "2500", co.Fields["amount"])
	assert.Equal(t, "IDR", co.Fields["currency"])
	assert.Equal(t, order.String(), co.Fields["order_id"])
	assert.Equal(t, g.sign(co.Fields), co.Fields["signature"])

	u, err := url.Parse(co.URL)
	require.NoError(t, err)
	assert.Equal(t, co.Fields["signature"], u.Query().Get("signature"))
}

func TestHostedCheckout_Unconfigured(t *testing.T) {
	g := NewHostedCheckout("", "", "", "IDR", "")
	_, err := g.Initiate(context.Background(), CheckoutRequest{OrderID: uuid.New(), Amount: 1})
	assert.ErrorIs(t, err, apperr.ErrExternalPaymentFailed)
}

func TestHostedCheckout_ParseReturn(t *testing.T) {
	g := newGateway()
	order := uuid.New()

	res, err := g.ParseReturn(returnValues(g, order, 900, StatusSuccess))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, order, res.OrderID)
	assert.Equal(t, int64(900), res.Amount)
	assert.Equal(t, "gw-123", res.ExternalRef)

	tampered := returnValues(g, order, 900, StatusSuccess)
	tampered.Set("amount", "9000")
	_, err = g.ParseReturn(tampered)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	unsigned := returnValues(g, order, 900, StatusSuccess)
	unsigned.Del("signature")
	_, err = g.ParseReturn(unsigned)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = g.ParseReturn(returnValues(g, order, 900, "maybe"))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestIntake_ExternalDepositRoundTrip(t *testing.T) {
	in, store, g := newIntake(t)
	ctx := context.Background()
	user := uuid.New()
	store.SeedWallet(user, 0)

	rec, co, err := in.StartDeposit(ctx, user, 2500, "card")
	require.NoError(t, err)
	require.NotNil(t, co)
	assert.Equal(t, models.TxStatusPending, rec.Status)
	assert.Equal(t, rec.ID.String(), co.Fields["order_id"])
	assert.Zero(t, balance(t, store, user))

	done, err := in.HandleReturn(ctx, returnValues(g, rec.ID, 2500, StatusSuccess))
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusCompleted, done.Status)
	assert.Equal(t, int64(2500), balance(t, store, user))

	// A replayed return must not credit twice.
	_, err = in.HandleReturn(ctx, returnValues(g, rec.ID, 2500, StatusSuccess))
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.Equal(t, int64(2500), balance(t, store, user))
}

func TestIntake_DeclinedDeposit(t *testing.T) {
	in, store, g := newIntake(t)
	ctx := context.Background()
	user := uuid.New()
	store.SeedWallet(user, 0)

	rec, _, err := in.StartDeposit(ctx, user, 700, "ewallet")
	require.NoError(t, err)

	failed, err := in.HandleReturn(ctx, returnValues(g, rec.ID, 700, StatusFailed))
	assert.ErrorIs(t, err, apperr.ErrExternalPaymentFailed)
	require.NotNil(t, failed)
	assert.Equal(t, models.TxStatusFailed, failed.Status)
	assert.Zero(t, balance(t, store, user))
}

func TestIntake_RejectsDepositsWithoutGateway(t *testing.T) {
	in, store, _ := newIntake(t)
	ctx := context.Background()
	user := uuid.New()
	store.SeedWallet(user, 0)

	for _, method := range []string{"", " ", models.PaymentMethodInternal} {
		rec, co, err := in.StartDeposit(ctx, user, 300, method)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput, "method %q", method)
		assert.Nil(t, rec)
		assert.Nil(t, co)
	}
	_, _, err := in.StartDeposit(ctx, user, 300, "crypto")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	assert.Zero(t, balance(t, store, user))
	assert.Empty(t, store.TransactionsOf(user))
}

type brokenGateway struct{ Gateway }

func (brokenGateway) Initiate(context.Context, CheckoutRequest) (*Checkout, error) {
	return nil, errors.New("connection refused")
}

func TestIntake_InitiateFailureFailsDeposit(t *testing.T) {
	in, store, _ := newIntake(t)
	in.Gateway = brokenGateway{}
	user := uuid.New()
	store.SeedWallet(user, 0)

	_, _, err := in.StartDeposit(context.Background(), user, 300, "card")
	assert.ErrorIs(t, err, apperr.ErrExternalPaymentFailed)

	recs := store.TransactionsOf(user)
	require.Len(t, recs, 1)
	assert.Equal(t, models.TxStatusFailed, recs[0].Status)
}

func TestHandler_DepositAndReturn(t *testing.T) {
	in, store, g := newIntake(t)
	h := NewHandler(in, nil, nil)
	user := uuid.New()
	store.SeedWallet(user, 0)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/deposits", strings.NewReader(`{"amount":1200,"payment_method":"card"}`))
	req = req.WithContext(middleware.WithUserID(req.Context(), user))
	rec := httptest.NewRecorder()
	h.CreateDeposit(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var out struct {
		Transaction models.Transaction `json:"transaction"`
		Checkout    Checkout           `json:"checkout"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.NotEmpty(t, out.Checkout.URL)

	q := returnValues(g, out.Transaction.ID, 1200, StatusSuccess)
	rec = httptest.NewRecorder()
	h.Return(rec, httptest.NewRequest(http.MethodGet, "/api/v1/payments/return?"+q.Encode(), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(1200), balance(t, store, user))

	q.Set("signature", "00")
	rec = httptest.NewRecorder()
	h.Return(rec, httptest.NewRequest(http.MethodGet, "/api/v1/payments/return?"+q.Encode(), nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandler_DeclinedReturnIncludesTransaction(t *testing.T) {
	in, store, g := newIntake(t)
	h := NewHandler(in, nil, nil)
	user := uuid.New()
	store.SeedWallet(user, 0)

	tx, _, err := in.StartDeposit(context.Background(), user, 500, "card")
	require.NoError(t, err)

	q := returnValues(g, tx.ID, 500, StatusFailed)
	rec := httptest.NewRecorder()
	h.Return(rec, httptest.NewRequest(http.MethodGet, "/api/v1/payments/return?"+q.Encode(), nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "EXTERNAL_PAYMENT_FAILED")
	assert.Contains(t, rec.Body.String(), tx.ID.String())
}

func TestHandler_DepositWithoutGatewayLeavesBalance(t *testing.T) {
	in, store, _ := newIntake(t)
	h := NewHandler(in, nil, nil)
	user := uuid.New()
	store.SeedWallet(user, 0)

	for _, body := range []string{
		`{"amount":999999999}`,
		`{"amount":1,"payment_method":"internal"}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/deposits", strings.NewReader(body))
		req = req.WithContext(middleware.WithUserID(req.Context(), user))
		rec := httptest.NewRecorder()
		h.CreateDeposit(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Zero(t, balance(t, store, user))
}

func newPayouts(in *Intake) (*Payouts, *ledger.Ledger) {
	l := in.Ledger.(*ledger.Ledger)
	return NewPayouts(l, in.Gateway, nil), l
}

var testBank = ledger.BankDetails{BankName: "BCA", AccountNumber: "0123456789", AccountName: "Rina"}

func TestPayouts_CallbackSettlesWithdrawal(t *testing.T) {
	in, store, g := newIntake(t)
	po, l := newPayouts(in)
	ctx := context.Background()
	user := uuid.New()
	store.SeedWallet(user, 1000)

	paid, err := l.Withdraw(ctx, user, 400, testBank)
	require.NoError(t, err)
	assert.Equal(t, int64(600), balance(t, store, user))

	done, err := po.HandleCallback(ctx, returnValues(g, paid.ID, 400, StatusSuccess))
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusCompleted, done.Status)
	require.NotNil(t, done.ExternalRef)
	assert.Equal(t, "gw-123", *done.ExternalRef)
	assert.Equal(t, int64(600), balance(t, store, user))

	_, err = po.HandleCallback(ctx, returnValues(g, paid.ID, 400, StatusSuccess))
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	bounced, err := l.Withdraw(ctx, user, 300, testBank)
	require.NoError(t, err)
	assert.Equal(t, int64(300), balance(t, store, user))

	failed, err := po.HandleCallback(ctx, returnValues(g, bounced.ID, 300, StatusFailed))
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusFailed, failed.Status)
	assert.Equal(t, int64(600), balance(t, store, user))
}

func TestPayouts_RejectsForgedOrForeignCallbacks(t *testing.T) {
	in, store, g := newIntake(t)
	po, l := newPayouts(in)
	ctx := context.Background()
	user := uuid.New()
	store.SeedWallet(user, 1000)

	wd, err := l.Withdraw(ctx, user, 400, testBank)
	require.NoError(t, err)

	forged := returnValues(g, wd.ID, 400, StatusFailed)
	forged.Set("signature", "00")
	_, err = po.HandleCallback(ctx, forged)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	assert.Equal(t, int64(600), balance(t, store, user))

	// A pending deposit is not a withdrawal and cannot be settled here.
	dep, _, err := in.StartDeposit(ctx, user, 500, "card")
	require.NoError(t, err)
	_, err = po.HandleCallback(ctx, returnValues(g, dep.ID, 500, StatusFailed))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, int64(600), balance(t, store, user))
}

func TestHandler_PayoutCallback(t *testing.T) {
	in, store, g := newIntake(t)
	po, l := newPayouts(in)
	h := NewHandler(in, po, nil)
	user := uuid.New()
	store.SeedWallet(user, 1000)

	wd, err := l.Withdraw(context.Background(), user, 250, testBank)
	require.NoError(t, err)

	form := returnValues(g, wd.ID, 250, StatusFailed)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payouts/callback", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.PayoutCallback(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), models.TxStatusFailed)
	assert.Equal(t, int64(1000), balance(t, store, user))
}
