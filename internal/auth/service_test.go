package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/errandhub/backend/internal/apperr"
	"github.com/errandhub/backend/internal/models"
	"github.com/errandhub/backend/internal/testkit"
)

const testSecret = "test-secret"

func newTestService(store *testkit.Store) *Service {
	return NewService(store, store.Accounts(), store.Wallets(), store.Profiles(), testSecret, nil)
}

func TestRegister_ProvisionsWalletAndProfile(t *testing.T) {
	store := testkit.NewStore()
	svc := newTestService(store)
	ctx := context.Background()

	reg, err := svc.Register(ctx, " Rina@Example.com ", "hunter22", "Rina", models.RoleRunner)
	require.NoError(t, err)
	assert.Equal(t, "rina@example.com", reg.Account.Email)
	assert.NotEqual(t, "hunter22", reg.Account.PasswordHash)

	w, ok := store.Wallet(reg.Account.ID)
	require.True(t, ok)
	assert.Zero(t, w.Balance)
	assert.Zero(t, w.EscrowBalance)

	p, err := store.Profiles().GetByUserID(ctx, reg.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleRunner, p.Role)
	assert.Equal(t, "Rina", p.DisplayName)
}

func TestRegister_DefaultsAndValidation(t *testing.T) {
	store := testkit.NewStore()
	svc := newTestService(store)
	ctx := context.Background()

	reg, err := svc.Register(ctx, "budi@example.com", "password1", "", "")
	require.NoError(t, err)
	assert.Equal(t, models.RoleRequester, reg.Profile.Role)
	assert.Equal(t, "budi", reg.Profile.DisplayName)

	_, err = svc.Register(ctx, "not-an-email", "password1", "", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = svc.Register(ctx, "x@example.com", "short", "", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = svc.Register(ctx, "x@example.com", "password1", "", "admin")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = svc.Register(ctx, "BUDI@example.com", "password2", "", "")
	assert.ErrorIs(t, err, ErrDuplicateEmail)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestRegister_RollsBackWhenProfileFails(t *testing.T) {
	store := testkit.NewStore()
	svc := newTestService(store)
	ctx := context.Background()
	store.FailOn("profiles.CreateTx", errors.New("boom"))

	_, err := svc.Register(ctx, "sari@example.com", "password1", "Sari", "")
	require.Error(t, err)

	_, err = store.Accounts().GetByEmail(ctx, "sari@example.com")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// Nothing was left behind, so the email is still free.
	_, err = svc.Register(ctx, "sari@example.com", "password1", "Sari", "")
	assert.NoError(t, err)
}

func TestLoginAndValidateToken(t *testing.T) {
	store := testkit.NewStore()
	svc := newTestService(store)
	ctx := context.Background()

	reg, err := svc.Register(ctx, "dewi@example.com", "password1", "Dewi", "")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "dewi@example.com", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody@example.com", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	token, err := svc.Login(ctx, "Dewi@example.com", "password1")
	require.NoError(t, err)

	id, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, reg.Account.ID, id)

	_, err = svc.ValidateToken(ctx, token+"x")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	other := NewService(store, store.Accounts(), store.Wallets(), store.Profiles(), "other-secret", nil)
	_, err = other.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestValidateToken_Expired(t *testing.T) {
	store := testkit.NewStore()
	svc := newTestService(store)
	user := uuid.New()

	svc.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	token, err := svc.issueToken(user)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestValidateToken_RejectsOtherAlgorithms(t *testing.T) {
	svc := newTestService(testkit.NewStore())
	tok := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{Subject: uuid.NewString()})
	raw, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = svc.ValidateToken(context.Background(), raw)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestHandler_RegisterAndLogin(t *testing.T) {
	store := testkit.NewStore()
	h := NewHandler(newTestService(store), nil)

	rec := httptest.NewRecorder()
	h.Register(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/register",
		strings.NewReader(`{"email":"eko@example.com","password":"password1","role":"both"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "password")

	rec = httptest.NewRecorder()
	h.Register(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/register",
		strings.NewReader(`{"email":"eko@example.com","password":"password1"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"email":"eko@example.com","password":"nope"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"email":"eko@example.com","password":"password1"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"token"`)
}
