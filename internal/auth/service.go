// Package auth issues and validates the bearer tokens that identify users.
// Registration provisions the account, an empty wallet and a profile together.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/errandhub/backend/internal/apperr"
	"github.com/errandhub/backend/internal/models"
)

const (
	minPasswordLen = 8
	tokenTTL       = 24 * time.Hour
)

// ErrDuplicateEmail is returned when registering with an email that already exists.
var ErrDuplicateEmail = apperr.New(apperr.CodeConflict, "email already registered")

// ErrInvalidCredentials is returned by Login for an unknown email or wrong password.
var ErrInvalidCredentials = apperr.New(apperr.CodeUnauthorized, "invalid credentials")

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type AccountRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, a *models.Account) error
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
}

type WalletRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, w *models.Wallet) error
}

type ProfileRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, p *models.Profile) error
}

// Registration is the result of a successful Register.
type Registration struct {
	Account *models.Account `json:"account"`
	Profile *models.Profile `json:"profile"`
	Wallet  *models.Wallet  `json:"wallet"`
}

type Service struct {
	pool     TxBeginner
	accounts AccountRepo
	wallets  WalletRepo
	profiles ProfileRepo
	secret   []byte
	log      *slog.Logger
	now      func() time.Time
}

func NewService(pool TxBeginner, accounts AccountRepo, wallets WalletRepo, profiles ProfileRepo, secret string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:     pool,
		accounts: accounts,
		wallets:  wallets,
		profiles: profiles,
		secret:   []byte(secret),
		log:      log,
		now:      time.Now,
	}
}

type claims struct {
	jwt.RegisteredClaims
}

// Register creates the account, a zero-balance wallet and a profile in one
// transaction. role defaults to requester.
func (s *Service) Register(ctx context.Context, email, password, displayName, role string) (*Registration, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", apperr.ErrInvalidInput)
	}
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", apperr.ErrInvalidInput, minPasswordLen)
	}
	if role == "" {
		role = models.RoleRequester
	}
	switch role {
	case models.RoleRequester, models.RoleRunner, models.RoleBoth:
	default:
		return nil, fmt.Errorf("%w: invalid role %q", apperr.ErrInvalidInput, role)
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = strings.SplitN(email, "@", 2)[0]
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id := uuid.New()
	reg := &Registration{
		Account: &models.Account{ID: id, Email: email, PasswordHash: string(hash)},
		Wallet:  &models.Wallet{ID: uuid.New(), UserID: id},
		Profile: &models.Profile{UserID: id, DisplayName: displayName, Role: role},
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.accounts.CreateTx(ctx, tx, reg.Account); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	if err := s.wallets.CreateTx(ctx, tx, reg.Wallet); err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	if err := s.profiles.CreateTx(ctx, tx, reg.Profile); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	s.log.Info("user registered", "user_id", id, "role", role)
	return reg, nil
}

// Login checks the password and returns a signed token.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	acc, err := s.accounts.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, apperr.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.issueToken(acc.ID)
}

func (s *Service) issueToken(userID uuid.UUID) (string, error) {
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

// ValidateToken returns the user a token was issued for.
func (s *Service) ValidateToken(_ context.Context, token string) (uuid.UUID, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err)
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return uuid.Nil, apperr.ErrUnauthorized
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", apperr.ErrUnauthorized)
	}
	return id, nil
}
