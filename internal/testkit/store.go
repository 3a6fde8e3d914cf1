// Package testkit provides an in-memory stand-in for the Postgres repositories.
// Transactions are serialized: Begin holds a store-wide lock until Commit or
// Rollback, and Rollback restores every table to its state at Begin.
package testkit

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/errandhub/backend/internal/models"
)

type snapshot struct {
	accounts     map[uuid.UUID]models.Account
	wallets      map[uuid.UUID]models.Wallet
	transactions map[uuid.UUID]models.Transaction
	txOrder      []uuid.UUID
	tasks        map[uuid.UUID]models.Task
	taskOrder    []uuid.UUID
	escrows      map[uuid.UUID]models.Escrow
	profiles     map[uuid.UUID]models.Profile
	reviews      map[uuid.UUID]models.Review
	settings     *models.PlatformSettings
}

// Store holds every table in memory.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	data snapshot

	failures map[string]error

	commits   atomic.Int64
	rollbacks atomic.Int64

	// Now stamps created_at/updated_at. Defaults to time.Now.
	Now func() time.Time
}

func NewStore() *Store {
	s := &Store{
		data: snapshot{
			accounts:     map[uuid.UUID]models.Account{},
			wallets:      map[uuid.UUID]models.Wallet{},
			transactions: map[uuid.UUID]models.Transaction{},
			tasks:        map[uuid.UUID]models.Task{},
			escrows:      map[uuid.UUID]models.Escrow{},
			profiles:     map[uuid.UUID]models.Profile{},
			reviews:      map[uuid.UUID]models.Review{},
		},
		failures: map[string]error{},
		Now:      time.Now,
	}
	s.SeedWallet(models.PlatformUserID, 0)
	return s
}

// Begin starts a serialized transaction.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	s.txMu.Lock()
	if err := ctx.Err(); err != nil {
		s.txMu.Unlock()
		return nil, err
	}
	s.mu.Lock()
	snap := s.data.clone()
	s.mu.Unlock()
	return &Tx{store: s, snap: &snap}, nil
}

func (s *Store) restore(snap *snapshot) {
	s.mu.Lock()
	s.data = *snap
	s.mu.Unlock()
}

func (d *snapshot) clone() snapshot {
	c := snapshot{
		accounts:     maps.Clone(d.accounts),
		wallets:      maps.Clone(d.wallets),
		transactions: maps.Clone(d.transactions),
		txOrder:      slices.Clone(d.txOrder),
		tasks:        maps.Clone(d.tasks),
		taskOrder:    slices.Clone(d.taskOrder),
		escrows:      maps.Clone(d.escrows),
		profiles:     maps.Clone(d.profiles),
		reviews:      maps.Clone(d.reviews),
	}
	if d.settings != nil {
		cp := *d.settings
		c.settings = &cp
	}
	return c
}

// FailOn makes the next call of the named repository operation return err,
// e.g. "escrows.CreateTx". Used to exercise rollback paths.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	s.failures[op] = err
	s.mu.Unlock()
}

// fail must be called with s.mu held.
func (s *Store) fail(op string) error {
	if err, ok := s.failures[op]; ok {
		delete(s.failures, op)
		return err
	}
	return nil
}

func (s *Store) Commits() int64   { return s.commits.Load() }
func (s *Store) Rollbacks() int64 { return s.rollbacks.Load() }

// SeedWallet creates or overwrites the wallet for userID with the given balance.
func (s *Store) SeedWallet(userID uuid.UUID, balance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	w, ok := s.data.wallets[userID]
	if !ok {
		w = models.Wallet{ID: uuid.New(), UserID: userID, CreatedAt: now}
	}
	w.Balance = balance
	w.UpdatedAt = now
	s.data.wallets[userID] = w
}

// SeedProfile stores p as-is.
func (s *Store) SeedProfile(p models.Profile) {
	s.mu.Lock()
	s.data.profiles[p.UserID] = p
	s.mu.Unlock()
}

// Wallet returns a copy of the wallet for userID and whether it exists.
func (s *Store) Wallet(userID uuid.UUID) (models.Wallet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.data.wallets[userID]
	return w, ok
}

// Total sums balance plus escrow over every wallet, the platform wallet included.
func (s *Store) Total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum int64
	for _, w := range s.data.wallets {
		sum += w.Balance + w.EscrowBalance
	}
	return sum
}

// TransactionsOf returns userID's transactions oldest first.
func (s *Store) TransactionsOf(userID uuid.UUID) []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transaction
	for _, id := range s.data.txOrder {
		if t := s.data.transactions[id]; t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

// AllReviews returns all stored reviews.
func (s *Store) AllReviews() []models.Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Collect(maps.Values(s.data.reviews))
}

// Repository views. Each satisfies the matching interface consumed by the services.

func (s *Store) Accounts() *AccountRepo         { return &AccountRepo{s} }
func (s *Store) Wallets() *WalletRepo           { return &WalletRepo{s} }
func (s *Store) Transactions() *TransactionRepo { return &TransactionRepo{s} }
func (s *Store) Tasks() *TaskRepo               { return &TaskRepo{s} }
func (s *Store) Escrows() *EscrowRepo           { return &EscrowRepo{s} }
func (s *Store) Profiles() *ProfileRepo         { return &ProfileRepo{s} }
func (s *Store) Reviews() *ReviewRepo           { return &ReviewRepo{s} }
func (s *Store) Settings() *SettingsRepo        { return &SettingsRepo{s} }
