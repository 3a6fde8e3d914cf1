package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/errandhub/backend/internal/apperr"
	"github.com/errandhub/backend/internal/models"
)

const reconcileBatch = 100

// ExpirePendingDepositsArgs triggers one sweep over deposits the gateway never confirmed.
type ExpirePendingDepositsArgs struct{}

func (ExpirePendingDepositsArgs) Kind() string { return "expire_pending_deposits" }

// StaleLister finds pending transactions created before cutoff.
type StaleLister interface {
	ListStalePending(ctx context.Context, txType string, cutoff time.Time, limit int) ([]*models.Transaction, error)
}

// DepositFailer fails one pending deposit.
type DepositFailer interface {
	FailDeposit(ctx context.Context, txID uuid.UUID, reason string) (*models.Transaction, error)
}

// ExpirePendingDepositsWorker marks pending deposits older than TTL failed.
type ExpirePendingDepositsWorker struct {
	river.WorkerDefaults[ExpirePendingDepositsArgs]
	lister StaleLister
	failer DepositFailer
	ttl    time.Duration
	batch  int
	now    func() time.Time
	log    *slog.Logger
}

func NewExpirePendingDepositsWorker(lister StaleLister, failer DepositFailer, ttl time.Duration, log *slog.Logger) *ExpirePendingDepositsWorker {
	if log == nil {
		log = slog.Default()
	}
	return &ExpirePendingDepositsWorker{lister: lister, failer: failer, ttl: ttl, batch: reconcileBatch, now: time.Now, log: log}
}

func (w *ExpirePendingDepositsWorker) Work(ctx context.Context, _ *river.Job[ExpirePendingDepositsArgs]) error {
	_, err := w.Sweep(ctx)
	return err
}

// Sweep fails every stale pending deposit and returns how many it expired.
// It pages through the backlog until a short page comes back or a page makes
// no progress. A deposit that completed concurrently is skipped.
func (w *ExpirePendingDepositsWorker) Sweep(ctx context.Context) (int, error) {
	cutoff := w.now().Add(-w.ttl)
	var (
		expired int
		errs    []error
	)
	for {
		stale, err := w.lister.ListStalePending(ctx, models.TxTypeDeposit, cutoff, w.batch)
		if err != nil {
			errs = append(errs, fmt.Errorf("list stale deposits: %w", err))
			break
		}
		settled := 0
		for _, t := range stale {
			_, err := w.failer.FailDeposit(ctx, t.ID, fmt.Sprintf("payment not confirmed within %s", w.ttl))
			switch {
			case err == nil:
				expired++
				settled++
			case errors.Is(err, apperr.ErrInvalidTransition):
				settled++
			default:
				errs = append(errs, fmt.Errorf("expire deposit %s: %w", t.ID, err))
			}
		}
		if len(stale) < w.batch || settled == 0 || ctx.Err() != nil {
			break
		}
	}
	if expired > 0 {
		w.log.Info("expired pending deposits", "count", expired, "cutoff", cutoff)
	}
	return expired, errors.Join(errs...)
}
