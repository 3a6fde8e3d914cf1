// Package jobs holds the River background workers: task notifications and the
// pending-deposit reconciliation sweep.
package jobs

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// TxInserter is the part of river.Client used to enqueue jobs transactionally.
type TxInserter interface {
	InsertTx(ctx context.Context, tx pgx.Tx, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// NewInsertTaskNotificationTx adapts a River client into an InsertTaskNotificationTxFunc.
func NewInsertTaskNotificationTx(c TxInserter) InsertTaskNotificationTxFunc {
	return func(ctx context.Context, tx pgx.Tx, args TaskNotificationArgs) error {
		_, err := c.InsertTx(ctx, tx, args, &river.InsertOpts{MaxAttempts: 5})
		return err
	}
}

// NewWorkers registers every worker with River.
func NewWorkers(notify *TaskNotificationWorker, expire *ExpirePendingDepositsWorker) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker(workers, notify)
	river.AddWorker(workers, expire)
	return workers
}

// PeriodicJobs schedules the reconciliation sweep every interval.
func PeriodicJobs(interval time.Duration) []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(interval),
			func() (river.JobArgs, *river.InsertOpts) {
				return ExpirePendingDepositsArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}
