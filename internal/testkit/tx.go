package testkit

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Tx is a pgx.Tx over the in-memory Store. Only Commit and Rollback have
// behaviour; the repository fakes never issue SQL through it.
type Tx struct {
	store *Store
	snap  *snapshot
	done  bool
}

var _ pgx.Tx = (*Tx)(nil)

func (t *Tx) Begin(context.Context) (pgx.Tx, error) { return nil, pgx.ErrTxClosed }

func (t *Tx) Commit(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.commits.Add(1)
	t.store.txMu.Unlock()
	return nil
}

// Rollback restores the store to its state at Begin. After Commit it is a no-op
// returning pgx.ErrTxClosed, so deferred rollbacks are safe.
func (t *Tx) Rollback(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.restore(t.snap)
	t.store.rollbacks.Add(1)
	t.store.txMu.Unlock()
	return nil
}

func (t *Tx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *Tx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (t *Tx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (t *Tx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *Tx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *Tx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *Tx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *Tx) Conn() *pgx.Conn { return nil }
