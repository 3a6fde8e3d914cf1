package ledger

import (
	"sync"

	"github.com/google/uuid"

	"github.com/errandhub/backend/internal/models"
)

// BalanceListener receives a wallet snapshot after a committed change.
type BalanceListener func(models.Wallet)

type observers struct {
	mu   sync.RWMutex
	next int
	subs map[uuid.UUID]map[int]BalanceListener
}

// OnBalanceChanged registers fn for changes to userID's wallet. The returned
// function unregisters it and is safe to call more than once.
func (l *Ledger) OnBalanceChanged(userID uuid.UUID, fn BalanceListener) (cancel func()) {
	o := &l.obs
	o.mu.Lock()
	if o.subs == nil {
		o.subs = make(map[uuid.UUID]map[int]BalanceListener)
	}
	if o.subs[userID] == nil {
		o.subs[userID] = make(map[int]BalanceListener)
	}
	id := o.next
	o.next++
	o.subs[userID][id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.subs[userID], id)
		if len(o.subs[userID]) == 0 {
			delete(o.subs, userID)
		}
	}
}

// Publish notifies listeners of each wallet. Only call after the change committed.
func (l *Ledger) Publish(wallets ...*models.Wallet) {
	for _, w := range wallets {
		if w == nil {
			continue
		}
		l.obs.mu.RLock()
		fns := make([]BalanceListener, 0, len(l.obs.subs[w.UserID]))
		for _, fn := range l.obs.subs[w.UserID] {
			fns = append(fns, fn)
		}
		l.obs.mu.RUnlock()
		for _, fn := range fns {
			fn(*w)
		}
	}
}
