package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/punchamoorthee/ledgercore/internal/domain"
)

// lockTable hands out one exclusive lock per entity reference. Locks
// are channel-based so acquisition can race a timeout or context
// cancellation instead of blocking forever.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]chan struct{})}
}

func (t *lockTable) lockFor(key string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		t.locks[key] = ch
	}
	return ch
}

// acquire takes the locks for every key in ascending order, which
// keeps concurrent multi-entity operations (opposite-direction
// transfers) from deadlocking. On timeout or cancellation it releases
// whatever it already holds and reports ErrLockBusy so the caller can
// retry the whole operation.
func (t *lockTable) acquire(ctx context.Context, keys []string, wait time.Duration) (func(), error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	held := make([]chan struct{}, 0, len(sorted))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	for _, key := range sorted {
		ch := t.lockFor(key)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-deadline.C:
			release()
			return nil, domain.ErrLockBusy
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}
	return release, nil
}
