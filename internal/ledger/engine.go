// Package ledger is the mutation engine shared by the account and
// stock facades: one entry point that serializes access per entity,
// validates and applies a proposed change, and commits the entity
// update, its history records and the audit entry as a single atomic
// group. A rejected or failed operation leaves no trace in the store.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/punchamoorthee/ledgercore/internal/audit"
	"github.com/punchamoorthee/ledgercore/internal/domain"
	"github.com/punchamoorthee/ledgercore/internal/store"
)

// DefaultLockWait bounds how long an operation queues behind another
// writer on the same entity before failing as retryable.
const DefaultLockWait = 5 * time.Second

var mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_mutations_total",
	Help: "Ledger mutations processed, labeled by audit action and outcome",
}, []string{"action", "outcome"})

// Staged is what a facade's Stage callback hands back from inside the
// transaction: the history records to append, the new entity state for
// the caller, and an optional threshold notification.
type Staged struct {
	// Records are appended by the engine within the atomic group, in
	// order. Timestamps and actor attribution are filled in here.
	Records []domain.HistoryRecord
	// Notification, when set, is enqueued after the group commits.
	Notification *domain.Notification
	// Result carries the post-mutation state back to the facade.
	Result any
}

// Mutation is one validated, atomically-committed change assembled by
// a domain facade.
type Mutation struct {
	// LockKeys are the entity references to hold exclusively for the
	// whole validate-apply-commit sequence. The engine sorts them.
	LockKeys []string
	Actor    string
	// Action and Details label the audit entry.
	Action  string
	Details string
	// Stage runs inside the store transaction: read current state, run
	// the invariant checks, apply the new state via tx. Returning an
	// error discards every write staged so far.
	Stage func(ctx context.Context, tx store.Tx) (*Staged, error)
}

type Engine struct {
	store    store.Store
	recorder *audit.Recorder
	locks    *lockTable
	lockWait time.Duration
	clock    func() time.Time
	log      *zap.Logger
}

func NewEngine(st store.Store, rec *audit.Recorder, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:    st,
		recorder: rec,
		locks:    newLockTable(),
		lockWait: DefaultLockWait,
		clock:    time.Now,
		log:      log,
	}
}

// WithLockWait overrides the bounded lock wait.
func (e *Engine) WithLockWait(wait time.Duration) *Engine {
	e.lockWait = wait
	return e
}

// WithClock overrides the timestamp source for tests.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Apply executes the mutation. On success every history record has
// been appended and exactly one audit entry written, all in one atomic
// group. On any error the store is untouched by this operation.
//
// Once the commit step starts the operation is no longer cancellable;
// before that, context cancellation abandons it with no state effect.
func (e *Engine) Apply(ctx context.Context, m Mutation) (*Staged, error) {
	release, err := e.locks.acquire(ctx, m.LockKeys, e.lockWait)
	if err != nil {
		mutationsTotal.WithLabelValues(m.Action, "busy").Inc()
		return nil, err
	}
	defer release()

	var staged *Staged
	now := e.clock().UTC()

	err = e.store.WithinTx(ctx, func(tx store.Tx) error {
		s, err := m.Stage(ctx, tx)
		if err != nil {
			return err
		}
		for i := range s.Records {
			s.Records[i].Actor = m.Actor
			s.Records[i].CreatedAt = now
			if err := tx.AppendHistory(ctx, &s.Records[i]); err != nil {
				return err
			}
		}
		if err := e.recorder.Record(ctx, tx, m.Actor, m.Action, m.Details); err != nil {
			return err
		}
		staged = s
		return nil
	})
	if err != nil {
		outcome, err := classify(err)
		mutationsTotal.WithLabelValues(m.Action, outcome).Inc()
		return nil, err
	}

	if staged.Notification != nil {
		staged.Notification.Status = domain.NotificationPending
		staged.Notification.CreatedAt = now
		// The mutation is already committed; a lost notification is
		// logged, not surfaced as an operation failure.
		if nerr := e.store.AppendNotification(ctx, staged.Notification); nerr != nil {
			e.log.Warn("threshold notification not enqueued",
				zap.String("action", m.Action),
				zap.Error(nerr))
		}
	}

	mutationsTotal.WithLabelValues(m.Action, "committed").Inc()
	return staged, nil
}

// Serialized runs fn under the entity locks without the atomic-group
// bookkeeping. Used for operations that must not race a mutation but
// are not themselves ledger mutations (credential changes).
func (e *Engine) Serialized(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	release, err := e.locks.acquire(ctx, keys, e.lockWait)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// classify maps an atomic-group error to a metric outcome and the
// error the caller sees. Domain errors pass through; anything else is
// a storage failure wrapping the cause.
func classify(err error) (string, error) {
	switch {
	case domain.IsValidation(err):
		return "rejected", err
	case errors.Is(err, domain.ErrNotFound):
		return "not_found", err
	case errors.Is(err, domain.ErrTargetNotFound):
		return "not_found", err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled", err
	default:
		return "storage_error", &domain.StorageError{Err: err}
	}
}
