package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/punchamoorthee/ledgercore/internal/audit"
	"github.com/punchamoorthee/ledgercore/internal/domain"
	"github.com/punchamoorthee/ledgercore/internal/store"
)

// spyStore counts atomic-group writes as they pass through the real
// transaction. Captured entries are only meaningful when the group
// committed.
type spyStore struct {
	store.Store
	audits  []domain.AuditEntry
	history []domain.HistoryRecord
}

func (s *spyStore) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.WithinTx(ctx, func(tx store.Tx) error {
		return fn(&spyTx{Tx: tx, spy: s})
	})
}

type spyTx struct {
	store.Tx
	spy *spyStore
}

func (t *spyTx) AppendAudit(ctx context.Context, entry *domain.AuditEntry) error {
	t.spy.audits = append(t.spy.audits, *entry)
	return t.Tx.AppendAudit(ctx, entry)
}

func (t *spyTx) AppendHistory(ctx context.Context, rec *domain.HistoryRecord) error {
	t.spy.history = append(t.spy.history, *rec)
	return t.Tx.AppendHistory(ctx, rec)
}

func seedAccount(t *testing.T, st store.Store, number string, balance int64) {
	t.Helper()
	err := st.WithinTx(context.Background(), func(tx store.Tx) error {
		return tx.InsertAccount(context.Background(), &domain.Account{
			Number:     number,
			Balance:    balance,
			DailyLimit: domain.DefaultDailyLimit,
		})
	})
	require.NoError(t, err)
}

func depositMutation(number string, amount int64) Mutation {
	return Mutation{
		LockKeys: []string{domain.AccountRef(number)},
		Actor:    "teller-1",
		Action:   "Deposit",
		Details:  "test deposit",
		Stage: func(ctx context.Context, tx store.Tx) (*Staged, error) {
			acc, err := tx.GetAccount(ctx, number)
			if err != nil {
				return nil, err
			}
			acc.Balance += amount
			if err := tx.PutAccount(ctx, acc); err != nil {
				return nil, err
			}
			return &Staged{
				Records: []domain.HistoryRecord{{
					EntityRef: domain.AccountRef(number),
					Op:        domain.OpDeposit,
					Magnitude: amount,
				}},
				Result: acc,
			}, nil
		},
	}
}

func TestApplyCommitsHistoryAndAuditTogether(t *testing.T) {
	spy := &spyStore{Store: store.NewMemory()}
	seedAccount(t, spy, "123456", 1000)

	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	eng := NewEngine(spy, audit.NewRecorder(), zap.NewNop()).WithClock(func() time.Time { return at })

	staged, err := eng.Apply(context.Background(), depositMutation("123456", 500))
	require.NoError(t, err)
	assert.Equal(t, int64(1500), staged.Result.(*domain.Account).Balance)

	require.Len(t, spy.history, 1)
	assert.Equal(t, "teller-1", spy.history[0].Actor)
	assert.Equal(t, at, spy.history[0].CreatedAt)

	require.Len(t, spy.audits, 1)
	assert.Equal(t, "Deposit", spy.audits[0].Action)
	assert.Equal(t, "teller-1", spy.audits[0].Actor)
	assert.NotEmpty(t, spy.audits[0].ID)

	recs, err := spy.QueryHistory(context.Background(), domain.AccountRef("123456"), 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestApplyRejectedStageLeavesNoTrace(t *testing.T) {
	st := store.NewMemory()
	seedAccount(t, st, "123456", 1000)
	eng := NewEngine(st, audit.NewRecorder(), zap.NewNop())

	m := depositMutation("123456", 500)
	inner := m.Stage
	m.Stage = func(ctx context.Context, tx store.Tx) (*Staged, error) {
		// Mutate state first, then reject: the whole group must vanish.
		if _, err := inner(ctx, tx); err != nil {
			return nil, err
		}
		return nil, domain.Rejectf("amount must be positive")
	}

	_, err := eng.Apply(context.Background(), m)
	require.True(t, domain.IsValidation(err))

	acc, err := st.GetAccount(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), acc.Balance)

	recs, err := st.QueryHistory(context.Background(), domain.AccountRef("123456"), 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

type brokenStore struct {
	store.Store
}

func (s *brokenStore) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return errors.New("disk full")
}

func TestApplyWrapsStorageFailures(t *testing.T) {
	eng := NewEngine(&brokenStore{Store: store.NewMemory()}, audit.NewRecorder(), zap.NewNop())

	_, err := eng.Apply(context.Background(), depositMutation("123456", 500))
	var se *domain.StorageError
	require.ErrorAs(t, err, &se)
	assert.EqualError(t, se.Err, "disk full")
}

func TestApplyPassesThroughNotFound(t *testing.T) {
	eng := NewEngine(store.NewMemory(), audit.NewRecorder(), zap.NewNop())

	_, err := eng.Apply(context.Background(), depositMutation("does-not-exist", 500))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestApplyReportsLockBusy(t *testing.T) {
	st := store.NewMemory()
	seedAccount(t, st, "123456", 1000)
	eng := NewEngine(st, audit.NewRecorder(), zap.NewNop()).WithLockWait(20 * time.Millisecond)

	release, err := eng.locks.acquire(context.Background(), []string{domain.AccountRef("123456")}, time.Second)
	require.NoError(t, err)
	defer release()

	_, err = eng.Apply(context.Background(), depositMutation("123456", 500))
	assert.ErrorIs(t, err, domain.ErrLockBusy)
}

func TestApplyEnqueuesNotificationAfterCommit(t *testing.T) {
	st := store.NewMemory()
	seedAccount(t, st, "123456", 1000)

	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	eng := NewEngine(st, audit.NewRecorder(), zap.NewNop()).WithClock(func() time.Time { return at })

	m := depositMutation("123456", 500)
	inner := m.Stage
	m.Stage = func(ctx context.Context, tx store.Tx) (*Staged, error) {
		staged, err := inner(ctx, tx)
		if err != nil {
			return nil, err
		}
		staged.Notification = &domain.Notification{Message: "threshold crossed"}
		return staged, nil
	}

	_, err := eng.Apply(context.Background(), m)
	require.NoError(t, err)

	ns, err := st.ListNotifications(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, domain.NotificationPending, ns[0].Status)
	assert.Equal(t, "threshold crossed", ns[0].Message)
	assert.Equal(t, at, ns[0].CreatedAt)
}

type silentNotifyStore struct {
	store.Store
}

func (s *silentNotifyStore) AppendNotification(ctx context.Context, n *domain.Notification) error {
	return errors.New("queue unreachable")
}

func TestApplyNotificationFailureDoesNotFailTheMutation(t *testing.T) {
	st := &silentNotifyStore{Store: store.NewMemory()}
	seedAccount(t, st, "123456", 1000)
	eng := NewEngine(st, audit.NewRecorder(), zap.NewNop())

	m := depositMutation("123456", 500)
	inner := m.Stage
	m.Stage = func(ctx context.Context, tx store.Tx) (*Staged, error) {
		staged, err := inner(ctx, tx)
		if err != nil {
			return nil, err
		}
		staged.Notification = &domain.Notification{Message: "threshold crossed"}
		return staged, nil
	}

	_, err := eng.Apply(context.Background(), m)
	assert.NoError(t, err)

	acc, err := st.GetAccount(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), acc.Balance)
}

func TestSerializedHoldsTheLock(t *testing.T) {
	eng := NewEngine(store.NewMemory(), audit.NewRecorder(), zap.NewNop()).WithLockWait(20 * time.Millisecond)

	entered := make(chan struct{})
	proceed := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		errc <- eng.Serialized(context.Background(), []string{"account:a"}, func(ctx context.Context) error {
			close(entered)
			<-proceed
			return nil
		})
	}()
	<-entered

	err := eng.Serialized(context.Background(), []string{"account:a"}, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, domain.ErrLockBusy)

	close(proceed)
	require.NoError(t, <-errc)
}
