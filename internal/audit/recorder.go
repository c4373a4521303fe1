// Package audit appends an attributed action entry alongside every
// committed mutation. Entries are write-only from the core's point of
// view; reporting reads them out of band.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/punchamoorthee/ledgercore/internal/domain"
	"github.com/punchamoorthee/ledgercore/internal/store"
)

// Recorder writes audit entries through the caller's transaction so
// they commit in the same atomic group as the mutation they attribute.
type Recorder struct {
	clock func() time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{clock: time.Now}
}

// WithClock overrides the timestamp source for tests.
func (r *Recorder) WithClock(clock func() time.Time) *Recorder {
	r.clock = clock
	return r
}

// Record appends one entry via tx. Never called for rejected
// operations.
func (r *Recorder) Record(ctx context.Context, tx store.Tx, actor, action, details string) error {
	return tx.AppendAudit(ctx, &domain.AuditEntry{
		ID:        uuid.New().String(),
		Action:    action,
		Details:   details,
		Actor:     actor,
		CreatedAt: r.clock().UTC(),
	})
}
