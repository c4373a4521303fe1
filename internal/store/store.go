// Package store is the durable keyed storage behind the ledger:
// entity state, the append-only history log, the notification queue
// and the audit log. Implementations must make every write inside one
// WithinTx call visible together or not at all.
package store

import (
	"context"
	"time"

	"github.com/punchamoorthee/ledgercore/internal/domain"
)

// Tx is the write surface available inside an atomic group. A Tx must
// never be retained after the WithinTx callback returns.
type Tx interface {
	GetAccount(ctx context.Context, number string) (*domain.Account, error)
	PutAccount(ctx context.Context, acc *domain.Account) error
	InsertAccount(ctx context.Context, acc *domain.Account) error

	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	// InsertProduct assigns the product id and writes it back to p.
	InsertProduct(ctx context.Context, p *domain.Product) error
	PutProduct(ctx context.Context, p *domain.Product) error
	DeleteProduct(ctx context.Context, id int64) error
	// ProductNameTaken reports whether another product (id != excludeID)
	// already uses name.
	ProductNameTaken(ctx context.Context, name string, excludeID int64) (bool, error)

	SupplierExists(ctx context.Context, id int64) (bool, error)
	// InsertSupplier assigns the supplier id and writes it back to s.
	InsertSupplier(ctx context.Context, s *domain.Supplier) error

	AppendHistory(ctx context.Context, rec *domain.HistoryRecord) error
	AppendAudit(ctx context.Context, entry *domain.AuditEntry) error
}

// Store is the long-lived handle. Reads outside a transaction observe
// the latest committed state.
type Store interface {
	// WithinTx runs fn against a transaction. A nil return commits the
	// group; any error discards it in full.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetAccount(ctx context.Context, number string) (*domain.Account, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListLowStock(ctx context.Context) ([]domain.Product, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)

	// QueryHistory returns up to limit records for the entity, newest
	// first. limit <= 0 means no limit.
	QueryHistory(ctx context.Context, entityRef string, limit int) ([]domain.HistoryRecord, error)

	// AppendNotification enqueues a pending notification. Called by the
	// engine after the atomic group commits.
	AppendNotification(ctx context.Context, n *domain.Notification) error
	// ListNotifications filters by status when status is non-nil.
	ListNotifications(ctx context.Context, status *domain.NotificationStatus) ([]domain.Notification, error)
	// ResolveNotifications flips every pending notification to resolved
	// and returns how many changed.
	ResolveNotifications(ctx context.Context) (int64, error)

	// SalesSummary aggregates Sale history per product: units sold and
	// revenue at the recorded sale price. Zero from/to bounds mean
	// unbounded; both bounds are inclusive.
	SalesSummary(ctx context.Context, from, to time.Time) ([]domain.SalesLine, error)

	Close()
}
