package domain

import (
	"fmt"
	"time"
)

// All monetary amounts are integer minor units (cents) to avoid
// floating point drift.
const (
	// DefaultDailyLimit is the per-account withdrawal cap (1000.00).
	DefaultDailyLimit int64 = 100000

	MaxQuantity = 10000
	// MaxPrice is 100000.00 in minor units.
	MaxPrice     int64 = 10000000
	MaxThreshold       = 100
	// DefaultLowThreshold applies when a product is created without one.
	DefaultLowThreshold = 10

	// MinPINLength is the minimum accepted PIN length on change.
	MinPINLength = 4
)

// Account is a bank account subject to ledger mutation.
//
// WithdrawnToday is never reset by anything in this module; there is
// no day-rollover job, so the accumulated value acts as a running cap
// until an operator clears it out of band.
type Account struct {
	Number         string    `json:"number"`
	PINHash        string    `json:"-"`
	Name           string    `json:"name"`
	Phone          string    `json:"phone"`
	Balance        int64     `json:"balance"`
	WithdrawnToday int64     `json:"withdrawn_today"`
	DailyLimit     int64     `json:"daily_limit"`
	CreatedAt      time.Time `json:"created_at"`
}

// Product is an inventory item subject to ledger mutation.
type Product struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	Price        int64  `json:"price"`
	Category     string `json:"category"`
	LowThreshold int    `json:"low_threshold"`
	SupplierID   *int64 `json:"supplier_id,omitempty"`
}

// BelowThreshold reports whether current stock has crossed the
// product's low-stock line.
func (p *Product) BelowThreshold() bool {
	return p.Quantity < p.LowThreshold
}

// ProductFields carries the primitive inputs for add/edit.
type ProductFields struct {
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	Price        int64  `json:"price"`
	Category     string `json:"category"`
	LowThreshold int    `json:"low_threshold"`
	SupplierID   *int64 `json:"supplier_id,omitempty"`
}

// Supplier is referenced by products; provisioned outside the engine.
type Supplier struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

// OpKind is the domain-specific history operation kind.
type OpKind string

const (
	OpDeposit     OpKind = "Deposit"
	OpWithdrawal  OpKind = "Withdrawal"
	OpTransferIn  OpKind = "Transfer In"
	OpTransferOut OpKind = "Transfer Out"

	OpAdd    OpKind = "Add"
	OpAdjust OpKind = "Adjust"
	OpReduce OpKind = "Reduce"
	OpDelete OpKind = "Delete"
	OpSale   OpKind = "Sale"
)

// AccountRef builds the entity reference key used for locking and
// history attribution.
func AccountRef(number string) string { return "account:" + number }

// ProductRef is the product counterpart of AccountRef.
func ProductRef(id int64) string { return fmt.Sprintf("product:%d", id) }

// HistoryRecord is one immutable line of an entity's ledger history.
// Records are append-only and queried newest first.
type HistoryRecord struct {
	ID        int64     `json:"id"`
	EntityRef string    `json:"entity_ref"`
	Op        OpKind    `json:"op"`
	Magnitude int64     `json:"magnitude"`
	NewPrice  *int64    `json:"new_price,omitempty"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationStatus is pending until an operator resolves it.
type NotificationStatus string

const (
	NotificationPending  NotificationStatus = "pending"
	NotificationResolved NotificationStatus = "resolved"
)

// Notification is created only by the mutation engine when a threshold
// crossing is detected. Only its status ever changes afterwards.
type Notification struct {
	ID        int64              `json:"id"`
	Message   string             `json:"message"`
	Status    NotificationStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
}

// AuditEntry attributes a committed action to an actor. Never updated
// or deleted.
type AuditEntry struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

// SalesLine is one row of the sales summary report.
type SalesLine struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	UnitsSold   int64  `json:"units_sold"`
	Revenue     int64  `json:"revenue"`
}
