package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/punchamoorthee/ledgercore/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	number          TEXT PRIMARY KEY,
	pin_hash        TEXT NOT NULL,
	name            TEXT NOT NULL,
	phone           TEXT NOT NULL DEFAULT '',
	balance         INTEGER NOT NULL CHECK (balance >= 0),
	withdrawn_today INTEGER NOT NULL DEFAULT 0,
	daily_limit     INTEGER NOT NULL,
	created_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS suppliers (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	name    TEXT NOT NULL,
	contact TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS products (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT NOT NULL UNIQUE,
	quantity      INTEGER NOT NULL CHECK (quantity BETWEEN 0 AND 10000),
	price         INTEGER NOT NULL CHECK (price BETWEEN 0 AND 10000000),
	category      TEXT NOT NULL,
	low_threshold INTEGER NOT NULL DEFAULT 10 CHECK (low_threshold BETWEEN 0 AND 100),
	supplier_id   INTEGER REFERENCES suppliers(id)
);

CREATE TABLE IF NOT EXISTS history (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_ref TEXT NOT NULL,
	op         TEXT NOT NULL,
	magnitude  INTEGER NOT NULL,
	new_price  INTEGER,
	actor      TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_entity ON history (entity_ref, id DESC);

CREATE TABLE IF NOT EXISTS notifications (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	message    TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','resolved')),
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id         TEXT PRIMARY KEY,
	action     TEXT NOT NULL,
	details    TEXT NOT NULL DEFAULT '',
	actor      TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

// SQLite implements Store on a single-file database via the pure-Go
// modernc driver. It is the local backend when no database server is
// available.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// The driver serializes writers; a single connection avoids
	// SQLITE_BUSY under the engine's concurrent callers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(context.Background(), sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() {
	_ = s.db.Close()
}

func (s *SQLite) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

// querier abstracts *sql.DB and *sql.Tx so read helpers serve both.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const sqliteSelectAccount = `SELECT number, pin_hash, name, phone, balance, withdrawn_today, daily_limit, created_at FROM accounts WHERE number = ?`
const sqliteSelectProduct = `SELECT id, name, quantity, price, category, low_threshold, supplier_id FROM products WHERE id = ?`

func sqliteGetAccount(ctx context.Context, q querier, number string) (*domain.Account, error) {
	var acc domain.Account
	var created string
	err := q.QueryRowContext(ctx, sqliteSelectAccount, number).Scan(
		&acc.Number, &acc.PINHash, &acc.Name, &acc.Phone,
		&acc.Balance, &acc.WithdrawnToday, &acc.DailyLimit, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	acc.CreatedAt = parseSQLiteTime(created)
	return &acc, nil
}

func sqliteGetProduct(ctx context.Context, q querier, id int64) (*domain.Product, error) {
	var p domain.Product
	var supplier sql.NullInt64
	err := q.QueryRowContext(ctx, sqliteSelectProduct, id).Scan(
		&p.ID, &p.Name, &p.Quantity, &p.Price, &p.Category, &p.LowThreshold, &supplier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if supplier.Valid {
		p.SupplierID = &supplier.Int64
	}
	return &p, nil
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseSQLiteTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) GetAccount(ctx context.Context, number string) (*domain.Account, error) {
	return sqliteGetAccount(ctx, t.tx, number)
}

func (t *sqliteTx) PutAccount(ctx context.Context, acc *domain.Account) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE accounts SET pin_hash = ?, name = ?, phone = ?, balance = ?, withdrawn_today = ?, daily_limit = ? WHERE number = ?`,
		acc.PINHash, acc.Name, acc.Phone, acc.Balance, acc.WithdrawnToday, acc.DailyLimit, acc.Number)
	return err
}

func (t *sqliteTx) InsertAccount(ctx context.Context, acc *domain.Account) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO accounts (number, pin_hash, name, phone, balance, withdrawn_today, daily_limit, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		acc.Number, acc.PINHash, acc.Name, acc.Phone, acc.Balance, acc.WithdrawnToday, acc.DailyLimit, formatSQLiteTime(acc.CreatedAt))
	return err
}

func (t *sqliteTx) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return sqliteGetProduct(ctx, t.tx, id)
}

func (t *sqliteTx) InsertProduct(ctx context.Context, p *domain.Product) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO products (name, quantity, price, category, low_threshold, supplier_id) VALUES (?, ?, ?, ?, ?, ?)`,
		p.Name, p.Quantity, p.Price, p.Category, p.LowThreshold, supplierArg(p.SupplierID))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

func (t *sqliteTx) PutProduct(ctx context.Context, p *domain.Product) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE products SET name = ?, quantity = ?, price = ?, category = ?, low_threshold = ?, supplier_id = ? WHERE id = ?`,
		p.Name, p.Quantity, p.Price, p.Category, p.LowThreshold, supplierArg(p.SupplierID), p.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *sqliteTx) DeleteProduct(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *sqliteTx) ProductNameTaken(ctx context.Context, name string, excludeID int64) (bool, error) {
	var taken bool
	err := t.tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM products WHERE name = ? AND id <> ?)`, name, excludeID).Scan(&taken)
	return taken, err
}

func (t *sqliteTx) SupplierExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM suppliers WHERE id = ?)`, id).Scan(&exists)
	return exists, err
}

func (t *sqliteTx) InsertSupplier(ctx context.Context, sup *domain.Supplier) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO suppliers (name, contact) VALUES (?, ?)`, sup.Name, sup.Contact)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	sup.ID = id
	return nil
}

func (t *sqliteTx) AppendHistory(ctx context.Context, rec *domain.HistoryRecord) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO history (entity_ref, op, magnitude, new_price, actor, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.EntityRef, string(rec.Op), rec.Magnitude, priceArg(rec.NewPrice), rec.Actor, formatSQLiteTime(rec.CreatedAt))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rec.ID = id
	return nil
}

func (t *sqliteTx) AppendAudit(ctx context.Context, entry *domain.AuditEntry) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO audit_log (id, action, details, actor, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.Action, entry.Details, entry.Actor, formatSQLiteTime(entry.CreatedAt))
	return err
}

func supplierArg(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func priceArg(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

// --- Store reads ---

func (s *SQLite) GetAccount(ctx context.Context, number string) (*domain.Account, error) {
	return sqliteGetAccount(ctx, s.db, number)
}

func (s *SQLite) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return sqliteGetProduct(ctx, s.db, id)
}

func (s *SQLite) listProducts(ctx context.Context, where string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, quantity, price, category, low_threshold, supplier_id FROM products `+where+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]domain.Product, 0)
	for rows.Next() {
		var p domain.Product
		var supplier sql.NullInt64
		if err := rows.Scan(&p.ID, &p.Name, &p.Quantity, &p.Price, &p.Category, &p.LowThreshold, &supplier); err != nil {
			return nil, err
		}
		if supplier.Valid {
			p.SupplierID = &supplier.Int64
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.listProducts(ctx, "")
}

func (s *SQLite) ListLowStock(ctx context.Context) ([]domain.Product, error) {
	return s.listProducts(ctx, "WHERE quantity < low_threshold")
}

func (s *SQLite) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, contact FROM suppliers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]domain.Supplier, 0)
	for rows.Next() {
		var sup domain.Supplier
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.Contact); err != nil {
			return nil, err
		}
		out = append(out, sup)
	}
	return out, rows.Err()
}

func (s *SQLite) QueryHistory(ctx context.Context, entityRef string, limit int) ([]domain.HistoryRecord, error) {
	q := `SELECT id, entity_ref, op, magnitude, new_price, actor, created_at FROM history WHERE entity_ref = ? ORDER BY id DESC`
	args := []any{entityRef}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]domain.HistoryRecord, 0)
	for rows.Next() {
		var rec domain.HistoryRecord
		var op, created string
		var price sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.EntityRef, &op, &rec.Magnitude, &price, &rec.Actor, &created); err != nil {
			return nil, err
		}
		rec.Op = domain.OpKind(op)
		if price.Valid {
			rec.NewPrice = &price.Int64
		}
		rec.CreatedAt = parseSQLiteTime(created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLite) AppendNotification(ctx context.Context, n *domain.Notification) error {
	if n.Status == "" {
		n.Status = domain.NotificationPending
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (message, status, created_at) VALUES (?, ?, ?)`,
		n.Message, string(n.Status), formatSQLiteTime(n.CreatedAt))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	n.ID = id
	return nil
}

func (s *SQLite) ListNotifications(ctx context.Context, status *domain.NotificationStatus) ([]domain.Notification, error) {
	q := `SELECT id, message, status, created_at FROM notifications`
	args := []any{}
	if status != nil {
		q += ` WHERE status = ?`
		args = append(args, string(*status))
	}
	q += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]domain.Notification, 0)
	for rows.Next() {
		var n domain.Notification
		var st, created string
		if err := rows.Scan(&n.ID, &n.Message, &st, &created); err != nil {
			return nil, err
		}
		n.Status = domain.NotificationStatus(st)
		n.CreatedAt = parseSQLiteTime(created)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *SQLite) ResolveNotifications(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = 'resolved' WHERE status = 'pending'`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLite) SalesSummary(ctx context.Context, from, to time.Time) ([]domain.SalesLine, error) {
	q := `
		SELECT p.id, p.name,
		       COALESCE(SUM(h.magnitude), 0),
		       COALESCE(SUM(h.magnitude * COALESCE(h.new_price, 0)), 0)
		FROM products p
		JOIN history h ON h.entity_ref = 'product:' || CAST(p.id AS TEXT) AND h.op = 'Sale'`
	args := []any{}
	// julianday() rather than text comparison: RFC3339Nano trims
	// trailing zeros, so the stored strings do not sort by instant.
	if !from.IsZero() {
		q += ` AND julianday(h.created_at) >= julianday(?)`
		args = append(args, formatSQLiteTime(from))
	}
	if !to.IsZero() {
		q += ` AND julianday(h.created_at) <= julianday(?)`
		args = append(args, formatSQLiteTime(to))
	}
	q += `
		GROUP BY p.id, p.name
		ORDER BY p.id`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]domain.SalesLine, 0)
	for rows.Next() {
		var l domain.SalesLine
		if err := rows.Scan(&l.ProductID, &l.ProductName, &l.UnitsSold, &l.Revenue); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

var _ Store = (*SQLite)(nil)
var _ Store = (*Memory)(nil)
