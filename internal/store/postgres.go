package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/punchamoorthee/ledgercore/internal/domain"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	number          TEXT PRIMARY KEY,
	pin_hash        TEXT NOT NULL,
	name            TEXT NOT NULL,
	phone           TEXT NOT NULL DEFAULT '',
	balance         BIGINT NOT NULL CHECK (balance >= 0),
	withdrawn_today BIGINT NOT NULL DEFAULT 0,
	daily_limit     BIGINT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS suppliers (
	id      BIGSERIAL PRIMARY KEY,
	name    TEXT NOT NULL,
	contact TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS products (
	id            BIGSERIAL PRIMARY KEY,
	name          TEXT NOT NULL UNIQUE,
	quantity      BIGINT NOT NULL CHECK (quantity BETWEEN 0 AND 10000),
	price         BIGINT NOT NULL CHECK (price BETWEEN 0 AND 10000000),
	category      TEXT NOT NULL,
	low_threshold BIGINT NOT NULL DEFAULT 10 CHECK (low_threshold BETWEEN 0 AND 100),
	supplier_id   BIGINT REFERENCES suppliers(id)
);

CREATE TABLE IF NOT EXISTS history (
	id         BIGSERIAL PRIMARY KEY,
	entity_ref TEXT NOT NULL,
	op         TEXT NOT NULL,
	magnitude  BIGINT NOT NULL,
	new_price  BIGINT,
	actor      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_entity ON history (entity_ref, id DESC);

CREATE TABLE IF NOT EXISTS notifications (
	id         BIGSERIAL PRIMARY KEY,
	message    TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','resolved')),
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id         TEXT PRIMARY KEY,
	action     TEXT NOT NULL,
	details    TEXT NOT NULL DEFAULT '',
	actor      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

// Postgres implements Store on a pgx connection pool. The atomic group
// maps directly onto a SQL transaction.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	s := &Postgres{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return s, nil
}

func (s *Postgres) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, pgSchema)
	return err
}

func (s *Postgres) Close() {
	s.pool.Close()
}

func (s *Postgres) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var acc domain.Account
	err := row.Scan(&acc.Number, &acc.PINHash, &acc.Name, &acc.Phone,
		&acc.Balance, &acc.WithdrawnToday, &acc.DailyLimit, &acc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &acc, nil
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Quantity, &p.Price, &p.Category, &p.LowThreshold, &p.SupplierID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

const pgSelectAccount = `SELECT number, pin_hash, name, phone, balance, withdrawn_today, daily_limit, created_at FROM accounts WHERE number = $1`
const pgSelectProduct = `SELECT id, name, quantity, price, category, low_threshold, supplier_id FROM products WHERE id = $1`

func (t *pgTx) GetAccount(ctx context.Context, number string) (*domain.Account, error) {
	return scanAccount(t.tx.QueryRow(ctx, pgSelectAccount, number))
}

func (t *pgTx) PutAccount(ctx context.Context, acc *domain.Account) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE accounts SET pin_hash = $2, name = $3, phone = $4, balance = $5, withdrawn_today = $6, daily_limit = $7 WHERE number = $1`,
		acc.Number, acc.PINHash, acc.Name, acc.Phone, acc.Balance, acc.WithdrawnToday, acc.DailyLimit)
	return err
}

func (t *pgTx) InsertAccount(ctx context.Context, acc *domain.Account) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO accounts (number, pin_hash, name, phone, balance, withdrawn_today, daily_limit, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		acc.Number, acc.PINHash, acc.Name, acc.Phone, acc.Balance, acc.WithdrawnToday, acc.DailyLimit, acc.CreatedAt)
	return err
}

func (t *pgTx) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return scanProduct(t.tx.QueryRow(ctx, pgSelectProduct, id))
}

func (t *pgTx) InsertProduct(ctx context.Context, p *domain.Product) error {
	return t.tx.QueryRow(ctx,
		`INSERT INTO products (name, quantity, price, category, low_threshold, supplier_id) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		p.Name, p.Quantity, p.Price, p.Category, p.LowThreshold, p.SupplierID).Scan(&p.ID)
}

func (t *pgTx) PutProduct(ctx context.Context, p *domain.Product) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE products SET name = $2, quantity = $3, price = $4, category = $5, low_threshold = $6, supplier_id = $7 WHERE id = $1`,
		p.ID, p.Name, p.Quantity, p.Price, p.Category, p.LowThreshold, p.SupplierID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *pgTx) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *pgTx) ProductNameTaken(ctx context.Context, name string, excludeID int64) (bool, error) {
	var taken bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM products WHERE name = $1 AND id <> $2)`, name, excludeID).Scan(&taken)
	return taken, err
}

func (t *pgTx) SupplierExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM suppliers WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (t *pgTx) InsertSupplier(ctx context.Context, sup *domain.Supplier) error {
	return t.tx.QueryRow(ctx,
		`INSERT INTO suppliers (name, contact) VALUES ($1, $2) RETURNING id`,
		sup.Name, sup.Contact).Scan(&sup.ID)
}

func (t *pgTx) AppendHistory(ctx context.Context, rec *domain.HistoryRecord) error {
	return t.tx.QueryRow(ctx,
		`INSERT INTO history (entity_ref, op, magnitude, new_price, actor, created_at) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		rec.EntityRef, string(rec.Op), rec.Magnitude, rec.NewPrice, rec.Actor, rec.CreatedAt).Scan(&rec.ID)
}

func (t *pgTx) AppendAudit(ctx context.Context, entry *domain.AuditEntry) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO audit_log (id, action, details, actor, created_at) VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.Action, entry.Details, entry.Actor, entry.CreatedAt)
	return err
}

// --- Store reads ---

func (s *Postgres) GetAccount(ctx context.Context, number string) (*domain.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx, pgSelectAccount, number))
}

func (s *Postgres) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return scanProduct(s.pool.QueryRow(ctx, pgSelectProduct, id))
}

func (s *Postgres) listProducts(ctx context.Context, where string) ([]domain.Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, quantity, price, category, low_threshold, supplier_id FROM products `+where+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Product, 0)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Quantity, &p.Price, &p.Category, &p.LowThreshold, &p.SupplierID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Postgres) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.listProducts(ctx, "")
}

func (s *Postgres) ListLowStock(ctx context.Context) ([]domain.Product, error) {
	return s.listProducts(ctx, "WHERE quantity < low_threshold")
}

func (s *Postgres) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, contact FROM suppliers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

func (s *Postgres) QueryHistory(ctx context.Context, entityRef string, limit int) ([]domain.HistoryRecord, error) {
	q := `SELECT id, entity_ref, op, magnitude, new_price, actor, created_at FROM history WHERE entity_ref = $1 ORDER BY id DESC`
	args := []any{entityRef}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.HistoryRecord, 0)
	for rows.Next() {
		var rec domain.HistoryRecord
		var op string
		if err := rows.Scan(&rec.ID, &rec.EntityRef, &op, &rec.Magnitude, &rec.NewPrice, &rec.Actor, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Op = domain.OpKind(op)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Postgres) AppendNotification(ctx context.Context, n *domain.Notification) error {
	if n.Status == "" {
		n.Status = domain.NotificationPending
	}
	return s.pool.QueryRow(ctx,
		`INSERT INTO notifications (message, status, created_at) VALUES ($1, $2, $3) RETURNING id`,
		n.Message, string(n.Status), n.CreatedAt).Scan(&n.ID)
}

func (s *Postgres) ListNotifications(ctx context.Context, status *domain.NotificationStatus) ([]domain.Notification, error) {
	q := `SELECT id, message, status, created_at FROM notifications`
	args := []any{}
	if status != nil {
		q += ` WHERE status = $1`
		args = append(args, string(*status))
	}
	q += ` ORDER BY id`
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Notification, 0)
	for rows.Next() {
		var n domain.Notification
		var st string
		if err := rows.Scan(&n.ID, &n.Message, &st, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Status = domain.NotificationStatus(st)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Postgres) ResolveNotifications(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET status = 'resolved' WHERE status = 'pending'`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Postgres) SalesSummary(ctx context.Context, from, to time.Time) ([]domain.SalesLine, error) {
	q := `
		SELECT p.id, p.name,
		       COALESCE(SUM(h.magnitude), 0),
		       COALESCE(SUM(h.magnitude * COALESCE(h.new_price, 0)), 0)
		FROM products p
		JOIN history h ON h.entity_ref = 'product:' || p.id::text AND h.op = 'Sale'`
	args := []any{}
	if !from.IsZero() {
		args = append(args, from)
		q += fmt.Sprintf(` AND h.created_at >= $%d`, len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		q += fmt.Sprintf(` AND h.created_at <= $%d`, len(args))
	}
	q += `
		GROUP BY p.id, p.name
		ORDER BY p.id`
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

var _ Store = (*Postgres)(nil)
