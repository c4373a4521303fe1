package store

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/punchamoorthee/ledgercore/internal/domain"
)

// Memory implements Store entirely in process. WithinTx runs the
// callback against a deep copy of the state and swaps it in only on
// success, which gives the same all-or-nothing visibility as a SQL
// transaction. Intended for tests and embedded use.
type Memory struct {
	mu sync.RWMutex
	st *memState
}

type memState struct {
	accounts      map[string]domain.Account
	products      map[int64]domain.Product
	suppliers     map[int64]domain.Supplier
	history       []domain.HistoryRecord
	notifications []domain.Notification
	audit         []domain.AuditEntry

	nextProductID      int64
	nextSupplierID     int64
	nextHistoryID      int64
	nextNotificationID int64
}

func NewMemory() *Memory {
	return &Memory{st: &memState{
		accounts:           make(map[string]domain.Account),
		products:           make(map[int64]domain.Product),
		suppliers:          make(map[int64]domain.Supplier),
		nextProductID:      1,
		nextSupplierID:     1,
		nextHistoryID:      1,
		nextNotificationID: 1,
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		accounts:           make(map[string]domain.Account, len(s.accounts)),
		products:           make(map[int64]domain.Product, len(s.products)),
		suppliers:          make(map[int64]domain.Supplier, len(s.suppliers)),
		history:            append([]domain.HistoryRecord(nil), s.history...),
		notifications:      append([]domain.Notification(nil), s.notifications...),
		audit:              append([]domain.AuditEntry(nil), s.audit...),
		nextProductID:      s.nextProductID,
		nextSupplierID:     s.nextSupplierID,
		nextHistoryID:      s.nextHistoryID,
		nextNotificationID: s.nextNotificationID,
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.suppliers {
		c.suppliers[k] = v
	}
	return c
}

func (s *Memory) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	staged := s.st.clone()
	if err := fn(&memTx{st: staged}); err != nil {
		return err
	}
	s.st = staged
	return nil
}

type memTx struct {
	st *memState
}

func (t *memTx) GetAccount(ctx context.Context, number string) (*domain.Account, error) {
	acc, ok := t.st.accounts[number]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &acc, nil
}

func (t *memTx) PutAccount(ctx context.Context, acc *domain.Account) error {
	t.st.accounts[acc.Number] = *acc
	return nil
}

func (t *memTx) InsertAccount(ctx context.Context, acc *domain.Account) error {
	if _, ok := t.st.accounts[acc.Number]; ok {
		return domain.Rejectf("account number already exists")
	}
	t.st.accounts[acc.Number] = *acc
	return nil
}

func (t *memTx) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (t *memTx) InsertProduct(ctx context.Context, p *domain.Product) error {
	p.ID = t.st.nextProductID
	t.st.nextProductID++
	t.st.products[p.ID] = *p
	return nil
}

func (t *memTx) PutProduct(ctx context.Context, p *domain.Product) error {
	if _, ok := t.st.products[p.ID]; !ok {
		return domain.ErrNotFound
	}
	t.st.products[p.ID] = *p
	return nil
}

func (t *memTx) DeleteProduct(ctx context.Context, id int64) error {
	if _, ok := t.st.products[id]; !ok {
		return domain.ErrNotFound
	}
	delete(t.st.products, id)
	return nil
}

func (t *memTx) ProductNameTaken(ctx context.Context, name string, excludeID int64) (bool, error) {
	for _, p := range t.st.products {
		if p.Name == name && p.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) SupplierExists(ctx context.Context, id int64) (bool, error) {
	_, ok := t.st.suppliers[id]
	return ok, nil
}

func (t *memTx) InsertSupplier(ctx context.Context, sup *domain.Supplier) error {
	sup.ID = t.st.nextSupplierID
	t.st.nextSupplierID++
	t.st.suppliers[sup.ID] = *sup
	return nil
}

func (t *memTx) AppendHistory(ctx context.Context, rec *domain.HistoryRecord) error {
	rec.ID = t.st.nextHistoryID
	t.st.nextHistoryID++
	t.st.history = append(t.st.history, *rec)
	return nil
}

func (t *memTx) AppendAudit(ctx context.Context, entry *domain.AuditEntry) error {
	t.st.audit = append(t.st.audit, *entry)
	return nil
}

// --- Store reads ---

func (s *Memory) GetAccount(ctx context.Context, number string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.st.accounts[number]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &acc, nil
}

func (s *Memory) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.st.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (s *Memory) ListProducts(ctx context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Product, 0, len(s.st.products))
	for _, p := range s.st.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Memory) ListLowStock(ctx context.Context) ([]domain.Product, error) {
	all, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	low := make([]domain.Product, 0)
	for _, p := range all {
		if p.BelowThreshold() {
			low = append(low, p)
		}
	}
	return low, nil
}

func (s *Memory) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Supplier, 0, len(s.st.suppliers))
	for _, sup := range s.st.suppliers {
		out = append(out, sup)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Memory) QueryHistory(ctx context.Context, entityRef string, limit int) ([]domain.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.HistoryRecord, 0)
	for i := len(s.st.history) - 1; i >= 0; i-- {
		if s.st.history[i].EntityRef != entityRef {
			continue
		}
		out = append(out, s.st.history[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Memory) AppendNotification(ctx context.Context, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = s.st.nextNotificationID
	s.st.nextNotificationID++
	if n.Status == "" {
		n.Status = domain.NotificationPending
	}
	s.st.notifications = append(s.st.notifications, *n)
	return nil
}

func (s *Memory) ListNotifications(ctx context.Context, status *domain.NotificationStatus) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Notification, 0)
	for _, n := range s.st.notifications {
		if status != nil && n.Status != *status {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *Memory) ResolveNotifications(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed int64
	for i := range s.st.notifications {
		if s.st.notifications[i].Status == domain.NotificationPending {
			s.st.notifications[i].Status = domain.NotificationResolved
			changed++
		}
	}
	return changed, nil
}

func (s *Memory) SalesSummary(ctx context.Context, from, to time.Time) ([]domain.SalesLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lines := make(map[int64]*domain.SalesLine)
	for _, rec := range s.st.history {
		if rec.Op != domain.OpSale {
			continue
		}
		if !from.IsZero() && rec.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && rec.CreatedAt.After(to) {
			continue
		}
		id, ok := productIDFromRef(rec.EntityRef)
		if !ok {
			continue
		}
		p, exists := s.st.products[id]
		if !exists {
			// Sales of since-deleted products drop out of the report.
			continue
		}
		line, ok := lines[id]
		if !ok {
			line = &domain.SalesLine{ProductID: id, ProductName: p.Name}
			lines[id] = line
		}
		line.UnitsSold += rec.Magnitude
		if rec.NewPrice != nil {
			line.Revenue += rec.Magnitude * *rec.NewPrice
		}
	}
	out := make([]domain.SalesLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (s *Memory) Close() {}

func productIDFromRef(ref string) (int64, bool) {
	raw, ok := strings.CutPrefix(ref, "product:")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
