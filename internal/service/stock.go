package service

import (
	"context"
	"fmt"
	"time"

	"github.com/punchamoorthee/ledgercore/internal/audit"
	"github.com/punchamoorthee/ledgercore/internal/domain"
	"github.com/punchamoorthee/ledgercore/internal/ledger"
	"github.com/punchamoorthee/ledgercore/internal/store"
	"github.com/punchamoorthee/ledgercore/internal/validate"
)

type StockService struct {
	engine   *ledger.Engine
	store    store.Store
	recorder *audit.Recorder
}

func NewStockService(engine *ledger.Engine, st store.Store, rec *audit.Recorder) *StockService {
	return &StockService{engine: engine, store: st, recorder: rec}
}

// productNameKey serializes claims on a product name so two writers
// cannot both pass the uniqueness check before either commits.
func productNameKey(name string) string {
	return "product-name:" + name
}

func lowStockMessage(p *domain.Product) string {
	return fmt.Sprintf("Low stock for product ID %d: Quantity %d below threshold %d",
		p.ID, p.Quantity, p.LowThreshold)
}

func (s *StockService) checkSupplier(ctx context.Context, tx store.Tx, id *int64) error {
	if id == nil {
		return nil
	}
	exists, err := tx.SupplierExists(ctx, *id)
	if err != nil {
		return err
	}
	if !exists {
		return domain.Rejectf("invalid supplier ID")
	}
	return nil
}

// AddProduct creates a product through the engine so the opening stock
// shows up as an Add history record. New products are locked by name
// until the id exists.
func (s *StockService) AddProduct(ctx context.Context, f domain.ProductFields, actor string) (*domain.Product, error) {
	staged, err := s.engine.Apply(ctx, ledger.Mutation{
		LockKeys: []string{productNameKey(f.Name)},
		Actor:    actor,
		Action:   "Added",
		Details:  fmt.Sprintf("Product: %s", f.Name),
		Stage: func(ctx context.Context, tx store.Tx) (*ledger.Staged, error) {
			if err := validate.ProductFields(f); err != nil {
				return nil, err
			}
			taken, err := tx.ProductNameTaken(ctx, f.Name, 0)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, domain.Rejectf("product name must be unique")
			}
			if err := s.checkSupplier(ctx, tx, f.SupplierID); err != nil {
				return nil, err
			}
			p := &domain.Product{
				Name:         f.Name,
				Quantity:     f.Quantity,
				Price:        f.Price,
				Category:     f.Category,
				LowThreshold: f.LowThreshold,
				SupplierID:   f.SupplierID,
			}
			if err := tx.InsertProduct(ctx, p); err != nil {
				return nil, err
			}
			price := p.Price
			staged := &ledger.Staged{
				Records: []domain.HistoryRecord{{
					EntityRef: domain.ProductRef(p.ID),
					Op:        domain.OpAdd,
					Magnitude: int64(p.Quantity),
					NewPrice:  &price,
				}},
				Result: p,
			}
			if p.BelowThreshold() {
				staged.Notification = &domain.Notification{Message: lowStockMessage(p)}
			}
			return staged, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return staged.Result.(*domain.Product), nil
}

// EditProduct overwrites the product's fields. The quantity delta and
// the price-change flag decide the history kind: Adjust when stock
// grew, Reduce when it shrank or when only the price moved; no record
// when nothing ledger-relevant changed (the edit is still audited).
func (s *StockService) EditProduct(ctx context.Context, id int64, f domain.ProductFields, actor string) (*domain.Product, error) {
	staged, err := s.engine.Apply(ctx, ledger.Mutation{
		// The name key is held as well so a rename cannot race another
		// claim on the same name past the uniqueness check.
		LockKeys: []string{domain.ProductRef(id), productNameKey(f.Name)},
		Actor:    actor,
		Action:   "Edited",
		Details:  fmt.Sprintf("Product: %s, ID: %d", f.Name, id),
		Stage: func(ctx context.Context, tx store.Tx) (*ledger.Staged, error) {
			p, err := tx.GetProduct(ctx, id)
			if err != nil {
				return nil, err
			}
			if err := validate.ProductFields(f); err != nil {
				return nil, err
			}
			taken, err := tx.ProductNameTaken(ctx, f.Name, id)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, domain.Rejectf("product name must be unique")
			}
			if err := s.checkSupplier(ctx, tx, f.SupplierID); err != nil {
				return nil, err
			}

			delta := f.Quantity - p.Quantity
			priceChanged := f.Price != p.Price

			p.Name = f.Name
			p.Quantity = f.Quantity
			p.Price = f.Price
			p.Category = f.Category
			p.LowThreshold = f.LowThreshold
			p.SupplierID = f.SupplierID
			if err := tx.PutProduct(ctx, p); err != nil {
				return nil, err
			}

			staged := &ledger.Staged{Result: p}
			if delta != 0 || priceChanged {
				kind := domain.OpReduce
				if delta > 0 {
					kind = domain.OpAdjust
				}
				rec := domain.HistoryRecord{
					EntityRef: domain.ProductRef(id),
					Op:        kind,
					Magnitude: abs64(int64(delta)),
				}
				if priceChanged {
					price := p.Price
					rec.NewPrice = &price
				}
				staged.Records = []domain.HistoryRecord{rec}
			}
			if p.BelowThreshold() {
				staged.Notification = &domain.Notification{Message: lowStockMessage(p)}
			}
			return staged, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return staged.Result.(*domain.Product), nil
}

// DeleteProduct records the prior quantity as a Delete entry and
// removes the entity within the same atomic group.
func (s *StockService) DeleteProduct(ctx context.Context, id int64, actor string) error {
	_, err := s.engine.Apply(ctx, ledger.Mutation{
		LockKeys: []string{domain.ProductRef(id)},
		Actor:    actor,
		Action:   "Deleted",
		Details:  fmt.Sprintf("Product ID: %d", id),
		Stage: func(ctx context.Context, tx store.Tx) (*ledger.Staged, error) {
			p, err := tx.GetProduct(ctx, id)
			if err != nil {
				return nil, err
			}
			if err := tx.DeleteProduct(ctx, id); err != nil {
				return nil, err
			}
			return &ledger.Staged{
				Records: []domain.HistoryRecord{{
					EntityRef: domain.ProductRef(id),
					Op:        domain.OpDelete,
					Magnitude: int64(p.Quantity),
				}},
				Result: p,
			}, nil
		},
	})
	return err
}

func (s *StockService) Sell(ctx context.Context, id int64, quantity int, actor string) (*domain.Product, error) {
	staged, err := s.engine.Apply(ctx, ledger.Mutation{
		LockKeys: []string{domain.ProductRef(id)},
		Actor:    actor,
		Action:   "Sold",
		Details:  fmt.Sprintf("Product ID: %d, Quantity: %d", id, quantity),
		Stage: func(ctx context.Context, tx store.Tx) (*ledger.Staged, error) {
			p, err := tx.GetProduct(ctx, id)
			if err != nil {
				return nil, err
			}
			if err := validate.Sell(p, quantity); err != nil {
				return nil, err
			}
			p.Quantity -= quantity
			if err := tx.PutProduct(ctx, p); err != nil {
				return nil, err
			}
			price := p.Price
			staged := &ledger.Staged{
				Records: []domain.HistoryRecord{{
					EntityRef: domain.ProductRef(id),
					Op:        domain.OpSale,
					Magnitude: int64(quantity),
					NewPrice:  &price,
				}},
				Result: p,
			}
			if p.BelowThreshold() {
				staged.Notification = &domain.Notification{Message: lowStockMessage(p)}
			}
			return staged, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return staged.Result.(*domain.Product), nil
}

// AddSupplier provisions a supplier; suppliers are not ledger entities.
func (s *StockService) AddSupplier(ctx context.Context, name, contact string) (*domain.Supplier, error) {
	if name == "" {
		return nil, domain.Rejectf("supplier name is required")
	}
	sup := &domain.Supplier{Name: name, Contact: contact}
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		return tx.InsertSupplier(ctx, sup)
	})
	if err != nil {
		return nil, err
	}
	return sup, nil
}

func (s *StockService) Get(ctx context.Context, id int64) (*domain.Product, error) {
	return s.store.GetProduct(ctx, id)
}

func (s *StockService) List(ctx context.Context) ([]domain.Product, error) {
	return s.store.ListProducts(ctx)
}

func (s *StockService) LowStock(ctx context.Context) ([]domain.Product, error) {
	return s.store.ListLowStock(ctx)
}

func (s *StockService) Suppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.store.ListSuppliers(ctx)
}

func (s *StockService) History(ctx context.Context, id int64, limit int) ([]domain.HistoryRecord, error) {
	return s.store.QueryHistory(ctx, domain.ProductRef(id), limit)
}

func (s *StockService) Notifications(ctx context.Context, status *domain.NotificationStatus) ([]domain.Notification, error) {
	return s.store.ListNotifications(ctx, status)
}

// ResolveNotifications is the external collaborator action flipping
// every pending notification to resolved. Not a ledger mutation, but
// attributed in the audit log when anything changed.
func (s *StockService) ResolveNotifications(ctx context.Context, actor string) (int64, error) {
	n, err := s.store.ResolveNotifications(ctx)
	if err != nil || n == 0 {
		return n, err
	}
	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		return s.recorder.Record(ctx, tx, actor, "Notifications Resolved", fmt.Sprintf("Count: %d", n))
	})
	return n, err
}

// SalesSummary aggregates committed sales, optionally bounded to an
// inclusive [from, to] window. Zero bounds mean all time.
func (s *StockService) SalesSummary(ctx context.Context, from, to time.Time) ([]domain.SalesLine, error) {
	return s.store.SalesSummary(ctx, from, to)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
