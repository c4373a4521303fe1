package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/punchamoorthee/ledgercore/internal/audit"
	"github.com/punchamoorthee/ledgercore/internal/domain"
	"github.com/punchamoorthee/ledgercore/internal/ledger"
	"github.com/punchamoorthee/ledgercore/internal/store"
)

func testFields(name string) domain.ProductFields {
	return domain.ProductFields{
		Name:         name,
		Quantity:     50,
		Price:        1200,
		Category:     "Hardware",
		LowThreshold: domain.DefaultLowThreshold,
	}
}

func TestAddProduct(t *testing.T) {
	_, svc, st := newTestServices(t)
	ctx := context.Background()

	p, err := svc.AddProduct(ctx, testFields("Widget"), "clerk-1")
	require.NoError(t, err)
	assert.NotZero(t, p.ID)
	assert.Equal(t, 50, p.Quantity)

	recs, err := st.QueryHistory(ctx, domain.ProductRef(p.ID), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.OpAdd, recs[0].Op)
	assert.Equal(t, int64(50), recs[0].Magnitude)
	require.NotNil(t, recs[0].NewPrice)
	assert.Equal(t, int64(1200), *recs[0].NewPrice)

	_, err = svc.AddProduct(ctx, testFields("Widget"), "clerk-1")
	assert.EqualError(t, err, "product name must be unique")
}

func TestAddProductSupplierCheck(t *testing.T) {
	_, svc, _ := newTestServices(t)
	ctx := context.Background()

	bogus := int64(42)
	f := testFields("Widget")
	f.SupplierID = &bogus
	_, err := svc.AddProduct(ctx, f, "clerk-1")
	assert.EqualError(t, err, "invalid supplier ID")

	sup, err := svc.AddSupplier(ctx, "Acme Wholesale", "sales@acme.example")
	require.NoError(t, err)
	f.SupplierID = &sup.ID
	p, err := svc.AddProduct(ctx, f, "clerk-1")
	require.NoError(t, err)
	require.NotNil(t, p.SupplierID)
	assert.Equal(t, sup.ID, *p.SupplierID)
}

func TestAddProductBelowThresholdNotifies(t *testing.T) {
	_, svc, _ := newTestServices(t)
	ctx := context.Background()

	f := testFields("Scarce")
	f.Quantity = 3
	p, err := svc.AddProduct(ctx, f, "clerk-1")
	require.NoError(t, err)

	ns, err := svc.Notifications(ctx, nil)
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t,
		fmt.Sprintf("Low stock for product ID %d: Quantity 3 below threshold %d", p.ID, domain.DefaultLowThreshold),
		ns[0].Message)
	assert.Equal(t, domain.NotificationPending, ns[0].Status)
}

func TestEditProductRecordsDelta(t *testing.T) {
	_, svc, st := newTestServices(t)
	ctx := context.Background()
	p, err := svc.AddProduct(ctx, testFields("Widget"), "clerk-1")
	require.NoError(t, err)

	// Stock grew by 30.
	f := testFields("Widget")
	f.Quantity = 80
	_, err = svc.EditProduct(ctx, p.ID, f, "clerk-1")
	require.NoError(t, err)

	// Stock shrank by 60 and the price moved.
	f.Quantity = 20
	f.Price = 999
	edited, err := svc.EditProduct(ctx, p.ID, f, "clerk-1")
	require.NoError(t, err)
	assert.Equal(t, 20, edited.Quantity)
	assert.Equal(t, int64(999), edited.Price)

	recs, err := st.QueryHistory(ctx, domain.ProductRef(p.ID), 10)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, domain.OpReduce, recs[0].Op)
	assert.Equal(t, int64(60), recs[0].Magnitude)
	require.NotNil(t, recs[0].NewPrice)
	assert.Equal(t, int64(999), *recs[0].NewPrice)
	assert.Equal(t, domain.OpAdjust, recs[1].Op)
	assert.Equal(t, int64(30), recs[1].Magnitude)
	assert.Nil(t, recs[1].NewPrice, "price unchanged on the first edit")
}

func TestEditProductPriceOnlyChange(t *testing.T) {
	_, svc, st := newTestServices(t)
	ctx := context.Background()
	p, err := svc.AddProduct(ctx, testFields("Widget"), "clerk-1")
	require.NoError(t, err)

	f := testFields("Widget")
	f.Price = 1500
	_, err = svc.EditProduct(ctx, p.ID, f, "clerk-1")
	require.NoError(t, err)

	recs, err := st.QueryHistory(ctx, domain.ProductRef(p.ID), 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.OpReduce, recs[0].Op)
	assert.Equal(t, int64(0), recs[0].Magnitude)
	require.NotNil(t, recs[0].NewPrice)
	assert.Equal(t, int64(1500), *recs[0].NewPrice)
}

func TestEditProductNoLedgerChangeWritesNoRecord(t *testing.T) {
	_, svc, st := newTestServices(t)
	ctx := context.Background()
	p, err := svc.AddProduct(ctx, testFields("Widget"), "clerk-1")
	require.NoError(t, err)

	f := testFields("Widget")
	f.Category = "Tools"
	_, err = svc.EditProduct(ctx, p.ID, f, "clerk-1")
	require.NoError(t, err)

	recs, err := st.QueryHistory(ctx, domain.ProductRef(p.ID), 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1, "only the Add record")
}

func TestEditProductNameUniqueness(t *testing.T) {
	_, svc, _ := newTestServices(t)
	ctx := context.Background()
	_, err := svc.AddProduct(ctx, testFields("Widget"), "clerk-1")
	require.NoError(t, err)
	p2, err := svc.AddProduct(ctx, testFields("Gadget"), "clerk-1")
	require.NoError(t, err)

	f := testFields("Widget")
	_, err = svc.EditProduct(ctx, p2.ID, f, "clerk-1")
	assert.EqualError(t, err, "product name must be unique")

	// Keeping its own name is not a collision.
	_, err = svc.EditProduct(ctx, p2.ID, testFields("Gadget"), "clerk-1")
	assert.NoError(t, err)
}

func TestEditProductRenameHoldsNameKey(t *testing.T) {
	st := store.NewMemory()
	rec := audit.NewRecorder()
	eng := ledger.NewEngine(st, rec, zap.NewNop()).WithLockWait(20 * time.Millisecond)
	svc := NewStockService(eng, st, rec)
	ctx := context.Background()

	p, err := svc.AddProduct(ctx, testFields("Widget"), "clerk-1")
	require.NoError(t, err)

	// Another writer is mid-claim on the target name.
	entered := make(chan struct{})
	proceed := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		errc <- eng.Serialized(ctx, []string{productNameKey("Gadget")}, func(ctx context.Context) error {
			close(entered)
			<-proceed
			return nil
		})
	}()
	<-entered

	_, err = svc.EditProduct(ctx, p.ID, testFields("Gadget"), "clerk-1")
	assert.ErrorIs(t, err, domain.ErrLockBusy)

	close(proceed)
	require.NoError(t, <-errc)

	// With the name free again the rename goes through.
	renamed, err := svc.EditProduct(ctx, p.ID, testFields("Gadget"), "clerk-1")
	require.NoError(t, err)
	assert.Equal(t, "Gadget", renamed.Name)
}

func TestSell(t *testing.T) {
	_, svc, st := newTestServices(t)
	ctx := context.Background()
	p, err := svc.AddProduct(ctx, testFields("Widget"), "clerk-1")
	require.NoError(t, err)

	sold, err := svc.Sell(ctx, p.ID, 15, "clerk-1")
	require.NoError(t, err)
	assert.Equal(t, 35, sold.Quantity)

	recs, err := st.QueryHistory(ctx, domain.ProductRef(p.ID), 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.OpSale, recs[0].Op)
	assert.Equal(t, int64(15), recs[0].Magnitude)
	require.NotNil(t, recs[0].NewPrice)
	assert.Equal(t, int64(1200), *recs[0].NewPrice)

	_, err = svc.Sell(ctx, p.ID, 36, "clerk-1")
	assert.EqualError(t, err, "insufficient stock")

	_, err = svc.Sell(ctx, p.ID, 0, "clerk-1")
	assert.EqualError(t, err, "quantity must be positive")

	_, err = svc.Sell(ctx, 9999, 1, "clerk-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSellCrossingThresholdNotifies(t *testing.T) {
	_, svc, _ := newTestServices(t)
	ctx := context.Background()

	f := testFields("Widget")
	f.Quantity = 12
	p, err := svc.AddProduct(ctx, f, "clerk-1")
	require.NoError(t, err)

	// 12 -> 11 stays above the line of 10.
	_, err = svc.Sell(ctx, p.ID, 1, "clerk-1")
	require.NoError(t, err)
	ns, err := svc.Notifications(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, ns)

	// 11 -> 9 crosses it.
	_, err = svc.Sell(ctx, p.ID, 2, "clerk-1")
	require.NoError(t, err)
	ns, err = svc.Notifications(ctx, nil)
	require.NoError(t, err)
	require.Len(t, ns, 1)

	low, err := svc.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, p.ID, low[0].ID)
}

func TestDeleteProduct(t *testing.T) {
	_, svc, st := newTestServices(t)
	ctx := context.Background()
	p, err := svc.AddProduct(ctx, testFields("Widget"), "clerk-1")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteProduct(ctx, p.ID, "clerk-1"))

	_, err = svc.Get(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// The trail survives the entity.
	recs, err := st.QueryHistory(ctx, domain.ProductRef(p.ID), 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, domain.OpDelete, recs[0].Op)
	assert.Equal(t, int64(50), recs[0].Magnitude, "prior quantity recorded")

	assert.ErrorIs(t, svc.DeleteProduct(ctx, p.ID, "clerk-1"), domain.ErrNotFound)
}

func TestResolveNotifications(t *testing.T) {
	_, svc, _ := newTestServices(t)
	ctx := context.Background()

	for i, name := range []string{"A", "B"} {
		f := testFields(name)
		f.Quantity = i
		_, err := svc.AddProduct(ctx, f, "clerk-1")
		require.NoError(t, err)
	}

	pending := domain.NotificationPending
	ns, err := svc.Notifications(ctx, &pending)
	require.NoError(t, err)
	require.Len(t, ns, 2)

	n, err := svc.ResolveNotifications(ctx, "clerk-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ns, err = svc.Notifications(ctx, &pending)
	require.NoError(t, err)
	assert.Empty(t, ns)

	resolved := domain.NotificationResolved
	ns, err = svc.Notifications(ctx, &resolved)
	require.NoError(t, err)
	assert.Len(t, ns, 2)

	n, err = svc.ResolveNotifications(ctx, "clerk-1")
	require.NoError(t, err)
	assert.Zero(t, n, "resolution is idempotent")
}

func TestSalesSummary(t *testing.T) {
	_, svc, _ := newTestServices(t)
	ctx := context.Background()

	widget, err := svc.AddProduct(ctx, testFields("Widget"), "clerk-1")
	require.NoError(t, err)
	gadget, err := svc.AddProduct(ctx, testFields("Gadget"), "clerk-1")
	require.NoError(t, err)

	_, err = svc.Sell(ctx, widget.ID, 3, "clerk-1")
	require.NoError(t, err)
	_, err = svc.Sell(ctx, widget.ID, 2, "clerk-1")
	require.NoError(t, err)
	_, err = svc.Sell(ctx, gadget.ID, 10, "clerk-1")
	require.NoError(t, err)

	lines, err := svc.SalesSummary(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, int64(5), lines[0].UnitsSold)
	assert.Equal(t, int64(5*1200), lines[0].Revenue)
	assert.Equal(t, int64(10), lines[1].UnitsSold)

	// A window that ends before any sale is empty.
	lines, err = svc.SalesSummary(ctx, time.Time{}, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, lines)

	// Sales of a deleted product drop out of the report.
	require.NoError(t, svc.DeleteProduct(ctx, gadget.ID, "clerk-1"))
	lines, err = svc.SalesSummary(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, widget.ID, lines[0].ProductID)
}

func TestAddSupplier(t *testing.T) {
	_, svc, _ := newTestServices(t)
	ctx := context.Background()

	_, err := svc.AddSupplier(ctx, "", "nobody")
	assert.True(t, domain.IsValidation(err))

	sup, err := svc.AddSupplier(ctx, "Acme Wholesale", "sales@acme.example")
	require.NoError(t, err)
	assert.NotZero(t, sup.ID)

	sups, err := svc.Suppliers(ctx)
	require.NoError(t, err)
	require.Len(t, sups, 1)
	assert.Equal(t, "Acme Wholesale", sups[0].Name)
}
