package main

import (
	"context"
	"errors"
	"log"

	"go.uber.org/zap"

	"github.com/punchamoorthee/ledgercore/internal/audit"
	"github.com/punchamoorthee/ledgercore/internal/config"
	"github.com/punchamoorthee/ledgercore/internal/domain"
	"github.com/punchamoorthee/ledgercore/internal/ledger"
	"github.com/punchamoorthee/ledgercore/internal/service"
	"github.com/punchamoorthee/ledgercore/internal/store"
)

const (
	DemoAccount = "123456"
	DemoPIN     = "7890"
	// $1000.00 in minor units.
	DemoBalance = 100000
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	var st store.Store
	switch cfg.Driver {
	case "postgres":
		st, err = store.NewPostgres(context.Background(), cfg.DBSource)
	case "memory":
		log.Fatal("Seeding a memory store is pointless; use sqlite or postgres")
	default:
		st, err = store.NewSQLite(cfg.DBSource)
	}
	if err != nil {
		log.Fatalf("Unable to open ledger store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	logger := zap.NewNop()
	recorder := audit.NewRecorder()
	engine := ledger.NewEngine(st, recorder, logger)
	accounts := service.NewAccountService(engine, st, recorder)
	stock := service.NewStockService(engine, st, recorder)

	log.Println("--- Seeding Database ---")

	if _, err := st.GetAccount(ctx, DemoAccount); err == nil {
		log.Printf("Account %s already exists. Skipping.", DemoAccount)
		return
	} else if !errors.Is(err, domain.ErrNotFound) {
		log.Fatalf("Checking for existing data failed: %v", err)
	}

	if _, err := accounts.Open(ctx, DemoAccount, DemoPIN, "John Doe", "1234567890", DemoBalance); err != nil {
		log.Fatalf("Seeding demo account failed: %v", err)
	}
	log.Printf("Seeded account %s (John Doe)", DemoAccount)

	supplier, err := stock.AddSupplier(ctx, "Acme Wholesale", "sales@acme.example")
	if err != nil {
		log.Fatalf("Seeding supplier failed: %v", err)
	}

	seedProducts := []domain.ProductFields{
		{Name: "Notebook", Quantity: 120, Price: 350, Category: "Stationery", LowThreshold: 20, SupplierID: &supplier.ID},
		{Name: "Ballpoint Pen", Quantity: 500, Price: 90, Category: "Stationery", LowThreshold: 50, SupplierID: &supplier.ID},
		{Name: "Desk Lamp", Quantity: 8, Price: 2499, Category: "Electronics", LowThreshold: domain.DefaultLowThreshold},
	}
	for _, f := range seedProducts {
		if _, err := stock.AddProduct(ctx, f, "seeder"); err != nil {
			log.Fatalf("Seeding product %q failed: %v", f.Name, err)
		}
	}

	log.Printf("Successfully seeded 1 account, 1 supplier, %d products.", len(seedProducts))
}
