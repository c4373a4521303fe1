package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/punchamoorthee/ledgercore/internal/api"
	"github.com/punchamoorthee/ledgercore/internal/audit"
	"github.com/punchamoorthee/ledgercore/internal/config"
	"github.com/punchamoorthee/ledgercore/internal/ledger"
	"github.com/punchamoorthee/ledgercore/internal/service"
	"github.com/punchamoorthee/ledgercore/internal/store"
)

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return store.NewPostgres(context.Background(), cfg.DBSource)
	case "memory":
		return store.NewMemory(), nil
	default:
		return store.NewSQLite(cfg.DBSource)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	var logger *zap.Logger
	if cfg.Env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	st, err := openStore(cfg)
	if err != nil {
		logger.Fatal("Unable to open ledger store", zap.String("driver", cfg.Driver), zap.Error(err))
	}
	defer st.Close()

	// Initialize Layers
	recorder := audit.NewRecorder()
	engine := ledger.NewEngine(st, recorder, logger).WithLockWait(cfg.LockWait)
	accounts := service.NewAccountService(engine, st, recorder)
	stock := service.NewStockService(engine, st, recorder)
	handler := api.NewHandler(accounts, stock, logger)

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", handler.HealthCheck)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/accounts", handler.OpenAccount).Methods("POST")
	apiV1.HandleFunc("/accounts/{number}", handler.GetAccount).Methods("GET")
	apiV1.HandleFunc("/accounts/{number}/deposit", handler.Deposit).Methods("POST")
	apiV1.HandleFunc("/accounts/{number}/withdraw", handler.Withdraw).Methods("POST")
	apiV1.HandleFunc("/accounts/{number}/pin", handler.ChangePIN).Methods("PUT")
	apiV1.HandleFunc("/accounts/{number}/history", handler.AccountHistory).Methods("GET")
	apiV1.HandleFunc("/transfers", handler.CreateTransfer).Methods("POST")

	apiV1.HandleFunc("/products", handler.AddProduct).Methods("POST")
	apiV1.HandleFunc("/products", handler.ListProducts).Methods("GET")
	apiV1.HandleFunc("/products/low-stock", handler.ListLowStock).Methods("GET")
	apiV1.HandleFunc("/products/{id}", handler.GetProduct).Methods("GET")
	apiV1.HandleFunc("/products/{id}", handler.EditProduct).Methods("PUT")
	apiV1.HandleFunc("/products/{id}", handler.DeleteProduct).Methods("DELETE")
	apiV1.HandleFunc("/products/{id}/sell", handler.SellProduct).Methods("POST")
	apiV1.HandleFunc("/products/{id}/history", handler.ProductHistory).Methods("GET")

	apiV1.HandleFunc("/suppliers", handler.AddSupplier).Methods("POST")
	apiV1.HandleFunc("/suppliers", handler.ListSuppliers).Methods("GET")
	apiV1.HandleFunc("/notifications", handler.ListNotifications).Methods("GET")
	apiV1.HandleFunc("/notifications/resolve", handler.ResolveNotifications).Methods("POST")
	apiV1.HandleFunc("/reports/sales", handler.SalesReport).Methods("GET")

	logger.Info("Server starting", zap.String("port", cfg.Port), zap.String("driver", cfg.Driver))
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		logger.Fatal("Server stopped", zap.Error(err))
	}
}
