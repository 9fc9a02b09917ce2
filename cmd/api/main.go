package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/instapay/instapay-backend/internal/account"
	"github.com/instapay/instapay-backend/internal/config"
	"github.com/instapay/instapay-backend/internal/engine"
	"github.com/instapay/instapay-backend/internal/fees"
	"github.com/instapay/instapay-backend/internal/handler"
	"github.com/instapay/instapay-backend/internal/logging"
	"github.com/instapay/instapay-backend/internal/middleware"
	"github.com/instapay/instapay-backend/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("instapay-api", cfg.LogLevel, cfg.AppEnv)

	db, err := connectDB(cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	accounts := repository.NewAccountRepository(db)
	ledger := repository.NewTransactionRepository(db)
	idempotency := repository.NewIdempotencyRepository(db)

	eng := engine.New(
		accounts,
		ledger,
		idempotency,
		fees.NewCalculator(cfg.CommissionRate, cfg.VATRate),
		db,
		cfg.EngineMaxRetries,
	)
	accountSvc := account.NewService(accounts, cfg.StartingBalance)

	txnHandler := handler.NewTransactionHandler(eng)
	acctHandler := handler.NewAccountHandler(accountSvc)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("POST /api/v1/accounts", acctHandler.Open)
	mux.HandleFunc("GET /api/v1/accounts/{id}", acctHandler.Get)
	mux.HandleFunc("DELETE /api/v1/accounts/{id}", acctHandler.Deactivate)
	mux.HandleFunc("GET /api/v1/accounts/{id}/transactions", txnHandler.History)
	mux.HandleFunc("POST /api/v1/transfers", txnHandler.CreateTransfer)
	mux.HandleFunc("POST /api/v1/withdrawals", txnHandler.CreateWithdrawal)
	mux.HandleFunc("GET /api/v1/transactions/{ref}", txnHandler.Lookup)

	root := middleware.Tracing(middleware.Logging(middleware.Recovery(mux)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		slog.Error("failed to write health response", "error", err)
	}
}

func connectDB(cfg *config.Config) (*sql.DB, error) {
	ctx := context.Background()
	pool := repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}

	var lastErr error
	for i := range 30 {
		db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, pool)
		if err == nil {
			return db, nil
		}
		lastErr = err
		slog.Info("waiting for database", "attempt", i+1)
		time.Sleep(time.Second)
	}
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", lastErr)
}
