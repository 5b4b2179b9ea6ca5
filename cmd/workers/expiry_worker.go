package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"commune-portal/admin-portal-backend/internal/config"
	"commune-portal/admin-portal-backend/internal/documents"
	"commune-portal/admin-portal-backend/internal/ledger"
	"commune-portal/admin-portal-backend/pkg/logger"
)

// ExpiryWorker flips approved documents past their validity window to
// EXPIRED on a cron schedule.
type ExpiryWorker struct {
	service *documents.Service
	logger  *zap.Logger
}

func NewExpiryWorker(service *documents.Service, logger *zap.Logger) *ExpiryWorker {
	return &ExpiryWorker{service: service, logger: logger}
}

// Run performs a single expiry sweep.
func (w *ExpiryWorker) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	count, err := w.service.ExpireOverdue(ctx)
	if err != nil {
		w.logger.Error("Expiry sweep failed", zap.Error(err))
		return
	}
	w.logger.Info("Expiry sweep complete", zap.Int64("expired", count))
}

func main() {
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(cfg.Logging.Environment)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	var ledgerClient ledger.Client
	if cfg.Ledger.BaseURL != "" {
		ledgerClient = ledger.NewHTTPClient(cfg.Ledger.BaseURL, cfg.Ledger.Timeout)
	} else {
		ledgerClient = ledger.NewMemoryClient()
	}

	// Expiry needs no catalog lookups or approval gate; issuance stays with
	// the API process.
	documentService := documents.NewService(documents.NewRepository(db), nil, ledgerClient, nil, cfg.Ledger.Timeout, log)
	worker := NewExpiryWorker(documentService, log)

	c := cron.New()
	if _, err := c.AddJob(cfg.Workers.ExpirySchedule, worker); err != nil {
		log.Fatal("Invalid expiry schedule", zap.String("schedule", cfg.Workers.ExpirySchedule), zap.Error(err))
	}
	c.Start()
	log.Info("Expiry worker started", zap.String("schedule", cfg.Workers.ExpirySchedule))

	// Run one sweep at startup so a crashed schedule never leaves documents
	// overdue for a full day.
	worker.Run()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Expiry worker shutting down")
	<-c.Stop().Done()
}
