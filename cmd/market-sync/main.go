package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grailtrack/market-sync/internal/bulksync"
	"github.com/grailtrack/market-sync/internal/config"
	"github.com/grailtrack/market-sync/internal/ingest"
	"github.com/grailtrack/market-sync/internal/inventory"
	"github.com/grailtrack/market-sync/internal/mapping"
	"github.com/grailtrack/market-sync/internal/market"
	"github.com/grailtrack/market-sync/internal/platform/sqlite"
	"github.com/grailtrack/market-sync/internal/provider"
	"github.com/grailtrack/market-sync/internal/provider/kixchange"
	"github.com/grailtrack/market-sync/internal/provider/peerflip"
	inventoryrepo "github.com/grailtrack/market-sync/internal/repository/inventory"
	jobrepo "github.com/grailtrack/market-sync/internal/repository/job"
	mappingrepo "github.com/grailtrack/market-sync/internal/repository/mapping"
	marketrepo "github.com/grailtrack/market-sync/internal/repository/market"
	"github.com/grailtrack/market-sync/internal/server"
	"github.com/grailtrack/market-sync/internal/syncjob"
)

func main() {
	cfg := config.Load()

	// Root context: cancelled on SIGINT/SIGTERM so in-flight provider
	// fetches stop promptly during graceful shutdown.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Open database
	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	// Repositories
	marketRepo := marketrepo.NewRepository(db.DB)
	jobRepo := jobrepo.NewRepository(db.DB)
	mappingRepo := mappingrepo.NewRepository(db.DB)
	itemRepo := inventoryrepo.NewRepository(db.DB)

	// Provider clients
	registry := provider.NewRegistry()
	registry.Register(kixchange.New(kixchange.WithAPIKey(os.Getenv("KIXCHANGE_API_KEY"))))
	registry.Register(peerflip.New())
	providers := registry.Providers()

	// Services
	guard := market.NewGuard(marketRepo)
	writer := market.NewWriter(marketRepo)
	marketSvc := market.NewService(marketRepo)
	tracker := mapping.NewTracker(mappingRepo)
	jobSvc := syncjob.NewService(jobRepo)
	itemSvc := inventory.NewService(itemRepo, jobSvc, providers)

	staleness := time.Duration(cfg.StalenessMinutes) * time.Minute
	jobSvc.SetFreshness(guard, staleness)
	ingestSvc := ingest.NewService(registry, writer, guard, tracker, mappingRepo, jobRepo, staleness)

	orchestrator := bulksync.NewOrchestrator(
		itemRepo, mappingRepo, ingestSvc, providers,
		time.Duration(cfg.SweepDelayMillis)*time.Millisecond,
	)

	// Worker pool: picks up pending jobs in the background
	pool := syncjob.NewWorkerPool(jobRepo, ingestSvc, cfg.Workers)
	jobSvc.SetNotify(pool.Notify)
	poolDone := make(chan struct{})
	go func() {
		pool.Run(rootCtx)
		close(poolDone)
	}()

	// Re-queue jobs interrupted mid-processing so workers pick them up.
	if err := jobSvc.RecoverStaleJobs(rootCtx); err != nil {
		slog.Error("failed to recover stale jobs", "error", err)
	}
	pool.Notify()

	// HTTP server — rootCtx is used as BaseContext so every request context
	// inherits from it and is cancelled on shutdown.
	srv := server.New(rootCtx, cfg.Port, server.Deps{
		Market:       marketSvc,
		Jobs:         jobSvc,
		Items:        itemSvc,
		Mappings:     tracker,
		Orchestrator: orchestrator,
		Providers:    providers,
	})

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("server started", "port", cfg.Port)
	<-done

	// Cancel root context first so in-flight requests (and their provider
	// fetches) begin winding down immediately.
	rootCancel()

	// Wait for worker pool to drain before shutting down HTTP.
	<-poolDone

	// Then drain connections with a deadline.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	slog.Info("server stopped")
}
