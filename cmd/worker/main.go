// The worker is an ops heartbeat: it periodically logs workspace counts by
// status so dashboards and log alerts can watch fleet drift without touching
// the database themselves.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vulkanCommand/xcommand-n8n-rental/core/config"
	"github.com/vulkanCommand/xcommand-n8n-rental/core/db"
	"github.com/vulkanCommand/xcommand-n8n-rental/core/observability"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/model"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/store"
)

const reportInterval = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("worker exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	shutdownObs, err := observability.Setup(ctx, "xcommand-worker", cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownObs(shutdownCtx); err != nil {
			slog.Error("observability shutdown failed", "error", err)
		}
	}()

	pool, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	stores := store.Stores(pool)
	slog.InfoContext(ctx, "worker started", "interval", reportInterval)

	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	for {
		report(ctx, stores)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func report(ctx context.Context, stores store.StoreProvider) {
	counts, err := stores.Workspaces().CountByStatus(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count workspaces", "error", err)
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	slog.InfoContext(ctx, "workspace counts",
		"total", total,
		"provisioning", counts[model.StatusProvisioning],
		"active", counts[model.StatusActive],
		"stopping", counts[model.StatusStopping],
		"deleted", counts[model.StatusDeleted],
	)
}
