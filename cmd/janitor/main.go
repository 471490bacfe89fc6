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
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/backend"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/export"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/janitor"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("janitor exited with error", "error", err)
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

	shutdownObs, err := observability.Setup(ctx, "xcommand-janitor", cfg.OTLPEndpoint)
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

	if err := db.Migrate(ctx, pool); err != nil {
		return err
	}

	dockerBackend, err := backend.NewDocker(cfg.Docker, cfg.BaseDomain)
	if err != nil {
		return err
	}

	var notifier janitor.ExportNotifier
	if cfg.SMTP.Enabled() {
		mailNotifier, err := export.NewMailNotifier(cfg.SMTP)
		if err != nil {
			return err
		}
		notifier = mailNotifier
	} else {
		slog.Warn("SMTP not configured, export notices will only be logged")
		notifier = export.LogNotifier{}
	}

	j := janitor.New(store.NewTxRunner(pool), dockerBackend, notifier, cfg.Janitor.ExportLeadTime)
	return janitor.NewScheduler(j, cfg.Janitor.Interval).Start(ctx)
}
