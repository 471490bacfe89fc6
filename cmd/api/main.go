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

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/vulkanCommand/xcommand-n8n-rental/core/config"
	"github.com/vulkanCommand/xcommand-n8n-rental/core/db"
	"github.com/vulkanCommand/xcommand-n8n-rental/core/observability"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/backend"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/http/handler"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/http/handler/webhook"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/http/router"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/service"
	"github.com/vulkanCommand/xcommand-n8n-rental/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("api exited with error", "error", err)
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

	shutdownObs, err := observability.Setup(ctx, "xcommand-api", cfg.OTLPEndpoint)
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

	txRunner := store.NewTxRunner(pool)
	stores := store.Stores(pool)
	allocator := service.NewSubdomainAllocator(stores.Workspaces())
	provisioner := service.NewProvisioner(
		txRunner, stores, allocator, dockerBackend,
		cfg.BaseDomain, cfg.PublicHost, cfg.EncryptionKey,
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("xcommand-api"))

	workspaceHandler := handler.NewWorkspaceHandler(stores, dockerBackend, provisioner)
	checkoutHandler := handler.NewCheckoutHandler(cfg.Stripe)
	webhookHandler := webhook.NewStripeWebhookHandler(provisioner, cfg.Stripe.WebhookSecret)

	engine.GET("/health", workspaceHandler.Health)
	router.WorkspaceRouter(engine.Group("/workspaces"), workspaceHandler)
	router.StripeRouter(engine.Group("/stripe"), checkoutHandler, webhookHandler)
	if !cfg.IsProduction() {
		router.ProvisionRouter(engine.Group("/provision"), workspaceHandler)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "api listening", "addr", cfg.ListenAddr, "env", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
