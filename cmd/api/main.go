package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/reconciler/internal/application/cancellation"
	"github.com/cassiomorais/reconciler/internal/bootstrap"
	"github.com/cassiomorais/reconciler/internal/controller"
	customMW "github.com/cassiomorais/reconciler/internal/middleware"
	"github.com/cassiomorais/reconciler/internal/notification"
	"github.com/cassiomorais/reconciler/internal/repository/postgres"
	"github.com/cassiomorais/reconciler/internal/service"
)

const serviceName = "reconciler-api"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, serviceName, "reconciler")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()
	cfg := app.Config

	// --- Repositories ---
	paymentRepo := postgres.NewPaymentRepository(app.Pool)
	userRepo := postgres.NewUserRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	deliveryRepo := postgres.NewDeliveryRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Services ---
	// Cancellations are written to the outbox in the reconciling transaction;
	// the worker moves them onto the delayed queue.
	scheduler := cancellation.NewScheduler(cancellation.NewOutboxQueue(outboxRepo), cfg.Cancellation.InitialDelay, app.Logger)
	notifier := notification.New(cfg.Notification, app.Logger, app.Metrics)

	reconciler := service.NewReconciliationService(
		paymentRepo,
		userRepo,
		txManager,
		scheduler,
		notifier,
		app.Catalog,
		service.ReconciliationConfig{
			ProviderName:    cfg.Provider.Name,
			StalenessWindow: cfg.Reconciliation.StalenessWindow,
		},
		app.Metrics,
		app.Logger,
	)
	checkout := service.NewCheckoutService(paymentRepo, app.Catalog, app.Metrics, app.Logger)

	var verifier *customMW.WebhookVerifier
	if cfg.Provider.WebhookSecret != "" {
		verifier = customMW.NewWebhookVerifier(cfg.Provider.WebhookSecret, cfg.Provider.WebhookTolerance)
	} else {
		app.Logger.Warn().Msg("provider.webhook_secret not set, webhook signatures are not verified")
	}

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Pool:        app.Pool,
		RedisClient: app.Redis,
		Reconciler:  reconciler,
		Checkout:    checkout,
		Deliveries:  deliveryRepo,
		DeliveryTTL: cfg.Reconciliation.DeliveryTTL,
		Verifier:    verifier,
		Metrics:     app.Metrics,
		Server:      cfg.Server,
		ServiceName: serviceName,
		Logger:      app.Logger,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
