package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/reconciler/internal/application/cancellation"
	"github.com/cassiomorais/reconciler/internal/bootstrap"
	infraRedis "github.com/cassiomorais/reconciler/internal/infrastructure/redis"
	"github.com/cassiomorais/reconciler/internal/notification"
	"github.com/cassiomorais/reconciler/internal/providers"
	"github.com/cassiomorais/reconciler/internal/repository/postgres"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	housekeepingInterval = time.Hour
	outboxRetention      = 7 * 24 * time.Hour
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "reconciler-worker", "reconciler_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()
	cfg := app.Config.Cancellation

	// --- Repositories ---
	paymentRepo := postgres.NewPaymentRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	deliveryRepo := postgres.NewDeliveryRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Queues ---
	schedule := infraRedis.NewDelayedQueue(app.Redis, infraRedis.CancellationScheduleKey, infraRedis.CancellationReadyStream)
	delayed := cancellation.NewDelayedQueue(schedule, app.Logger)
	dlq := infraRedis.NewStreamProducer(app.Redis)
	stream := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.CancellationReadyStream,
		cfg.ConsumerGroup,
		app.Config.InstanceID,
		cfg.BatchSize,
		cfg.BlockDuration,
	)
	if err := stream.CreateGroup(ctx); err != nil {
		app.Logger.Error().Err(err).Msg("Failed to create consumer group")
		os.Exit(1)
	}

	// --- Cancellation pipeline ---
	notifier := notification.New(app.Config.Notification, app.Logger, app.Metrics)
	client := providers.NewMembershipClient(app.Config.Provider, app.Logger, app.Metrics)
	executor := cancellation.NewExecutor(paymentRepo, client, notifier, app.Catalog, app.Metrics, app.Logger)
	runner := cancellation.NewRunner(executor, delayed, dlq, notifier, cfg.RetryPolicy(), app.Metrics, app.Logger)

	relay := cancellation.NewRelay(txManager, outboxRepo, delayed, notifier, cfg.OutboxBatch, app.Logger)
	promoter := cancellation.NewPromoter(schedule, cfg.PromoteBatch, app.Metrics, app.Logger)
	consumer := cancellation.NewConsumer(
		stream,
		infraRedis.NewLocker(app.Redis, cfg.LockTTL),
		runner,
		delayed,
		dlq,
		cfg.LockTTL,
		app.Metrics,
		app.Logger,
	)

	app.Logger.Info().
		Str("stream", infraRedis.CancellationReadyStream).
		Str("group", cfg.ConsumerGroup).
		Str("consumer", app.Config.InstanceID).
		Msg("Worker started, listening for messages...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Outbox relay (cancellation requests -> delayed schedule).
	g.Go(func() error { return relay.Run(gCtx, cfg.OutboxPollInterval) })

	// 2. Promoter (due tasks -> ready stream).
	g.Go(func() error { return promoter.Run(gCtx, cfg.PromoteInterval) })

	// 3. Consumer (ready stream -> membership API).
	g.Go(func() error { return consumer.Run(gCtx) })

	// 4. Housekeeping.
	g.Go(func() error {
		return runHousekeeping(gCtx, app.Logger, deliveryRepo, outboxRepo)
	})

	// 5. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

// runHousekeeping drops expired webhook deliveries and old published outbox
// rows.
func runHousekeeping(
	ctx context.Context,
	logger zerolog.Logger,
	deliveries *postgres.DeliveryRepository,
	outboxRepo *postgres.OutboxRepository,
) error {
	ticker := time.NewTicker(housekeepingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if n, err := deliveries.Cleanup(ctx); err != nil {
			logger.Error().Err(err).Msg("Failed to clean up webhook deliveries")
		} else if n > 0 {
			logger.Info().Int64("removed", n).Msg("Expired webhook deliveries removed")
		}

		if n, err := outboxRepo.PurgePublished(ctx, time.Now().Add(-outboxRetention)); err != nil {
			logger.Error().Err(err).Msg("Failed to purge outbox")
		} else if n > 0 {
			logger.Info().Int64("removed", n).Msg("Published outbox entries purged")
		}
	}
}
