package cancellation

import (
	"context"
	"errors"
	"time"

	domainErrors "github.com/cassiomorais/reconciler/internal/domain/errors"
	"github.com/cassiomorais/reconciler/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/reconciler/internal/infrastructure/redis"
	"github.com/rs/zerolog"
)

// Promoter periodically moves due tasks onto the ready stream.
type Promoter struct {
	queue   DuePromoter
	batch   int64
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewPromoter(queue DuePromoter, batch int64, metrics *observability.Metrics, logger zerolog.Logger) *Promoter {
	return &Promoter{
		queue:   queue,
		batch:   batch,
		metrics: metrics,
		logger:  observability.Component(logger, "cancellation_promoter"),
	}
}

func (p *Promoter) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := p.PromoteOnce(ctx, time.Now()); err != nil {
			p.logger.Error().Err(err).Msg("Promote error")
		}
	}
}

func (p *Promoter) PromoteOnce(ctx context.Context, now time.Time) error {
	moved, err := p.queue.PromoteDue(ctx, now, p.batch)
	if err != nil {
		return err
	}
	if moved > 0 {
		p.logger.Debug().Int64("count", moved).Msg("Promoted due cancellations")
	}
	depth, err := p.queue.Pending(ctx)
	if err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.DelayedQueueDepth.Set(float64(depth))
	}
	return nil
}

// Consumer executes ready tasks, one payment at a time across all workers.
type Consumer struct {
	stream         StreamReader
	locker         Locker
	runner         *Runner
	queue          Queue
	dlq            DeadLetter
	lockRetryDelay time.Duration
	reclaimIdle    time.Duration
	metrics        *observability.Metrics
	logger         zerolog.Logger
}

func NewConsumer(
	stream StreamReader,
	locker Locker,
	runner *Runner,
	queue Queue,
	dlq DeadLetter,
	lockTTL time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Consumer {
	return &Consumer{
		stream:         stream,
		locker:         locker,
		runner:         runner,
		queue:          queue,
		dlq:            dlq,
		lockRetryDelay: 5 * time.Second,
		reclaimIdle:    2 * lockTTL,
		metrics:        metrics,
		logger:         observability.Component(logger, "cancellation_consumer"),
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	c.resumePending(ctx)
	c.reclaim(ctx)
	lastReclaim := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := c.stream.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error().Err(err).Msg("Failed to read from stream")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		for _, msg := range msgs {
			c.Process(ctx, msg)
		}

		if time.Since(lastReclaim) >= c.reclaimIdle {
			c.reclaim(ctx)
			lastReclaim = time.Now()
		}
	}
}

// resumePending reprocesses what a previous run under the same consumer
// name read but never acknowledged.
func (c *Consumer) resumePending(ctx context.Context) {
	msgs, err := c.stream.ReadPending(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read own pending messages")
		return
	}
	if len(msgs) > 0 {
		c.logger.Info().Int("count", len(msgs)).Msg("Resuming unacknowledged tasks")
	}
	for _, msg := range msgs {
		c.Process(ctx, msg)
	}
}

func (c *Consumer) reclaim(ctx context.Context) {
	msgs, err := c.stream.ReclaimStale(ctx, c.reclaimIdle)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to reclaim stale messages")
		return
	}
	for _, msg := range msgs {
		c.Process(ctx, msg)
	}
}

// Process handles one stream message and acknowledges it unless the task
// could not be handed on.
func (c *Consumer) Process(ctx context.Context, msg infraRedis.Message) {
	start := time.Now()
	log := c.logger.With().Str("message_id", msg.ID).Str("task_id", msg.TaskID).Logger()

	task, err := TaskFromPayload(msg.Payload)
	if err != nil {
		log.Error().Err(err).Msg("Malformed cancellation task, dead-lettering")
		if err := c.dlq.PublishToDLQ(ctx, msg.TaskID, err.Error(), msg.Payload); err != nil {
			log.Error().Err(err).Msg("Failed to dead-letter malformed task")
			return
		}
		c.ack(ctx, msg, "malformed", start)
		return
	}

	err = c.locker.WithLock(ctx, "cancellation:"+task.PaymentID, func(ctx context.Context) error {
		return c.runner.Handle(ctx, task)
	})
	switch {
	case errors.Is(err, domainErrors.ErrLockAcquisitionFailed):
		log.Warn().Msg("Cancellation already running elsewhere, deferring")
		task.RunAt = time.Now().Add(c.lockRetryDelay)
		if err := c.queue.Enqueue(ctx, task); err != nil {
			log.Error().Err(err).Msg("Failed to defer task, leaving it pending")
			return
		}
		c.ack(ctx, msg, "deferred", start)
	case err != nil:
		log.Error().Err(err).Msg("Failed to handle cancellation task, leaving it pending")
		c.observe("error", start)
	default:
		c.ack(ctx, msg, "success", start)
	}
}

func (c *Consumer) ack(ctx context.Context, msg infraRedis.Message, status string, start time.Time) {
	if err := c.stream.Ack(ctx, msg.ID); err != nil {
		c.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to ack message")
	}
	c.observe(status, start)
}

func (c *Consumer) observe(status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.WorkerMessagesProcessed.WithLabelValues(infraRedis.CancellationReadyStream, status).Inc()
	c.metrics.WorkerProcessingDuration.WithLabelValues(infraRedis.CancellationReadyStream).Observe(time.Since(start).Seconds())
}
