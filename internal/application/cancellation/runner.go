package cancellation

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/reconciler/internal/domain/errors"
	"github.com/cassiomorais/reconciler/internal/infrastructure/observability"
	"github.com/cassiomorais/reconciler/internal/notification"
	"github.com/cassiomorais/reconciler/pkg/retry"
	"github.com/rs/zerolog"
)

// Runner applies the task-level retry budget around an executor.
type Runner struct {
	exec     TaskExecutor
	queue    Queue
	dlq      DeadLetter
	notifier notification.Notifier
	policy   retry.Policy
	metrics  *observability.Metrics
	now      func() time.Time
	logger   zerolog.Logger
}

func NewRunner(
	exec TaskExecutor,
	queue Queue,
	dlq DeadLetter,
	notifier notification.Notifier,
	policy retry.Policy,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Runner {
	return &Runner{
		exec:     exec,
		queue:    queue,
		dlq:      dlq,
		notifier: notifier,
		policy:   policy,
		metrics:  metrics,
		now:      time.Now,
		logger:   observability.Component(logger, "cancellation_runner"),
	}
}

// Handle runs the task. A failed attempt is rescheduled after the policy's
// backoff for that attempt. Once the budget is spent, or the task can never
// succeed, the operator gets a permanent-failure alert and the task goes to
// the dead letter stream. Handle only returns an error when the task could
// not be handed on, in which case the caller must not acknowledge it.
func (r *Runner) Handle(ctx context.Context, t Task) error {
	runErr := r.exec.Run(ctx, t)
	if runErr == nil {
		return nil
	}

	log := r.logger.With().Str("payment_id", t.PaymentID).Int("attempt", t.Attempt).Logger()
	invalid := errors.Is(runErr, domainErrors.ErrInvalidInput)

	if !invalid && !r.policy.Exhausted(t.Attempt) {
		next := t
		next.Attempt = t.Attempt + 1
		next.RunAt = r.now().Add(r.policy.Delay(uint(t.Attempt - 1)))
		if err := r.queue.Enqueue(ctx, next); err != nil {
			return fmt.Errorf("reschedule cancellation %s: %w", t.PaymentID, err)
		}
		log.Warn().Err(runErr).Time("run_at", next.RunAt).Msg("Cancellation attempt failed, retry scheduled")
		r.count("retry_scheduled")
		return nil
	}

	log.Error().Err(runErr).Msg("Cancellation permanently failed")
	alert := alertFor(t, nil, nil, runErr.Error(), true)
	if err := r.notifier.SendCancellationAlert(ctx, alert); err != nil {
		log.Error().Err(err).Msg("Failed to send permanent cancellation alert")
	}

	payload, err := t.Payload()
	if err != nil {
		return err
	}
	if err := r.dlq.PublishToDLQ(ctx, t.PaymentID, runErr.Error(), payload); err != nil {
		return fmt.Errorf("dead-letter cancellation %s: %w", t.PaymentID, err)
	}
	r.count("exhausted")
	return nil
}

func (r *Runner) count(outcome string) {
	if r.metrics != nil {
		r.metrics.CancellationTasksTotal.WithLabelValues(outcome).Inc()
	}
}
