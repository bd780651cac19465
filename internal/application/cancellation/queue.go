package cancellation

import (
	"context"

	"github.com/cassiomorais/reconciler/internal/domain/outbox"
	"github.com/rs/zerolog"
)

// OutboxQueue stores tasks in the transactional outbox, so a task commits
// or rolls back together with the payment record that caused it.
type OutboxQueue struct {
	repo outbox.Repository
}

func NewOutboxQueue(repo outbox.Repository) *OutboxQueue {
	return &OutboxQueue{repo: repo}
}

func (q *OutboxQueue) Enqueue(ctx context.Context, t Task) error {
	entry := outbox.NewEntry(outbox.AggregatePaymentRecord, t.PaymentID, EventCancellationRequested, t.outboxPayload())
	return q.repo.Insert(ctx, entry)
}

// DelayedQueue puts tasks straight onto the Redis schedule. A payment has
// at most one waiting task; later requests for it are dropped.
type DelayedQueue struct {
	schedule DelayedScheduler
	logger   zerolog.Logger
}

func NewDelayedQueue(schedule DelayedScheduler, logger zerolog.Logger) *DelayedQueue {
	return &DelayedQueue{schedule: schedule, logger: logger}
}

func (q *DelayedQueue) Enqueue(ctx context.Context, t Task) error {
	payload, err := t.Payload()
	if err != nil {
		return err
	}
	added, err := q.schedule.Schedule(ctx, t.PaymentID, t.RunAt, payload)
	if err != nil {
		return err
	}
	if !added {
		q.logger.Debug().
			Str("payment_id", t.PaymentID).
			Int("attempt", t.Attempt).
			Msg("Cancellation already scheduled, request dropped")
	}
	return nil
}
