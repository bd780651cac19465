package cancellation

import (
	"context"
	"time"

	"github.com/cassiomorais/reconciler/internal/domain/outbox"
	"github.com/cassiomorais/reconciler/internal/infrastructure/observability"
	"github.com/cassiomorais/reconciler/internal/notification"
	"github.com/rs/zerolog"
)

// Relay moves committed cancellation requests from the outbox onto the
// delayed queue. An entry whose relay budget is spent is dropped and the
// operator alerted.
type Relay struct {
	tx       TransactionManager
	repo     outbox.Repository
	queue    Queue
	notifier notification.Notifier
	batch    int
	logger   zerolog.Logger
}

func NewRelay(tx TransactionManager, repo outbox.Repository, queue Queue, notifier notification.Notifier, batch int, logger zerolog.Logger) *Relay {
	return &Relay{
		tx:       tx,
		repo:     repo,
		queue:    queue,
		notifier: notifier,
		batch:    batch,
		logger:   observability.Component(logger, "outbox_relay"),
	}
}

// Run polls the outbox every interval until ctx is done.
func (r *Relay) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if _, err := r.RelayOnce(ctx); err != nil {
			r.logger.Error().Err(err).Msg("Outbox relay error")
		}
	}
}

// RelayOnce relays one batch and reports how many entries were handed on.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	relayed := 0
	var abandoned []notification.CancellationAlert
	err := r.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		entries, err := r.repo.GetPending(txCtx, r.batch)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			log := r.logger.With().Str("outbox_id", entry.ID.String()).Str("aggregate_id", entry.AggregateID).Logger()

			if entry.EventType != EventCancellationRequested {
				log.Warn().Str("event_type", entry.EventType).Msg("Unknown outbox event, discarding")
				if err := r.repo.MarkPublished(txCtx, entry.ID); err != nil {
					return err
				}
				continue
			}

			task, err := TaskFromOutbox(entry)
			if err == nil {
				err = r.queue.Enqueue(ctx, task)
			}
			if err != nil {
				if entry.CanRetry() {
					log.Warn().Err(err).Int("retry_count", entry.RetryCount).Msg("Failed to relay outbox entry")
				} else {
					log.Error().Err(err).Msg("Giving up on outbox entry")
					abandoned = append(abandoned, abandonedAlert(entry, task, err))
				}
				if err := r.repo.MarkFailed(txCtx, entry.ID); err != nil {
					return err
				}
				continue
			}

			if err := r.repo.MarkPublished(txCtx, entry.ID); err != nil {
				return err
			}
			relayed++
		}
		return nil
	})
	if err != nil {
		return relayed, err
	}

	for _, a := range abandoned {
		if sendErr := r.notifier.SendCancellationAlert(ctx, a); sendErr != nil {
			r.logger.Error().Err(sendErr).Str("payment_id", a.PaymentID).Msg("Failed to send cancellation alert")
		}
	}
	return relayed, nil
}

// abandonedAlert describes a request that never reached the queue. task is
// zero when the entry could not be decoded.
func abandonedAlert(e *outbox.Entry, t Task, cause error) notification.CancellationAlert {
	a := notification.CancellationAlert{
		PaymentID:    t.PaymentID,
		MembershipID: t.MembershipID,
		Email:        t.Email,
		Attempt:      t.Attempt,
		Reason:       "cancellation request could not be queued: " + cause.Error(),
		Permanent:    true,
	}
	if a.PaymentID == "" {
		a.PaymentID = e.AggregateID
	}
	return a
}
