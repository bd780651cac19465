package cancellation

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/reconciler/internal/domain/payment"
	"github.com/cassiomorais/reconciler/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// Scheduler queues the compensating cancellation of a paid record.
type Scheduler struct {
	queue  Queue
	delay  time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// NewScheduler runs tasks delay after they are scheduled, giving the
// provider time to settle the membership it just created.
func NewScheduler(queue Queue, delay time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		queue:  queue,
		delay:  delay,
		now:    time.Now,
		logger: observability.Component(logger, "cancellation_scheduler"),
	}
}

// ScheduleCancellation is a no-op for records without a membership id.
func (s *Scheduler) ScheduleCancellation(ctx context.Context, rec *payment.Record) error {
	log := s.logger.With().Str("payment_id", rec.ID.String()).Logger()
	if rec.ExternalMembershipID == "" {
		log.Info().Msg("No membership id on payment record, cancellation not scheduled")
		return nil
	}

	task := Task{
		PaymentID:    rec.ID.String(),
		MembershipID: rec.ExternalMembershipID,
		Email:        rec.Email,
		Attempt:      1,
		RunAt:        s.now().Add(s.delay),
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("schedule cancellation for %s: %w", task.PaymentID, err)
	}

	log.Info().
		Str("membership_id", task.MembershipID).
		Time("run_at", task.RunAt).
		Msg("Membership cancellation scheduled")
	return nil
}
