package cancellation

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/reconciler/internal/domain/errors"
	"github.com/cassiomorais/reconciler/internal/domain/payment"
	"github.com/cassiomorais/reconciler/internal/infrastructure/observability"
	"github.com/cassiomorais/reconciler/internal/notification"
	"github.com/cassiomorais/reconciler/internal/providers"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

const reasonNotConfirmed = "membership API did not confirm the cancellation"

// Executor runs a single cancellation attempt.
type Executor struct {
	records   RecordLoader
	canceller providers.MembershipCanceller
	notifier  notification.Notifier
	catalog   *payment.PlanCatalog
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewExecutor(
	records RecordLoader,
	canceller providers.MembershipCanceller,
	notifier notification.Notifier,
	catalog *payment.PlanCatalog,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Executor {
	return &Executor{
		records:   records,
		canceller: canceller,
		notifier:  notifier,
		catalog:   catalog,
		metrics:   metrics,
		logger:    observability.Component(logger, "cancellation_executor"),
	}
}

// Run cancels the membership of the task's payment record. A cancellation
// the provider refuses is alerted and reported as handled; the provider
// client already retried it. Any other fault is alerted and returned so the
// runner can retry the task.
func (e *Executor) Run(ctx context.Context, t Task) (err error) {
	log := e.logger.With().Str("payment_id", t.PaymentID).Int("attempt", t.Attempt).Logger()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cancellation task panicked: %v", r)
			log.Error().Err(err).Msg("Cancellation task panicked")
			e.alert(ctx, t, nil, err.Error())
		}
	}()

	id, perr := ulid.Parse(t.PaymentID)
	if perr != nil {
		return fmt.Errorf("%w: payment id %q: %v", domainErrors.ErrInvalidInput, t.PaymentID, perr)
	}

	rec, err := e.records.GetByID(ctx, id)
	switch {
	case errors.Is(err, domainErrors.ErrPaymentNotFound):
		log.Warn().Msg("Payment record not found, using membership id from task")
		rec = nil
	case err != nil:
		e.alert(ctx, t, nil, err.Error())
		e.count("error")
		return fmt.Errorf("reload payment record %s: %w", t.PaymentID, err)
	}

	membershipID := t.MembershipID
	if rec != nil && rec.ExternalMembershipID != "" {
		membershipID = rec.ExternalMembershipID
	}
	if membershipID == "" {
		log.Info().Msg("No membership id, nothing to cancel")
		e.count("skipped")
		return nil
	}

	if e.canceller.CancelMembership(ctx, membershipID) {
		log.Info().Str("membership_id", membershipID).Msg("Membership cancelled after one-time purchase")
		e.count("succeeded")
		return nil
	}

	log.Error().Str("membership_id", membershipID).Msg("Membership cancellation failed, operator alerted")
	e.alert(ctx, t, rec, reasonNotConfirmed)
	e.count("failed_alerted")
	return nil
}

func (e *Executor) alert(ctx context.Context, t Task, rec *payment.Record, reason string) {
	a := alertFor(t, rec, e.catalog, reason, false)
	if err := e.notifier.SendCancellationAlert(ctx, a); err != nil {
		e.logger.Error().Err(err).Str("payment_id", t.PaymentID).Msg("Failed to send cancellation alert")
	}
}

func (e *Executor) count(outcome string) {
	if e.metrics != nil {
		e.metrics.CancellationTasksTotal.WithLabelValues(outcome).Inc()
	}
}

func alertFor(t Task, rec *payment.Record, catalog *payment.PlanCatalog, reason string, permanent bool) notification.CancellationAlert {
	a := notification.CancellationAlert{
		PaymentID:    t.PaymentID,
		MembershipID: t.MembershipID,
		Email:        t.Email,
		Attempt:      t.Attempt,
		Reason:       reason,
		Permanent:    permanent,
	}
	if rec != nil {
		if rec.ExternalMembershipID != "" {
			a.MembershipID = rec.ExternalMembershipID
		}
		if rec.Email != "" {
			a.Email = rec.Email
		}
		if catalog != nil {
			a.PlanName = catalog.DisplayName(rec.PlanSlug)
		}
	}
	return a
}
