package notification

import (
	"context"

	"github.com/cassiomorais/reconciler/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// LogNotifier writes notifications to the log instead of sending them.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: observability.Component(logger, "notifier")}
}

func (l *LogNotifier) SendBuyerConfirmation(_ context.Context, n PurchaseNotice) error {
	l.logger.Info().
		Str("payment_id", n.PaymentID).
		Str("to", n.Buyer.Email).
		Str("plan", n.PlanSlug).
		Msg("Buyer confirmation (not sent)")
	return nil
}

func (l *LogNotifier) SendOperatorNotice(_ context.Context, n PurchaseNotice) error {
	l.logger.Info().
		Str("payment_id", n.PaymentID).
		Str("buyer", n.Buyer.Email).
		Str("plan", n.PlanSlug).
		Str("price", n.Price).
		Msg("Operator purchase notice (not sent)")
	return nil
}

func (l *LogNotifier) SendCancellationAlert(_ context.Context, a CancellationAlert) error {
	l.logger.Error().
		Str("payment_id", a.PaymentID).
		Str("membership_id", a.MembershipID).
		Int("attempt", a.Attempt).
		Bool("permanent", a.Permanent).
		Str("reason", a.Reason).
		Msg("Membership cancellation alert (not sent)")
	return nil
}
