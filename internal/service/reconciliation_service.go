package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	domainErrors "github.com/cassiomorais/reconciler/internal/domain/errors"
	"github.com/cassiomorais/reconciler/internal/domain/payment"
	"github.com/cassiomorais/reconciler/internal/domain/user"
	"github.com/cassiomorais/reconciler/internal/infrastructure/observability"
	"github.com/cassiomorais/reconciler/internal/notification"
	"github.com/rs/zerolog"
)

// Webhook event types the engine acts on.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventMembershipCreated        = "membership.created"
	EventMembershipActivated      = "membership.activated"
	EventPaymentSucceeded         = "payment.succeeded"
	EventPaymentCreated           = "payment.created"
	EventMembershipCancelled      = "membership.cancelled"
	EventMembershipDeactivated    = "membership.deactivated"
	EventPaymentFailed            = "payment.failed"
	EventMembershipExpired        = "membership.expired"
)

type eventKind int

const (
	kindIgnored eventKind = iota
	kindSuccess
	kindCreated
	kindFailure
	kindExpired
)

var eventKinds = map[string]eventKind{
	EventCheckoutSessionCompleted: kindSuccess,
	EventMembershipCreated:        kindSuccess,
	EventMembershipActivated:      kindSuccess,
	EventPaymentSucceeded:         kindSuccess,
	EventPaymentCreated:           kindCreated,
	EventMembershipCancelled:      kindFailure,
	EventMembershipDeactivated:    kindFailure,
	EventPaymentFailed:            kindFailure,
	EventMembershipExpired:        kindExpired,
}

// Lookup tiers reported in metrics and logs.
const (
	tierExternalPaymentID    = "external_payment_id"
	tierExternalMembershipID = "external_membership_id"
	tierRecentPending        = "recent_pending"
	tierCreated              = "created"
)

// WebhookResult is the HTTP outcome of one webhook delivery.
type WebhookResult struct {
	StatusCode int
	Message    string
}

func okResult(msg string) WebhookResult {
	return WebhookResult{StatusCode: http.StatusOK, Message: msg}
}

// CancellationScheduler queues the compensating cancellation of a paid record.
type CancellationScheduler interface {
	ScheduleCancellation(ctx context.Context, r *payment.Record) error
}

// ReconciliationService matches provider webhook events to payment records
// and drives their side effects.
type ReconciliationService struct {
	payments     payment.Repository
	users        user.Repository
	txManager    TransactionManager
	scheduler    CancellationScheduler
	notifier     notification.Notifier
	catalog      *payment.PlanCatalog
	providerName string
	staleness    time.Duration
	metrics      *observability.Metrics
	now          func() time.Time
	logger       zerolog.Logger
}

// ReconciliationConfig holds the engine's tunables.
type ReconciliationConfig struct {
	ProviderName    string
	StalenessWindow time.Duration
}

func NewReconciliationService(
	payments payment.Repository,
	users user.Repository,
	txManager TransactionManager,
	scheduler CancellationScheduler,
	notifier notification.Notifier,
	catalog *payment.PlanCatalog,
	cfg ReconciliationConfig,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		payments:     payments,
		users:        users,
		txManager:    txManager,
		scheduler:    scheduler,
		notifier:     notifier,
		catalog:      catalog,
		providerName: cfg.ProviderName,
		staleness:    cfg.StalenessWindow,
		metrics:      metrics,
		now:          time.Now,
		logger:       observability.Component(logger, "reconciliation"),
	}
}

// HandleWebhookEvent processes one delivery. Unknown and informational
// events are acknowledged with 200; a missing buyer email yields 400 and
// any internal fault 500. It never panics.
func (s *ReconciliationService) HandleWebhookEvent(ctx context.Context, eventType string, data map[string]any) (res WebhookResult) {
	log := s.logger.With().Str("event_type", eventType).Logger()
	log.Info().Msg("Webhook received")

	kind := eventKinds[eventType]
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Webhook processing panicked")
			res = WebhookResult{StatusCode: http.StatusInternalServerError, Message: "Internal error"}
		}
		s.countEvent(eventType, kind, res.StatusCode)
	}()

	switch kind {
	case kindSuccess:
		return s.handleSuccess(ctx, log, data)
	case kindCreated:
		log.Info().Str("receipt_id", firstNonEmpty(data, receiptPaths...)).Msg("Payment created, awaiting confirmation")
		return okResult("Payment created event acknowledged")
	case kindFailure:
		return s.updateSubscription(ctx, log, data, user.SubscriptionPastDue)
	case kindExpired:
		return s.updateSubscription(ctx, log, data, user.SubscriptionCanceled)
	default:
		log.Info().Msg("Unhandled webhook event type")
		return okResult("Event acknowledged")
	}
}

type reconcileOutcome struct {
	record    *payment.Record
	user      *user.User
	tier      string
	newlyPaid bool
}

func (s *ReconciliationService) handleSuccess(ctx context.Context, log zerolog.Logger, data map[string]any) WebhookResult {
	email := firstNonEmpty(data, emailPaths...)
	if email == "" {
		log.Warn().Msg("Success event without buyer email")
		return WebhookResult{StatusCode: http.StatusBadRequest, Message: domainErrors.ErrMissingBuyerEmail.Error()}
	}

	externalPlanID := firstNonEmpty(data, planPaths...)
	c := payment.Confirmation{
		Email:                email,
		ExternalPaymentID:    firstNonEmpty(data, receiptPaths...),
		ExternalMembershipID: firstNonEmpty(data, membershipPaths...),
		PlanSlug:             s.catalog.ResolveSlug(externalPlanID),
		ExternalPlanID:       externalPlanID,
		Amount:               firstAmount(data, amountPaths...),
		Currency:             firstNonEmpty(data, currencyPaths...),
	}
	log = log.With().
		Str("receipt_id", c.ExternalPaymentID).
		Str("membership_id", c.ExternalMembershipID).
		Str("plan_slug", c.PlanSlug).
		Logger()

	out, err := s.reconcile(ctx, c)
	if errors.Is(err, domainErrors.ErrDuplicateExternalPaymentID) {
		// A concurrent delivery inserted the receipt first; update its record.
		log.Info().Msg("Receipt claimed concurrently, retrying lookup")
		out, err = s.reconcile(ctx, c)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to reconcile payment")
		return WebhookResult{StatusCode: http.StatusInternalServerError, Message: "Internal error"}
	}

	if s.metrics != nil {
		s.metrics.ReconciliationMatches.WithLabelValues(out.tier).Inc()
	}
	log.Info().
		Str("payment_id", out.record.ID.String()).
		Str("tier", out.tier).
		Bool("newly_paid", out.newlyPaid).
		Msg("Payment reconciled")

	if out.newlyPaid {
		s.notify(ctx, log, out, data)
	}
	return okResult("Payment processed")
}

// reconcile locates or creates the record, marks it paid, activates the
// buyer's user and schedules the compensating cancellation, all in one
// transaction.
func (s *ReconciliationService) reconcile(ctx context.Context, c payment.Confirmation) (*reconcileOutcome, error) {
	var out reconcileOutcome
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		now := s.now()

		rec, tier, err := s.locate(txCtx, c, now)
		if err != nil {
			return err
		}

		membershipAdded := false
		if rec == nil {
			rec = payment.NewPaidRecord(c, now)
			tier = tierCreated
			if err := s.payments.Create(txCtx, rec); err != nil {
				return err
			}
			out.newlyPaid = true
		} else {
			hadMembership := rec.ExternalMembershipID != ""
			out.newlyPaid = rec.ApplyConfirmation(c, now)
			membershipAdded = !hadMembership && rec.ExternalMembershipID != ""
			if err := s.payments.Update(txCtx, rec); err != nil {
				return err
			}
		}

		u, err := s.users.GetByEmail(txCtx, c.Email)
		switch {
		case errors.Is(err, domainErrors.ErrUserNotFound):
			u = nil
		case err != nil:
			return fmt.Errorf("load user: %w", err)
		default:
			u.Activate(s.providerName, c.ExternalPaymentID, now)
			if err := s.users.Update(txCtx, u); err != nil {
				return fmt.Errorf("activate user: %w", err)
			}
		}

		if out.newlyPaid || membershipAdded {
			if err := s.scheduler.ScheduleCancellation(txCtx, rec); err != nil {
				return err
			}
		}

		out.record = rec
		out.user = u
		out.tier = tier
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// locate applies the three lookup tiers in order. It returns a nil record
// when none matches.
func (s *ReconciliationService) locate(ctx context.Context, c payment.Confirmation, now time.Time) (*payment.Record, string, error) {
	if c.ExternalPaymentID != "" {
		rec, err := s.payments.FindByExternalPaymentID(ctx, c.ExternalPaymentID)
		if found, err := hit(rec, err); found || err != nil {
			return rec, tierExternalPaymentID, err
		}
	}

	if c.ExternalMembershipID != "" {
		rec, err := s.payments.FindByExternalMembershipID(ctx, c.ExternalMembershipID)
		if found, err := hit(rec, err); found || err != nil {
			return rec, tierExternalMembershipID, err
		}
	}

	// Every unmapped plan shares the unknown slug, so it cannot tell
	// pending records apart.
	if c.PlanSlug != payment.UnknownPlanSlug {
		rec, err := s.payments.FindLatestPending(ctx, c.PlanSlug, now.Add(-s.staleness))
		if found, err := hit(rec, err); found || err != nil {
			return rec, tierRecentPending, err
		}
	}

	return nil, "", nil
}

func hit(rec *payment.Record, err error) (bool, error) {
	if errors.Is(err, domainErrors.ErrPaymentNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// notify sends the purchase mails. Failures are logged only.
func (s *ReconciliationService) notify(ctx context.Context, log zerolog.Logger, out *reconcileOutcome, data map[string]any) {
	rec := out.record
	name := firstNonEmpty(data, namePaths...)
	status := ""
	if out.user != nil {
		if out.user.Name != "" {
			name = out.user.Name
		}
		status = string(out.user.SubscriptionStatus)
	}

	paidAt := s.now()
	if rec.PaidAt != nil {
		paidAt = *rec.PaidAt
	}
	notice := notification.PurchaseNotice{
		Buyer:                notification.NewBuyer(name, rec.Email),
		Phone:                rec.Phone,
		PlanSlug:             rec.PlanSlug,
		PlanName:             s.catalog.DisplayName(rec.PlanSlug),
		Price:                s.catalog.Price(rec.PlanSlug),
		PaymentID:            rec.ID.String(),
		ExternalPaymentID:    rec.ExternalPaymentID,
		ExternalMembershipID: rec.ExternalMembershipID,
		Amount:               rec.Amount,
		Currency:             rec.Currency,
		SubscriptionStatus:   status,
		PaidAt:               paidAt,
	}

	if err := s.notifier.SendBuyerConfirmation(ctx, notice); err != nil {
		log.Warn().Err(err).Msg("Buyer confirmation not sent")
	}
	if err := s.notifier.SendOperatorNotice(ctx, notice); err != nil {
		log.Warn().Err(err).Msg("Operator notice not sent")
	}
}

func (s *ReconciliationService) updateSubscription(ctx context.Context, log zerolog.Logger, data map[string]any, status user.SubscriptionStatus) WebhookResult {
	email := firstNonEmpty(data, emailPaths...)
	if email == "" {
		log.Warn().Msg("Subscription event without buyer email")
		return WebhookResult{StatusCode: http.StatusBadRequest, Message: domainErrors.ErrMissingBuyerEmail.Error()}
	}

	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, domainErrors.ErrUserNotFound) {
		log.Info().Msg("No registered user for subscription event")
		return okResult("No user to update")
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to load user")
		return WebhookResult{StatusCode: http.StatusInternalServerError, Message: "Internal error"}
	}

	u.SetSubscriptionStatus(status, s.now())
	if err := s.users.Update(ctx, u); err != nil {
		log.Error().Err(err).Msg("Failed to update subscription status")
		return WebhookResult{StatusCode: http.StatusInternalServerError, Message: "Internal error"}
	}

	log.Info().Str("user_id", u.ID.String()).Str("subscription_status", string(status)).Msg("Subscription status updated")
	return okResult("Subscription updated")
}

func (s *ReconciliationService) countEvent(eventType string, kind eventKind, status int) {
	if s.metrics == nil {
		return
	}
	// Unrecognised types share one label.
	if kind == kindIgnored {
		eventType = "other"
	}
	s.metrics.WebhookEventsTotal.WithLabelValues(eventType, fmt.Sprint(status)).Inc()
}
