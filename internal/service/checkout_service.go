package service

import (
	"context"
	"time"

	domainErrors "github.com/cassiomorais/reconciler/internal/domain/errors"
	"github.com/cassiomorais/reconciler/internal/domain/payment"
	"github.com/cassiomorais/reconciler/internal/infrastructure/observability"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// CheckoutService backs the checkout page: it opens pending records and
// answers the page's status polls.
type CheckoutService struct {
	payments payment.Repository
	catalog  *payment.PlanCatalog
	metrics  *observability.Metrics
	now      func() time.Time
	logger   zerolog.Logger
}

func NewCheckoutService(payments payment.Repository, catalog *payment.PlanCatalog, metrics *observability.Metrics, logger zerolog.Logger) *CheckoutService {
	return &CheckoutService{
		payments: payments,
		catalog:  catalog,
		metrics:  metrics,
		now:      time.Now,
		logger:   observability.Component(logger, "checkout"),
	}
}

// Checkout is a started purchase, handed to the provider's hosted page.
type Checkout struct {
	PaymentID      string
	PlanSlug       string
	ExternalPlanID string
	PlanName       string
}

// StartCheckout creates a pending record for planSlug. Unknown slugs return
// ErrPlanNotFound and slugs without a provider plan ErrPlanNotConfigured.
func (s *CheckoutService) StartCheckout(ctx context.Context, planSlug, phone string) (*Checkout, error) {
	plan, err := s.catalog.Lookup(planSlug)
	if err != nil {
		s.logger.Warn().Err(err).Str("plan_slug", planSlug).Msg("Checkout refused")
		return nil, err
	}

	rec := payment.NewPendingRecord(plan, phone, s.now())
	if err := s.payments.Create(ctx, rec); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.CheckoutsStartedTotal.WithLabelValues(plan.Slug).Inc()
	}

	s.logger.Info().Str("payment_id", rec.ID.String()).Str("plan_slug", plan.Slug).Msg("Checkout started")
	return &Checkout{
		PaymentID:      rec.ID.String(),
		PlanSlug:       plan.Slug,
		ExternalPlanID: plan.ExternalID,
		PlanName:       s.catalog.DisplayName(plan.Slug),
	}, nil
}

// PaymentStatus is what the checkout page polls for.
type PaymentStatus struct {
	Status            payment.Status
	ExternalPaymentID string
	ExternalPlanID    string
}

// GetPaymentStatus is a pure read. Malformed ids are reported as not found.
func (s *CheckoutService) GetPaymentStatus(ctx context.Context, paymentID string) (*PaymentStatus, error) {
	id, err := ulid.ParseStrict(paymentID)
	if err != nil {
		return nil, domainErrors.ErrPaymentNotFound
	}
	rec, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PaymentStatus{
		Status:            rec.Status,
		ExternalPaymentID: rec.ExternalPaymentID,
		ExternalPlanID:    rec.ExternalPlanID,
	}, nil
}

// SuccessDetails is shown on the page the buyer lands on after paying.
type SuccessDetails struct {
	ReceiptID       string
	PlanSlug        string
	PlanDescription string
	Status          string
}

func (s *CheckoutService) GetSuccessDetails(externalPlanID, receiptID string) (*SuccessDetails, error) {
	if externalPlanID == "" {
		return nil, domainErrors.NewValidationError("plan_id", "is required")
	}
	slug := s.catalog.ResolveSlug(externalPlanID)
	return &SuccessDetails{
		ReceiptID:       receiptID,
		PlanSlug:        slug,
		PlanDescription: s.catalog.DisplayName(slug),
		Status:          "completed",
	}, nil
}
