package service

import (
	"context"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/reconciler/internal/domain/errors"
	"github.com/cassiomorais/reconciler/internal/domain/payment"
	"github.com/cassiomorais/reconciler/internal/testutil"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCheckout() (*CheckoutService, *testutil.MockPaymentRepository) {
	repo := testutil.NewMockPaymentRepository()
	return NewCheckoutService(repo, testutil.NewTestCatalog(), nil, zerolog.Nop()), repo
}

func TestStartCheckout_CreatesPendingRecord(t *testing.T) {
	svc, repo := setupCheckout()

	co, err := svc.StartCheckout(context.Background(), "two-hour", "+15551234567")
	require.NoError(t, err)

	assert.Equal(t, "two-hour", co.PlanSlug)
	assert.Equal(t, "plan_two_hour", co.ExternalPlanID)
	assert.Equal(t, "2 Hour Session", co.PlanName)

	id, err := ulid.Parse(co.PaymentID)
	require.NoError(t, err)
	rec, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, rec.Status)
	assert.Equal(t, "+15551234567", rec.Phone)
	assert.Empty(t, rec.Email)
}

func TestStartCheckout_PlanErrors(t *testing.T) {
	svc, repo := setupCheckout()

	_, err := svc.StartCheckout(context.Background(), "nope", "")
	assert.ErrorIs(t, err, domainErrors.ErrPlanNotFound)

	_, err = svc.StartCheckout(context.Background(), "relationship", "")
	assert.ErrorIs(t, err, domainErrors.ErrPlanNotConfigured)

	assert.Empty(t, repo.All())
}

func TestGetPaymentStatus_Lifecycle(t *testing.T) {
	svc, repo := setupCheckout()
	ctx := context.Background()

	co, err := svc.StartCheckout(ctx, "guidance", "")
	require.NoError(t, err)

	st, err := svc.GetPaymentStatus(ctx, co.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, st.Status)
	assert.Empty(t, st.ExternalPaymentID)

	id := ulid.MustParse(co.PaymentID)
	rec, _ := repo.GetByID(ctx, id)
	rec.ApplyConfirmation(payment.Confirmation{Email: "a@b.com", ExternalPaymentID: "RCPT_1"}, time.Now())
	require.NoError(t, repo.Update(ctx, rec))

	st, err = svc.GetPaymentStatus(ctx, co.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, st.Status)
	assert.Equal(t, "RCPT_1", st.ExternalPaymentID)
	assert.Equal(t, "plan_guidance", st.ExternalPlanID)
}

func TestGetPaymentStatus_NotFound(t *testing.T) {
	svc, _ := setupCheckout()

	_, err := svc.GetPaymentStatus(context.Background(), payment.NewID(time.Now()).String())
	assert.ErrorIs(t, err, domainErrors.ErrPaymentNotFound)

	_, err = svc.GetPaymentStatus(context.Background(), "not-an-id")
	assert.ErrorIs(t, err, domainErrors.ErrPaymentNotFound)
}

func TestGetSuccessDetails(t *testing.T) {
	svc, _ := setupCheckout()

	d, err := svc.GetSuccessDetails("plan_emergency", "RCPT_9")
	require.NoError(t, err)
	assert.Equal(t, "RCPT_9", d.ReceiptID)
	assert.Equal(t, "emergency", d.PlanSlug)
	assert.Equal(t, "Emergency Services", d.PlanDescription)
	assert.Equal(t, "completed", d.Status)

	d, err = svc.GetSuccessDetails("plan_unmapped", "")
	require.NoError(t, err)
	assert.Equal(t, payment.UnknownPlanSlug, d.PlanSlug)

	_, err = svc.GetSuccessDetails("", "RCPT_9")
	var vErr *domainErrors.ValidationError
	assert.ErrorAs(t, err, &vErr)
}
