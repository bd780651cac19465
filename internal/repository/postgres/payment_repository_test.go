package postgres

import (
	"context"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/reconciler/internal/domain/errors"
	"github.com/cassiomorais/reconciler/internal/domain/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var guidancePlan = payment.Plan{Slug: "guidance", ExternalID: "plan_guidance", Name: "Numerology Reading", Price: "$280"}

func pendingAt(t *testing.T, repo *PaymentRepository, slug string, at time.Time) *payment.Record {
	t.Helper()
	rec := payment.NewPendingRecord(payment.Plan{Slug: slug, ExternalID: "plan_" + slug}, "", at)
	require.NoError(t, repo.Create(context.Background(), rec))
	return rec
}

func TestPaymentRepository_CreateAndGet(t *testing.T) {
	repo := NewPaymentRepository(requirePool(t))
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	rec := payment.NewPendingRecord(guidancePlan, "+15550100", now)
	require.NoError(t, repo.Create(ctx, rec))

	got, err := repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, payment.StatusPending, got.Status)
	assert.Equal(t, "guidance", got.PlanSlug)
	assert.Equal(t, "plan_guidance", got.ExternalPlanID)
	assert.Equal(t, "+15550100", got.Phone)
	assert.Empty(t, got.Email)
	assert.Empty(t, got.ExternalPaymentID)
	assert.True(t, got.Amount.IsZero())
	assert.Nil(t, got.PaidAt)
	assert.True(t, now.Equal(got.CreatedAt))
}

func TestPaymentRepository_GetByID_NotFound(t *testing.T) {
	repo := NewPaymentRepository(requirePool(t))

	_, err := repo.GetByID(context.Background(), payment.NewID(time.Now()))
	assert.ErrorIs(t, err, domainErrors.ErrPaymentNotFound)
}

func TestPaymentRepository_UpdateAndLookupByExternalIDs(t *testing.T) {
	repo := NewPaymentRepository(requirePool(t))
	ctx := context.Background()

	rec := pendingAt(t, repo, "guidance", time.Now())
	changed := rec.ApplyConfirmation(payment.Confirmation{
		Email:                "buyer@example.com",
		ExternalPaymentID:    "pay_1",
		ExternalMembershipID: "mem_1",
		Amount:               decimal.RequireFromString("280.00"),
		Currency:             "usd",
	}, time.Now())
	require.True(t, changed)
	require.NoError(t, repo.Update(ctx, rec))

	byPayment, err := repo.FindByExternalPaymentID(ctx, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, byPayment.ID)
	assert.Equal(t, payment.StatusPaid, byPayment.Status)
	assert.True(t, decimal.RequireFromString("280").Equal(byPayment.Amount))
	assert.Equal(t, "usd", byPayment.Currency)
	require.NotNil(t, byPayment.PaidAt)

	byMembership, err := repo.FindByExternalMembershipID(ctx, "mem_1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, byMembership.ID)

	_, err = repo.FindByExternalPaymentID(ctx, "pay_missing")
	assert.ErrorIs(t, err, domainErrors.ErrPaymentNotFound)
}

func TestPaymentRepository_DuplicateExternalPaymentID(t *testing.T) {
	repo := NewPaymentRepository(requirePool(t))
	ctx := context.Background()

	c := payment.Confirmation{ExternalPaymentID: "pay_dup", PlanSlug: "guidance", Amount: decimal.Zero}
	require.NoError(t, repo.Create(ctx, payment.NewPaidRecord(c, time.Now())))

	err := repo.Create(ctx, payment.NewPaidRecord(c, time.Now()))
	assert.ErrorIs(t, err, domainErrors.ErrDuplicateExternalPaymentID)

	// Two records without a receipt do not clash.
	pendingAt(t, repo, "guidance", time.Now())
	pendingAt(t, repo, "guidance", time.Now())
}

func TestPaymentRepository_FindLatestPending(t *testing.T) {
	repo := NewPaymentRepository(requirePool(t))
	ctx := context.Background()
	now := time.Now()

	pendingAt(t, repo, "guidance", now.Add(-20*time.Minute))
	older := pendingAt(t, repo, "guidance", now.Add(-5*time.Minute))
	newer := pendingAt(t, repo, "guidance", now.Add(-1*time.Minute))
	pendingAt(t, repo, "emergency", now)

	got, err := repo.FindLatestPending(ctx, "guidance", now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)

	newer.ApplyConfirmation(payment.Confirmation{ExternalPaymentID: "pay_x", Amount: decimal.Zero}, now)
	require.NoError(t, repo.Update(ctx, newer))

	got, err = repo.FindLatestPending(ctx, "guidance", now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, older.ID, got.ID)

	_, err = repo.FindLatestPending(ctx, "soulmate", now.Add(-10*time.Minute))
	assert.ErrorIs(t, err, domainErrors.ErrPaymentNotFound)
}

func TestPaymentRepository_FindLatestPending_SkipsLockedRows(t *testing.T) {
	pool := requirePool(t)
	repo := NewPaymentRepository(pool)
	tm := NewTxManager(pool)
	ctx := context.Background()
	now := time.Now()

	only := pendingAt(t, repo, "guidance", now.Add(-time.Minute))

	claimed := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- tm.WithTransaction(ctx, func(txCtx context.Context) error {
			rec, err := repo.FindLatestPending(txCtx, "guidance", now.Add(-10*time.Minute))
			if err != nil {
				return err
			}
			if rec.ID != only.ID {
				t.Errorf("claimed %s, want %s", rec.ID, only.ID)
			}
			close(claimed)
			<-release
			return nil
		})
	}()

	<-claimed
	err := tm.WithTransaction(ctx, func(txCtx context.Context) error {
		_, err := repo.FindLatestPending(txCtx, "guidance", now.Add(-10*time.Minute))
		return err
	})
	assert.ErrorIs(t, err, domainErrors.ErrPaymentNotFound)

	close(release)
	require.NoError(t, <-done)
}
