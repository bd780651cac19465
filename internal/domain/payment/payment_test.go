package payment_test

import (
	"testing"
	"time"

	"github.com/cassiomorais/reconciler/internal/domain/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var guidance = payment.Plan{Slug: "guidance", ExternalID: "plan_guidance", Name: "Numerology Reading", Price: "$280"}

func confirmation() payment.Confirmation {
	return payment.Confirmation{
		Email:                "buyer@example.com",
		ExternalPaymentID:    "rcpt_1",
		ExternalMembershipID: "mem_1",
		PlanSlug:             "guidance",
		ExternalPlanID:       "plan_guidance",
		Amount:               decimal.RequireFromString("280.00"),
		Currency:             "usd",
	}
}

func TestNewPendingRecord(t *testing.T) {
	now := time.Now()
	r := payment.NewPendingRecord(guidance, "+15551234567", now)

	assert.Equal(t, payment.StatusPending, r.Status)
	assert.Equal(t, "guidance", r.PlanSlug)
	assert.Equal(t, "plan_guidance", r.ExternalPlanID)
	assert.Equal(t, "+15551234567", r.Phone)
	assert.Empty(t, r.ExternalPaymentID)
	assert.Nil(t, r.PaidAt)
	assert.True(t, r.Amount.IsZero())
	assert.Equal(t, ulidTime(now), r.ID.Time())
}

func TestNewID_SortsByCreation(t *testing.T) {
	base := time.Now()
	first := payment.NewID(base)
	second := payment.NewID(base.Add(time.Millisecond))
	third := payment.NewID(base.Add(time.Millisecond))

	assert.Less(t, first.String(), second.String())
	assert.Less(t, second.String(), third.String())
}

func TestNewPaidRecord(t *testing.T) {
	now := time.Now()
	r := payment.NewPaidRecord(confirmation(), now)

	assert.Equal(t, payment.StatusPaid, r.Status)
	require.NotNil(t, r.PaidAt)
	assert.Equal(t, now, *r.PaidAt)
	assert.Equal(t, "buyer@example.com", r.Email)
	assert.Equal(t, "rcpt_1", r.ExternalPaymentID)
	assert.Equal(t, "mem_1", r.ExternalMembershipID)
	assert.Equal(t, "guidance", r.PlanSlug)
	assert.True(t, decimal.RequireFromString("280").Equal(r.Amount))
	assert.Equal(t, "usd", r.Currency)
}

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from payment.Status
		to   payment.Status
		want bool
	}{
		{payment.StatusPending, payment.StatusPaid, true},
		{payment.StatusPending, payment.StatusFailed, true},
		{payment.StatusFailed, payment.StatusPaid, true},
		{payment.StatusFailed, payment.StatusPending, false},
		{payment.StatusPaid, payment.StatusPaid, false},
		{payment.StatusPaid, payment.StatusFailed, false},
		{payment.StatusPaid, payment.StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			r := &payment.Record{Status: tt.from}
			assert.Equal(t, tt.want, r.CanTransitionTo(tt.to))
		})
	}
}

func TestApplyConfirmation_PendingBecomesPaid(t *testing.T) {
	created := time.Now().Add(-30 * time.Second)
	r := payment.NewPendingRecord(guidance, "", created)

	now := time.Now()
	moved := r.ApplyConfirmation(confirmation(), now)

	assert.True(t, moved)
	assert.True(t, r.IsPaid())
	require.NotNil(t, r.PaidAt)
	assert.Equal(t, now, *r.PaidAt)
	assert.Equal(t, "rcpt_1", r.ExternalPaymentID)
	assert.Equal(t, "mem_1", r.ExternalMembershipID)
	assert.Equal(t, created, r.CreatedAt)
}

func TestApplyConfirmation_FailedBecomesPaid(t *testing.T) {
	r := payment.NewPendingRecord(guidance, "", time.Now())
	r.Status = payment.StatusFailed

	assert.True(t, r.ApplyConfirmation(confirmation(), time.Now()))
	assert.True(t, r.IsPaid())
}

func TestApplyConfirmation_RedeliveryConverges(t *testing.T) {
	first := time.Now().Add(-time.Minute)
	r := payment.NewPaidRecord(confirmation(), first)

	redelivered := confirmation()
	redelivered.Amount = decimal.RequireFromString("1.00")
	moved := r.ApplyConfirmation(redelivered, time.Now())

	assert.False(t, moved)
	assert.True(t, r.IsPaid())
	assert.Equal(t, first, *r.PaidAt)
	assert.True(t, decimal.RequireFromString("280").Equal(r.Amount))
	assert.Equal(t, "rcpt_1", r.ExternalPaymentID)
}

func TestApplyConfirmation_PaidRecordOnlyFillsMissingIdentifiers(t *testing.T) {
	c := confirmation()
	c.ExternalMembershipID = ""
	r := payment.NewPaidRecord(c, time.Now())

	later := confirmation()
	later.ExternalPaymentID = "rcpt_other"
	r.ApplyConfirmation(later, time.Now())

	assert.Equal(t, "rcpt_1", r.ExternalPaymentID)
	assert.Equal(t, "mem_1", r.ExternalMembershipID)
}

func TestApplyConfirmation_KeepsKnownFieldsWhenEventOmitsThem(t *testing.T) {
	r := payment.NewPendingRecord(guidance, "", time.Now())
	r.Email = "known@example.com"

	c := payment.Confirmation{ExternalPaymentID: "rcpt_2"}
	r.ApplyConfirmation(c, time.Now())

	assert.Equal(t, "known@example.com", r.Email)
	assert.Equal(t, "plan_guidance", r.ExternalPlanID)
	assert.True(t, r.Amount.IsZero())
}

func ulidTime(t time.Time) uint64 {
	return uint64(t.UnixMilli())
}
