package payment

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// Status represents the payment record status in the state machine
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

// Record is one purchase attempt and its reconciliation state.
type Record struct {
	ID                   ulid.ULID
	Email                string
	Phone                string
	ExternalPaymentID    string
	ExternalMembershipID string
	PlanSlug             string
	ExternalPlanID       string
	Status               Status
	Amount               decimal.Decimal
	Currency             string
	PaidAt               *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Confirmation carries what a provider success event reports about a purchase.
type Confirmation struct {
	Email                string
	ExternalPaymentID    string
	ExternalMembershipID string
	PlanSlug             string
	ExternalPlanID       string
	Amount               decimal.Decimal
	Currency             string
}

// NewID returns a record id whose lexical order follows creation time.
func NewID(at time.Time) ulid.ULID {
	return ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy())
}

// NewPendingRecord starts a checkout for plan.
func NewPendingRecord(plan Plan, phone string, now time.Time) *Record {
	return &Record{
		ID:             NewID(now),
		Phone:          phone,
		PlanSlug:       plan.Slug,
		ExternalPlanID: plan.ExternalID,
		Status:         StatusPending,
		Amount:         decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NewPaidRecord records a purchase first seen through its confirmation.
func NewPaidRecord(c Confirmation, now time.Time) *Record {
	r := &Record{
		ID:        NewID(now),
		PlanSlug:  c.PlanSlug,
		Status:    StatusPending,
		Amount:    decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.ApplyConfirmation(c, now)
	return r
}

// CanTransitionTo checks if the record can transition to the given status
func (r *Record) CanTransitionTo(newStatus Status) bool {
	transitions := map[Status][]Status{
		StatusPending: {StatusPaid, StatusFailed},
		StatusFailed:  {StatusPaid},
		StatusPaid:    {}, // Terminal state
	}

	for _, allowed := range transitions[r.Status] {
		if allowed == newStatus {
			return true
		}
	}
	return false
}

// IsPaid reports whether the purchase has been confirmed.
func (r *Record) IsPaid() bool {
	return r.Status == StatusPaid
}

// ApplyConfirmation converges the record onto a success event and reports
// whether this call moved it into paid. A record that is already paid only
// has its missing identifiers filled in; paidAt, amount and existing
// identifiers are left alone so redeliveries cannot rewrite history.
func (r *Record) ApplyConfirmation(c Confirmation, now time.Time) bool {
	if !r.CanTransitionTo(StatusPaid) {
		fillEmpty(&r.Email, c.Email)
		fillEmpty(&r.ExternalPaymentID, c.ExternalPaymentID)
		fillEmpty(&r.ExternalMembershipID, c.ExternalMembershipID)
		fillEmpty(&r.ExternalPlanID, c.ExternalPlanID)
		r.UpdatedAt = now
		return false
	}

	overwrite(&r.Email, c.Email)
	overwrite(&r.ExternalPaymentID, c.ExternalPaymentID)
	overwrite(&r.ExternalMembershipID, c.ExternalMembershipID)
	fillEmpty(&r.ExternalPlanID, c.ExternalPlanID)
	r.Amount = c.Amount
	overwrite(&r.Currency, c.Currency)

	r.Status = StatusPaid
	paidAt := now
	r.PaidAt = &paidAt
	r.UpdatedAt = now
	return true
}

func fillEmpty(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}

func overwrite(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
