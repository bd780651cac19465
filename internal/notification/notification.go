// Package notification sends the buyer confirmation, the operator purchase
// notice and the compensating cancellation alerts.
package notification

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Buyer is the display identity used in purchase mails. It is built from a
// registered user when one exists, else from the webhook payload, and is
// never persisted.
type Buyer struct {
	Name  string
	Email string
}

const defaultBuyerName = "Customer"

// NewBuyer falls back to a generic name when none is known.
func NewBuyer(name, email string) Buyer {
	if name == "" {
		name = defaultBuyerName
	}
	return Buyer{Name: name, Email: email}
}

// PurchaseNotice describes a confirmed purchase.
type PurchaseNotice struct {
	Buyer                Buyer
	Phone                string
	PlanSlug             string
	PlanName             string
	Price                string
	PaymentID            string
	ExternalPaymentID    string
	ExternalMembershipID string
	Amount               decimal.Decimal
	Currency             string
	SubscriptionStatus   string
	PaidAt               time.Time
}

// CancellationAlert reports a compensating cancellation that did not go
// through. Permanent is set once the task gave up for good.
type CancellationAlert struct {
	PaymentID    string
	MembershipID string
	Email        string
	PlanName     string
	Attempt      int
	Reason       string
	Permanent    bool
}

// Notifier delivers notifications. Implementations return an error when a
// send fails; callers decide whether that matters.
type Notifier interface {
	SendBuyerConfirmation(ctx context.Context, n PurchaseNotice) error
	SendOperatorNotice(ctx context.Context, n PurchaseNotice) error
	SendCancellationAlert(ctx context.Context, a CancellationAlert) error
}
