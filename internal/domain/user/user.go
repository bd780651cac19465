package user

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus mirrors the provider-side membership state of a user.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// User is an account owned by another part of the system. Webhook processing
// only updates its subscription fields; it never creates one.
type User struct {
	ID                 uuid.UUID
	Name               string
	Email              string
	SubscriptionStatus SubscriptionStatus
	PaymentProvider    string
	ProviderPaymentID  string
	UpdatedAt          time.Time
}

// Activate links a confirmed purchase to the user.
func (u *User) Activate(provider, providerPaymentID string, now time.Time) {
	u.PaymentProvider = provider
	if providerPaymentID != "" {
		u.ProviderPaymentID = providerPaymentID
	}
	u.SubscriptionStatus = SubscriptionActive
	u.UpdatedAt = now
}

func (u *User) SetSubscriptionStatus(status SubscriptionStatus, now time.Time) {
	u.SubscriptionStatus = status
	u.UpdatedAt = now
}

// Repository looks up and updates existing users.
type Repository interface {
	// GetByEmail returns errors.ErrUserNotFound when no user has the address.
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
}
