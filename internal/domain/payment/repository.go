package payment

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Repository defines the interface for payment record persistence.
// Lookups return errors.ErrPaymentNotFound when nothing matches.
type Repository interface {
	// Create inserts a record. A clash on the external payment id returns
	// errors.ErrDuplicateExternalPaymentID.
	Create(ctx context.Context, r *Record) error

	// Update persists every mutable field of r.
	Update(ctx context.Context, r *Record) error

	GetByID(ctx context.Context, id ulid.ULID) (*Record, error)

	// FindByExternalPaymentID and FindByExternalMembershipID lock the row
	// when called inside a transaction.
	FindByExternalPaymentID(ctx context.Context, externalPaymentID string) (*Record, error)
	FindByExternalMembershipID(ctx context.Context, externalMembershipID string) (*Record, error)

	// FindLatestPending returns the newest pending record for planSlug created
	// after the given instant.
	FindLatestPending(ctx context.Context, planSlug string, createdAfter time.Time) (*Record, error)
}
