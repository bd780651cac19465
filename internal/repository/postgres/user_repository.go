package postgres

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/reconciler/internal/domain/errors"
	"github.com/cassiomorais/reconciler/internal/domain/user"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository implements user.Repository using PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// GetByEmail matches the address case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	var (
		u                           user.User
		status, provider, paymentID *string
	)
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, name, email, subscription_status, payment_provider, provider_payment_id, updated_at
		 FROM users WHERE lower(email) = lower($1)`+lockClause(ctx, false), email,
	).Scan(&u.ID, &u.Name, &u.Email, &status, &provider, &paymentID, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	u.SubscriptionStatus = user.SubscriptionStatus(deref(status))
	u.PaymentProvider = deref(provider)
	u.ProviderPaymentID = deref(paymentID)
	return &u, nil
}

// Update persists the subscription fields of the user.
func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE users
		 SET subscription_status = $1, payment_provider = $2, provider_payment_id = $3, updated_at = $4
		 WHERE id = $5`,
		nullable(string(u.SubscriptionStatus)), nullable(u.PaymentProvider), nullable(u.ProviderPaymentID),
		u.UpdatedAt, u.ID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrUserNotFound
	}
	return nil
}
