package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Delivery is the stored outcome of a processed webhook delivery.
type Delivery struct {
	ID             string
	ResponseBody   string
	ResponseStatus int
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// DeliveryRepository remembers webhook deliveries so that a redelivery with
// the same id is answered from the stored outcome.
type DeliveryRepository struct {
	pool *pgxpool.Pool
}

func NewDeliveryRepository(pool *pgxpool.Pool) *DeliveryRepository {
	return &DeliveryRepository{pool: pool}
}

func (r *DeliveryRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Get returns nil without error when the delivery is unknown or expired.
func (r *DeliveryRepository) Get(ctx context.Context, id string) (*Delivery, error) {
	d := &Delivery{}
	err := r.db(ctx).QueryRow(ctx,
		`SELECT delivery_id, response_body, response_status, created_at, expires_at
		 FROM webhook_deliveries WHERE delivery_id = $1 AND expires_at > NOW()`, id,
	).Scan(&d.ID, &d.ResponseBody, &d.ResponseStatus, &d.CreatedAt, &d.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get webhook delivery: %w", err)
	}
	return d, nil
}

func (r *DeliveryRepository) Save(ctx context.Context, d *Delivery) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO webhook_deliveries (delivery_id, response_body, response_status, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (delivery_id) DO UPDATE
		 SET response_body = EXCLUDED.response_body,
		     response_status = EXCLUDED.response_status,
		     expires_at = EXCLUDED.expires_at`,
		d.ID, d.ResponseBody, d.ResponseStatus, d.CreatedAt, d.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("save webhook delivery: %w", err)
	}
	return nil
}

// Cleanup removes expired deliveries and reports how many were deleted.
func (r *DeliveryRepository) Cleanup(ctx context.Context) (int64, error) {
	tag, err := r.db(ctx).Exec(ctx, `DELETE FROM webhook_deliveries WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("cleanup webhook deliveries: %w", err)
	}
	return tag.RowsAffected(), nil
}
