package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/reconciler/internal/domain/errors"
	"github.com/cassiomorais/reconciler/internal/domain/payment"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

const recordColumns = `id, email, phone, external_payment_id, external_membership_id,
	plan_slug, external_plan_id, status, amount::text, currency, paid_at, created_at, updated_at`

// PaymentRepository implements payment.Repository using PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Create inserts a new payment record.
func (r *PaymentRepository) Create(ctx context.Context, rec *payment.Record) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO payment_records
		 (id, email, phone, external_payment_id, external_membership_id, plan_slug, external_plan_id,
		  status, amount, currency, paid_at, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		rec.ID.String(), nullable(rec.Email), nullable(rec.Phone), nullable(rec.ExternalPaymentID),
		nullable(rec.ExternalMembershipID), rec.PlanSlug, nullable(rec.ExternalPlanID),
		string(rec.Status), rec.Amount.StringFixed(2), nullable(rec.Currency), rec.PaidAt, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domainErrors.ErrDuplicateExternalPaymentID
		}
		return fmt.Errorf("insert payment record: %w", err)
	}
	return nil
}

// Update persists every mutable field of the record.
func (r *PaymentRepository) Update(ctx context.Context, rec *payment.Record) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payment_records
		 SET email = $1, phone = $2, external_payment_id = $3, external_membership_id = $4,
		     external_plan_id = $5, status = $6, amount = $7, currency = $8, paid_at = $9, updated_at = $10
		 WHERE id = $11`,
		nullable(rec.Email), nullable(rec.Phone), nullable(rec.ExternalPaymentID), nullable(rec.ExternalMembershipID),
		nullable(rec.ExternalPlanID), string(rec.Status), rec.Amount.StringFixed(2), nullable(rec.Currency),
		rec.PaidAt, rec.UpdatedAt, rec.ID.String(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domainErrors.ErrDuplicateExternalPaymentID
		}
		return fmt.Errorf("update payment record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrPaymentNotFound
	}
	return nil
}

// GetByID retrieves a payment record by its ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id ulid.ULID) (*payment.Record, error) {
	row := r.db(ctx).QueryRow(ctx,
		`SELECT `+recordColumns+` FROM payment_records WHERE id = $1`, id.String(),
	)
	return scanRecord(row)
}

// FindByExternalPaymentID finds the record carrying the provider receipt id.
func (r *PaymentRepository) FindByExternalPaymentID(ctx context.Context, externalPaymentID string) (*payment.Record, error) {
	row := r.db(ctx).QueryRow(ctx,
		`SELECT `+recordColumns+` FROM payment_records
		 WHERE external_payment_id = $1`+lockClause(ctx, false), externalPaymentID,
	)
	return scanRecord(row)
}

// FindByExternalMembershipID finds the newest record carrying the membership id.
func (r *PaymentRepository) FindByExternalMembershipID(ctx context.Context, externalMembershipID string) (*payment.Record, error) {
	row := r.db(ctx).QueryRow(ctx,
		`SELECT `+recordColumns+` FROM payment_records
		 WHERE external_membership_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`+lockClause(ctx, false), externalMembershipID,
	)
	return scanRecord(row)
}

// FindLatestPending returns the newest pending record for the plan created
// after createdAfter. Inside a transaction rows claimed by a concurrent
// reconciliation are skipped, so two deliveries never settle the same record.
func (r *PaymentRepository) FindLatestPending(ctx context.Context, planSlug string, createdAfter time.Time) (*payment.Record, error) {
	row := r.db(ctx).QueryRow(ctx,
		`SELECT `+recordColumns+` FROM payment_records
		 WHERE plan_slug = $1 AND status = 'pending' AND created_at > $2
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`+lockClause(ctx, true), planSlug, createdAfter,
	)
	return scanRecord(row)
}

func lockClause(ctx context.Context, skipLocked bool) string {
	if !InTransaction(ctx) {
		return ""
	}
	if skipLocked {
		return " FOR UPDATE SKIP LOCKED"
	}
	return " FOR UPDATE"
}

func scanRecord(s scanner) (*payment.Record, error) {
	var (
		rec                                              payment.Record
		id, status, amount                               string
		email, phone, paymentID, membershipID, planID, c *string
	)
	err := s.Scan(&id, &email, &phone, &paymentID, &membershipID,
		&rec.PlanSlug, &planID, &status, &amount, &c, &rec.PaidAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("scan payment record: %w", err)
	}

	if rec.ID, err = ulid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse payment record id %q: %w", id, err)
	}
	if rec.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse payment record amount %q: %w", amount, err)
	}
	rec.Email = deref(email)
	rec.Phone = deref(phone)
	rec.ExternalPaymentID = deref(paymentID)
	rec.ExternalMembershipID = deref(membershipID)
	rec.ExternalPlanID = deref(planID)
	rec.Currency = deref(c)
	rec.Status = payment.Status(status)
	return &rec, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
