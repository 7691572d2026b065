package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"shambascan/internal/domain"
)

// SubscriptionRepository is a PostgreSQL implementation of
// repository.SubscriptionRepository.
type SubscriptionRepository struct {
	q Querier
}

// NewSubscriptionRepository creates a new PostgreSQL subscription repository.
func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{q: db}
}

// Create persists a new subscription.
func (r *SubscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			id, user_id, plan_id, status, payment_id,
			starts_at, expires_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`

	_, err := r.q.ExecContext(ctx, query,
		sub.ID,
		sub.UserID,
		sub.PlanID,
		sub.Status,
		sub.PaymentID,
		nullTime(sub.StartsAt),
		nullTime(sub.ExpiresAt),
		sub.CreatedAt,
	)

	return err
}

const subscriptionColumns = `
	id, user_id, plan_id, status, payment_id,
	starts_at, expires_at, created_at, updated_at
`

func scanSubscription(row *sql.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	var startsAt, expiresAt sql.NullTime
	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.PlanID,
		&sub.Status,
		&sub.PaymentID,
		&startsAt,
		&expiresAt,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	sub.StartsAt = startsAt.Time
	sub.ExpiresAt = expiresAt.Time
	return &sub, nil
}

// GetCurrentByUser retrieves the user's most recent subscription, or nil.
func (r *SubscriptionRepository) GetCurrentByUser(ctx context.Context, userID string) (*domain.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanSubscription(r.q.QueryRowContext(ctx, query, userID))
}

// GetByPaymentID retrieves the subscription tied to a payment, or nil.
func (r *SubscriptionRepository) GetByPaymentID(ctx context.Context, paymentID string) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE payment_id = $1`
	return scanSubscription(r.q.QueryRowContext(ctx, query, paymentID))
}

// Activate marks a subscription active with the given validity window.
func (r *SubscriptionRepository) Activate(ctx context.Context, id string, startsAt, expiresAt time.Time) error {
	query := `
		UPDATE subscriptions
		SET status = $1, starts_at = $2, expires_at = $3, updated_at = $4
		WHERE id = $5
	`

	_, err := r.q.ExecContext(ctx, query,
		domain.SubscriptionStatusActive, startsAt, expiresAt, time.Now().UTC(), id)
	return err
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
