package repository

import (
	"context"
	"time"

	"shambascan/internal/domain"
)

// SubscriptionRepository defines the persistence operations for subscriptions.
type SubscriptionRepository interface {
	// Create persists a new subscription.
	Create(ctx context.Context, sub *domain.Subscription) error

	// GetCurrentByUser retrieves the user's most recent subscription.
	// Returns nil if the user has none.
	GetCurrentByUser(ctx context.Context, userID string) (*domain.Subscription, error)

	// GetByPaymentID retrieves the subscription tied to a payment session's
	// transaction. Returns nil if no subscription references the payment.
	GetByPaymentID(ctx context.Context, paymentID string) (*domain.Subscription, error)

	// Activate marks a subscription active with the given validity window.
	Activate(ctx context.Context, id string, startsAt, expiresAt time.Time) error
}
