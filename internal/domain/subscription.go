package domain

import "time"

// SubscriptionStatus represents the current status of a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusPending SubscriptionStatus = "PENDING"
	SubscriptionStatusActive  SubscriptionStatus = "ACTIVE"
	SubscriptionStatusExpired SubscriptionStatus = "EXPIRED"
)

// Plan is one entry of the fixed subscription plan catalog.
type Plan struct {
	ID           string
	Name         string
	PriceKES     float64
	DurationDays int
}

// Subscription represents a user's plan membership.
type Subscription struct {
	ID        string
	UserID    string
	PlanID    string
	Status    SubscriptionStatus
	PaymentID string
	StartsAt  time.Time
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
