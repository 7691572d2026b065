package repository

import (
	"context"

	"shambascan/internal/domain"
)

// TransactionRepository defines the persistence operations for mobile-money
// transactions. Confirmation sessions only read through GetByCheckoutRequestID;
// writes happen at initiation and from the gateway callback.
type TransactionRepository interface {
	// Create persists a new transaction in PENDING state.
	Create(ctx context.Context, tx *domain.Transaction) error

	// GetByID retrieves a transaction by ID.
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)

	// GetByCheckoutRequestID retrieves a transaction by the gateway's
	// correlation identifier.
	GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.Transaction, error)

	// UpdateResult records the gateway callback outcome for a checkout
	// request: final status, receipt number, and result description.
	UpdateResult(ctx context.Context, checkoutRequestID string, status domain.TransactionStatus, receipt, resultDesc string) error
}
