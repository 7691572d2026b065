package repository

import (
	"context"

	"shambascan/internal/domain"
)

// ScanRepository defines the persistence operations for plant scans.
type ScanRepository interface {
	// Create persists a new scan record.
	Create(ctx context.Context, scan *domain.Scan) error

	// GetByID retrieves a scan by ID.
	GetByID(ctx context.Context, id string) (*domain.Scan, error)

	// ListByUser retrieves a user's scans, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Scan, error)
}
