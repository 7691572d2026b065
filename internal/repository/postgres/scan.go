package postgres

import (
	"context"
	"database/sql"
	"errors"

	"shambascan/internal/domain"
	"shambascan/internal/repository"
)

// ScanRepository is a PostgreSQL implementation of repository.ScanRepository.
type ScanRepository struct {
	q Querier
}

// NewScanRepository creates a new PostgreSQL scan repository.
func NewScanRepository(db *sql.DB) *ScanRepository {
	return &ScanRepository{q: db}
}

// Create persists a new scan record.
func (r *ScanRepository) Create(ctx context.Context, scan *domain.Scan) error {
	query := `
		INSERT INTO scans (
			id, user_id, image_url, image_sha1, is_plant, check_note,
			disease_id, disease_name, confidence, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.q.ExecContext(ctx, query,
		scan.ID,
		scan.UserID,
		scan.ImageURL,
		scan.ImageSHA1,
		scan.IsPlant,
		scan.CheckNote,
		scan.DiseaseID,
		scan.DiseaseName,
		scan.Confidence,
		scan.CreatedAt,
	)

	return err
}

// GetByID retrieves a scan by ID.
func (r *ScanRepository) GetByID(ctx context.Context, id string) (*domain.Scan, error) {
	query := `
		SELECT id, user_id, image_url, image_sha1, is_plant, check_note,
		       disease_id, disease_name, confidence, created_at
		FROM scans WHERE id = $1
	`

	var scan domain.Scan
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&scan.ID,
		&scan.UserID,
		&scan.ImageURL,
		&scan.ImageSHA1,
		&scan.IsPlant,
		&scan.CheckNote,
		&scan.DiseaseID,
		&scan.DiseaseName,
		&scan.Confidence,
		&scan.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return &scan, nil
}

// ListByUser retrieves a user's scans, newest first.
func (r *ScanRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Scan, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, user_id, image_url, image_sha1, is_plant, check_note,
		       disease_id, disease_name, confidence, created_at
		FROM scans
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.q.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []*domain.Scan
	for rows.Next() {
		var scan domain.Scan
		if err := rows.Scan(
			&scan.ID,
			&scan.UserID,
			&scan.ImageURL,
			&scan.ImageSHA1,
			&scan.IsPlant,
			&scan.CheckNote,
			&scan.DiseaseID,
			&scan.DiseaseName,
			&scan.Confidence,
			&scan.CreatedAt,
		); err != nil {
			return nil, err
		}
		scans = append(scans, &scan)
	}

	return scans, rows.Err()
}
