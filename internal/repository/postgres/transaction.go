package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"shambascan/internal/domain"
	"shambascan/internal/repository"
)

// TransactionRepository is a PostgreSQL implementation of
// repository.TransactionRepository.
type TransactionRepository struct {
	q Querier
}

// NewTransactionRepository creates a new PostgreSQL transaction repository.
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{q: db}
}

// Create persists a new transaction.
func (r *TransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, user_id, checkout_request_id, merchant_request_id,
			phone_number, amount, account_reference, transaction_desc,
			status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`

	_, err := r.q.ExecContext(ctx, query,
		tx.ID,
		tx.UserID,
		tx.CheckoutRequestID,
		tx.MerchantRequestID,
		tx.PhoneNumber,
		tx.Amount,
		tx.AccountReference,
		tx.TransactionDesc,
		tx.Status,
		tx.CreatedAt,
	)

	return err
}

const transactionColumns = `
	id, user_id, checkout_request_id, merchant_request_id,
	phone_number, amount, account_reference, transaction_desc,
	status, mpesa_receipt, result_desc, created_at, updated_at
`

func (r *TransactionRepository) scanRow(row *sql.Row) (*domain.Transaction, error) {
	var tx domain.Transaction
	var receipt, resultDesc sql.NullString
	err := row.Scan(
		&tx.ID,
		&tx.UserID,
		&tx.CheckoutRequestID,
		&tx.MerchantRequestID,
		&tx.PhoneNumber,
		&tx.Amount,
		&tx.AccountReference,
		&tx.TransactionDesc,
		&tx.Status,
		&receipt,
		&resultDesc,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	tx.MpesaReceipt = receipt.String
	tx.ResultDesc = resultDesc.String
	return &tx, nil
}

// GetByID retrieves a transaction by ID.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return r.scanRow(r.q.QueryRowContext(ctx, query, id))
}

// GetByCheckoutRequestID retrieves a transaction by the gateway correlation
// identifier.
func (r *TransactionRepository) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE checkout_request_id = $1`
	return r.scanRow(r.q.QueryRowContext(ctx, query, checkoutRequestID))
}

// UpdateResult records the gateway callback outcome for a checkout request.
func (r *TransactionRepository) UpdateResult(ctx context.Context, checkoutRequestID string, status domain.TransactionStatus, receipt, resultDesc string) error {
	query := `
		UPDATE transactions
		SET status = $1, mpesa_receipt = $2, result_desc = $3, updated_at = $4
		WHERE checkout_request_id = $5
	`

	result, err := r.q.ExecContext(ctx, query, status, receipt, resultDesc, time.Now().UTC(), checkoutRequestID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}
