package domain

import "time"

// TransactionStatus represents the gateway-reported status of an STK push charge.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// Transaction represents one mobile-money charge, keyed by the gateway's
// checkout request ID. It is written at initiation and mutated only by the
// gateway result callback; confirmation sessions read it but never write it.
type Transaction struct {
	ID                string
	UserID            string
	CheckoutRequestID string
	MerchantRequestID string
	PhoneNumber       string
	Amount            float64
	AccountReference  string
	TransactionDesc   string
	Status            TransactionStatus
	MpesaReceipt      string
	ResultDesc        string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SessionStatus represents the state of a payment confirmation session.
type SessionStatus string

const (
	SessionStatusIdle    SessionStatus = "IDLE"
	SessionStatusPending SessionStatus = "PENDING"
	SessionStatusSuccess SessionStatus = "SUCCESS"
	SessionStatusFailed  SessionStatus = "FAILED"
)

// SessionSnapshot is a point-in-time view of a confirmation session.
type SessionSnapshot struct {
	ID                string
	UserID            string
	CheckoutRequestID string
	Status            SessionStatus
	Message           string
	RemainingSeconds  int
	TimedOut          bool
	TransactionID     string
	CreatedAt         time.Time
}
