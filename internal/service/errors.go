package service

import "errors"

var (
	// ErrInvalidUserID is returned when the user ID is empty.
	ErrInvalidUserID = errors.New("invalid user id")

	// ErrInvalidPhoneNumber is returned when a phone number fails canonical
	// validation at submit time.
	ErrInvalidPhoneNumber = errors.New("phone number must be a valid Safaricom number (2547XXXXXXXX)")

	// ErrInvalidPaymentAmount is returned when the payment amount is not positive.
	ErrInvalidPaymentAmount = errors.New("invalid payment amount")

	// ErrPaymentInProgress is returned when another payment attempt already
	// holds the user's session slot.
	ErrPaymentInProgress = errors.New("a payment is already in progress")

	// ErrSessionNotFound is returned when no confirmation session matches
	// the requested ID.
	ErrSessionNotFound = errors.New("payment session not found")

	// ErrSessionOwnership is returned when a session is accessed by a user
	// who does not own it.
	ErrSessionOwnership = errors.New("payment session belongs to another user")

	// ErrInvalidScanID is returned when the scan ID is empty.
	ErrInvalidScanID = errors.New("invalid scan id")

	// ErrEmptyImage is returned when a scan upload carries no image bytes.
	ErrEmptyImage = errors.New("image data is required")

	// ErrUnknownPlan is returned when a subscription references a plan that
	// is not in the catalog.
	ErrUnknownPlan = errors.New("unknown subscription plan")
)
