package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The cli and handler layers map these to messages and HTTP status codes.
var (
	ErrInsufficientFunds  = errors.New("insufficient_funds")
	ErrInsufficientShares = errors.New("insufficient_shares")
	ErrNoActiveSession    = errors.New("no_active_session")
	ErrUnknownInstrument  = errors.New("unknown_instrument")
	ErrDuplicateUsername  = errors.New("duplicate_username")
	ErrFileUnavailable    = errors.New("file_unavailable")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrUserNotFound       = errors.New("user_not_found")
	ErrSessionNotFound    = errors.New("session_not_found")
	ErrNotEnoughData      = errors.New("not_enough_data")
	ErrAmountOverflow     = errors.New("amount_overflow")
	ErrArchiveDisabled    = errors.New("archive_disabled")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsAdmissionRejected reports whether err means an order was refused at
// submission because the account could not cover it.
func IsAdmissionRejected(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrInsufficientShares)
}
