package domain

import "errors"

// Ledger error taxonomy. Business-rule errors are terminal for the call,
// ErrConflict and ErrStoreUnavailable may be retried by the caller.
var (
	ErrNotFound     = errors.New("ledger: not found")
	ErrUserNotFound = errors.New("ledger: user not found")
	ErrItemNotFound = errors.New("ledger: item not found")

	ErrInsufficientFunds    = errors.New("ledger: insufficient funds")
	ErrItemUnavailable      = errors.New("ledger: item unavailable")
	ErrDuplicateTransaction = errors.New("ledger: duplicate transaction")

	ErrConflict         = errors.New("ledger: concurrent modification")
	ErrStoreUnavailable = errors.New("ledger: store unavailable")

	// Validation
	ErrInvalidAmount = errors.New("ledger: invalid amount")
	ErrInvalidUser   = errors.New("ledger: invalid user id")
	ErrInvalidKind   = errors.New("ledger: invalid transaction kind")
	ErrSelfReferral  = errors.New("ledger: user cannot refer themselves")
	ErrNoExternalID  = errors.New("ledger: external id required")
)

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrItemNotFound)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrStoreUnavailable)
}

// IsBusinessRule returns true for rule violations that must not be retried.
func IsBusinessRule(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrItemUnavailable) ||
		errors.Is(err, ErrDuplicateTransaction) ||
		IsValidation(err)
}

// IsValidation returns true if the request itself was malformed.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidUser) ||
		errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrSelfReferral) ||
		errors.Is(err, ErrNoExternalID)
}
