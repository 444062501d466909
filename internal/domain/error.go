package domain

import "errors"

var (
	// Fulfillment errors
	ErrPlanNotFound        = errors.New("plan not found")
	ErrInvalidCurrency     = errors.New("invalid currency")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrOutOfInventory      = errors.New("out of inventory")
	ErrReservationExpired  = errors.New("reservation expired")
	ErrReservationMismatch = errors.New("reservation held by another order")
	ErrPaymentFailed       = errors.New("payment failed")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("entity not found")

	// Common errors
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrUnsupportedProvider = errors.New("unsupported payment provider")
	ErrAlreadyExists       = errors.New("entity already exists")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrLockNotAcquired     = errors.New("lock not acquired")

	// Persistence errors
	ErrOperationFailed    = errors.New("database operation failed")
	ErrInvalidExecContext = errors.New("invalid database execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)

// IsTransient reports whether err is a persistence failure that is safe to retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrOperationFailed) || errors.Is(err, ErrReadDatabaseRow)
}
