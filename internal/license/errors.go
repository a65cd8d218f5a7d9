package license

import "errors"

var (
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrInvalidPrice        = errors.New("price must be greater than zero")
	ErrLicenseActivated    = errors.New("cannot transfer an activated license")
	ErrTransferRestricted  = errors.New("transfer not allowed")
	ErrStillActive         = errors.New("subscription still active")
	ErrCanceled            = errors.New("subscription canceled")
	ErrNonexistentToken    = errors.New("nonexistent token")
	ErrNotTokenOwner       = errors.New("not token owner")

	// ErrNotReadyOrInsufficientFunds is deliberately opaque: the merged
	// guard does not tell callers whether the balance, the allowance, or
	// the timing was at fault.
	ErrNotReadyOrInsufficientFunds = errors.New("not ready or insufficient funds")
)
