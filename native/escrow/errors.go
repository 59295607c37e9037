package escrow

import "errors"

// Every rejection maps onto one of these sentinel values so callers can
// dispatch on error kind with errors.Is while the wrapped message carries the
// specifics. A failed operation never leaves a partial state change behind.
var (
	// ErrNotFound indicates the identifier has no active record, either
	// because it was never assigned or because the escrow was withdrawn.
	ErrNotFound = errors.New("escrow: not found")
	// ErrUnauthorized indicates the caller lacks the role required for the
	// attempted transition.
	ErrUnauthorized = errors.New("escrow: unauthorized")
	// ErrInvalidState indicates the operation is not valid from the escrow's
	// current status.
	ErrInvalidState = errors.New("escrow: invalid state")
	// ErrDeadlinePassed indicates a temporal gate closed before the call.
	ErrDeadlinePassed = errors.New("escrow: deadline passed")
	// ErrDeadlineNotReached indicates a temporal gate has not opened yet.
	ErrDeadlineNotReached = errors.New("escrow: deadline not reached")
	// ErrInvalidParameter indicates a malformed amount, address, fee rate or
	// resolution code.
	ErrInvalidParameter = errors.New("escrow: invalid parameter")
	// ErrTransferFailed indicates the value-transfer substrate reported a
	// failure. During withdrawal the record stays intact so the operation is
	// safely retryable.
	ErrTransferFailed = errors.New("escrow: transfer failed")
)
