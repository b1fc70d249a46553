package models

import "errors"

// Escrow precondition failures. Surfaced synchronously to the caller,
// matched with errors.Is; never retried inside the service.
var (
	ErrNotFound               = errors.New("transaction not found")
	ErrInvalidParticipants    = errors.New("buyer and seller must be distinct users")
	ErrInvalidStateTransition = errors.New("operation not allowed in current transaction state")
	ErrUnauthorized           = errors.New("user is not a participant of this transaction")
	ErrAlreadyDisputed        = errors.New("transaction is already disputed")
	ErrCannotDisputeCompleted = errors.New("completed transaction cannot be disputed")
	ErrPaymentIntentFailed    = errors.New("payment intent creation failed")
)
