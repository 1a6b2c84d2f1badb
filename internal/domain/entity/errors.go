package entity

import "errors"

// Error kinds surfaced by the domain and application layers.
// Call sites wrap them with fmt.Errorf("%w: ...", ErrX) and callers classify with errors.Is.
var (
	// ErrValidation marks malformed or missing input the caller can correct
	ErrValidation = errors.New("validation failed")

	// ErrInvalidState marks a transition that is not allowed from the order's current status
	ErrInvalidState = errors.New("invalid state")

	// ErrAuthority marks an actor without sufficient rights or approval authority
	ErrAuthority = errors.New("insufficient authority")

	// ErrDuplicateAction marks an approver deciding twice on the same order
	ErrDuplicateAction = errors.New("duplicate action")

	// ErrConcurrencyConflict marks a write against a stale version; reload and retry
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrNumberTaken marks a generated order or shipment number that is already in use
	ErrNumberTaken = errors.New("number already taken")

	// ErrNotFound marks an unknown order, user, supplier or shipment reference
	ErrNotFound = errors.New("not found")
)
