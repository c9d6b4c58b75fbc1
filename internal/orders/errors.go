package orders

import "errors"

var (
	// ErrValidation marks malformed create input. Never retried.
	ErrValidation = errors.New("invalid order input")

	// ErrInvalidStatus marks a transition target outside the allowed set.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidTransition marks a regression or repeat of the forward-only
	// pending -> accepted -> delivered lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidState marks an archival attempt on a non-terminal order.
	ErrInvalidState = errors.New("order not in archivable state")

	// ErrDuplicateKey marks an insert that lost a race on the client_key
	// unique constraint; the winner's order should be returned instead.
	ErrDuplicateKey = errors.New("duplicate client key")

	ErrNotFound = errors.New("order not found")
)
