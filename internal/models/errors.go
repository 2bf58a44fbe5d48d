package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a product, order, or cart line does not
	// exist or is not visible to the requesting actor.
	ErrNotFound = errors.New("not found")

	// ErrEmptyCart is returned when checkout is attempted on an empty cart.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrInvalidSignature rejects a webhook whose signature does not match
	// the shared secret. No state change happens for such events.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrOrderExists signals that an order already holds the payment
	// reference a write tried to claim (duplicate delivery race).
	ErrOrderExists = errors.New("order already exists for payment reference")
)

// ValidationError rejects malformed input synchronously, with no state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// InvalidTransitionError reports an illegal or unauthorized status change.
// The order is left untouched.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
	Role Role
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s for role %s", e.From, e.To, e.Role)
}
