package model

import "errors"

// Rejection errors shared by more than one engine. Every operation either
// fully applies or has no effect; these are always returned before any state
// is mutated.
var (
	// ErrWrongPayment is returned when the value sent with a payable
	// operation does not exactly match the required amount.
	ErrWrongPayment = errors.New("wager: payment does not match required amount")

	// ErrWrongState is returned when an operation is attempted in a game
	// state that structurally forbids it.
	ErrWrongState = errors.New("wager: operation not allowed in current state")

	// ErrUnauthorized is returned when a privileged operation is attempted
	// by anyone other than the configured operator.
	ErrUnauthorized = errors.New("wager: caller is not the operator")

	// ErrInvalidAddress is returned for malformed account addresses.
	ErrInvalidAddress = errors.New("wager: invalid address")
)
