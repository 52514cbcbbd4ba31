package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a trigger is not permitted from the current state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state is not a known requisition status
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed is returned when every guard for a permitted trigger rejects it
	ErrGuardFailed = errors.New("guard condition failed")
)
