package workflow

import "errors"

var (
	// ErrInvalidTransition means the trigger does not leave the current state
	ErrInvalidTransition = errors.New("transition not allowed")

	// ErrGuardFailed means a guard refused an otherwise valid transition
	ErrGuardFailed = errors.New("transition refused")

	// ErrUnknownState means a machine was asked to start from a state outside the lifecycle
	ErrUnknownState = errors.New("unknown state")
)
