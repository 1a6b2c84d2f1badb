package workflow

import (
	"context"
	"fmt"
)

// GuardFunc vets a transition. A non-nil error refuses it and is wrapped
// into the error returned by Fire.
type GuardFunc func(ctx context.Context) error

// Guards attaches at most one guard to each trigger
type Guards map[Trigger]GuardFunc

// Machine walks one order status through the lifecycle
type Machine struct {
	state  State
	guards Guards
}

// NewMachine starts a machine at initial. guards may be nil.
func NewMachine(initial State, guards Guards) (*Machine, error) {
	if !initial.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownState, initial)
	}
	return &Machine{state: initial, guards: guards}, nil
}

// State returns the current state
func (m *Machine) State() State {
	return m.state
}

// CanFire reports whether trigger leaves the current state. Guards are not evaluated.
func (m *Machine) CanFire(trigger Trigger) bool {
	_, err := Next(m.state, trigger)
	return err == nil
}

// Fire moves to the trigger's target state once its guard, if any, passes
func (m *Machine) Fire(ctx context.Context, trigger Trigger) error {
	next, err := Next(m.state, trigger)
	if err != nil {
		return err
	}

	if guard := m.guards[trigger]; guard != nil {
		if err := guard(ctx); err != nil {
			return fmt.Errorf("%w: %s from %s: %w", ErrGuardFailed, trigger, m.state, err)
		}
	}

	m.state = next
	return nil
}

// PermittedTriggers lists the triggers leaving the current state
func (m *Machine) PermittedTriggers() []Trigger {
	return PermittedTriggers(m.state)
}
