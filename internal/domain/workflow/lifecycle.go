package workflow

import (
	"fmt"
	"slices"
)

// Transition is one edge of the purchase order lifecycle
type Transition struct {
	From    State
	Trigger Trigger
	To      State
}

// lifecycle is the complete transition table. REJECTED, FULFILLED and
// CANCELLED have no outgoing edges.
var lifecycle = []Transition{
	{From: StateDraft, Trigger: TriggerSubmit, To: StatePendingApproval},
	{From: StateDraft, Trigger: TriggerCancel, To: StateCancelled},
	{From: StatePendingApproval, Trigger: TriggerApprove, To: StateApproved},
	{From: StatePendingApproval, Trigger: TriggerReject, To: StateRejected},
	{From: StatePendingApproval, Trigger: TriggerCancel, To: StateCancelled},
	{From: StateApproved, Trigger: TriggerFulfill, To: StateFulfilled},
}

// Lifecycle returns a copy of the transition table
func Lifecycle() []Transition {
	return slices.Clone(lifecycle)
}

// Next returns the state that trigger leads to from the given state
func Next(from State, trigger Trigger) (State, error) {
	for _, t := range lifecycle {
		if t.From == from && t.Trigger == trigger {
			return t.To, nil
		}
	}
	return "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, trigger, from)
}

// PermittedTriggers lists the triggers leaving a state, sorted by name
func PermittedTriggers(from State) []Trigger {
	triggers := []Trigger{}
	for _, t := range lifecycle {
		if t.From == from {
			triggers = append(triggers, t.Trigger)
		}
	}
	slices.Sort(triggers)
	return triggers
}
