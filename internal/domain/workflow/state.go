package workflow

import "slices"

// State represents a purchase order status in the approval lifecycle
type State string

const (
	StateDraft           State = "DRAFT"
	StatePendingApproval State = "PENDING_APPROVAL"
	StateApproved        State = "APPROVED"
	StateRejected        State = "REJECTED"
	StateFulfilled       State = "FULFILLED"
	StateCancelled       State = "CANCELLED"
)

// IsTerminal reports whether no transition leaves the state
func (s State) IsTerminal() bool {
	switch s {
	case StateRejected, StateFulfilled, StateCancelled:
		return true
	}
	return false
}

func (s State) String() string {
	return string(s)
}

// IsValid reports whether s is part of the lifecycle
func (s State) IsValid() bool {
	return slices.Contains(AllStates(), s)
}

// AllStates returns every known state in lifecycle order
func AllStates() []State {
	return []State{
		StateDraft,
		StatePendingApproval,
		StateApproved,
		StateRejected,
		StateFulfilled,
		StateCancelled,
	}
}
