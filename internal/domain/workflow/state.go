package workflow

// State is a requisition lifecycle status.
type State string

const (
	StatePending            State = "PENDING"
	StateApproved           State = "APPROVED"
	StateRejected           State = "REJECTED"
	StatePartiallyFulfilled State = "PARTIALLY_FULFILLED"
	StateFulfilled          State = "FULFILLED"
	StateConfirmed          State = "CONFIRMED"
	StateCancelled          State = "CANCELLED"
)

var validStates = map[State]bool{
	StatePending:            true,
	StateApproved:           true,
	StateRejected:           true,
	StatePartiallyFulfilled: true,
	StateFulfilled:          true,
	StateConfirmed:          true,
	StateCancelled:          true,
}

var terminalStates = map[State]bool{
	StateRejected:  true,
	StateConfirmed: true,
	StateCancelled: true,
}

// grantedStates carry an approved quantity.
var grantedStates = map[State]bool{
	StateApproved:           true,
	StatePartiallyFulfilled: true,
	StateFulfilled:          true,
	StateConfirmed:          true,
}

// IsTerminal returns true if no further transitions are allowed from the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsGranted returns true if a requisition in this state has an approved quantity
func (s State) IsGranted() bool {
	return grantedStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known requisition status
func (s State) IsValid() bool {
	return validStates[s]
}

// ParseState converts a raw status string into a State.
func ParseState(raw string) (State, error) {
	s := State(raw)
	if !s.IsValid() {
		return "", ErrInvalidState
	}
	return s, nil
}

// States returns every known state in lifecycle order.
func States() []State {
	return []State{
		StatePending,
		StateApproved,
		StateRejected,
		StatePartiallyFulfilled,
		StateFulfilled,
		StateConfirmed,
		StateCancelled,
	}
}
