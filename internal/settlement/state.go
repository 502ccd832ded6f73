package settlement

import "fmt"

// State is a trade's position in the settlement state machine.
type State int

const (
	StateReceived State = iota
	StateLocked
	StatePriced
	StateValidated
	StateCommitted
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateLocked:
		return "locked"
	case StatePriced:
		return "priced"
	case StateValidated:
		return "validated"
	case StateCommitted:
		return "committed"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateRejected
}

var transitions = map[State][]State{
	StateReceived:  {StateLocked, StateRejected},
	StateLocked:    {StatePriced, StateRejected},
	StatePriced:    {StateValidated, StateRejected},
	StateValidated: {StateCommitted, StateRejected},
}

// tradeState tracks one execution. A storage conflict sends a non-terminal
// trade back to received for another attempt.
type tradeState struct {
	current State
}

func (t *tradeState) advance(next State) error {
	for _, allowed := range transitions[t.current] {
		if allowed == next {
			t.current = next
			return nil
		}
	}
	return fmt.Errorf("%w: illegal transition %s -> %s", ErrInternal, t.current, next)
}

func (t *tradeState) retry() {
	if !t.current.Terminal() {
		t.current = StateReceived
	}
}
