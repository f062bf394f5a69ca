package toolmgr

// State is a position in the tool lifecycle state machine.
type State string

const (
	StateUnregistered         State = "unregistered"
	StateInitializing         State = "initializing"
	StateRegisteredAvailable  State = "registered_available"
	StateRegisteredUnavailable State = "registered_unavailable"
	StateTearingDown          State = "tearing_down"
)

// transitions enumerates the legal State -> State edges. An attempted
// transition not listed here is rejected by Registry.transition.
var transitions = map[State][]State{
	StateUnregistered:          {StateInitializing},
	StateInitializing:          {StateRegisteredAvailable, StateRegisteredUnavailable, StateUnregistered},
	StateRegisteredAvailable:   {StateRegisteredUnavailable, StateTearingDown},
	StateRegisteredUnavailable: {StateRegisteredAvailable, StateTearingDown},
	StateTearingDown:           {StateUnregistered},
}

// canTransition reports whether moving from -> to is a legal edge.
func canTransition(from, to State) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Available reports whether a state represents a dispatchable tool.
func (s State) Available() bool {
	return s == StateRegisteredAvailable
}
