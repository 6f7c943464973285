package engine

// State is the dispute lifecycle state of a stored record.
type State string

const (
	StateNormal      State = "normal"
	StateInDispute   State = "in_dispute"
	StateChargedBack State = "charged_back"
)

var transitions = map[State]map[Kind]State{
	StateNormal:      {KindDispute: StateInDispute},
	StateInDispute:   {KindResolve: StateNormal, KindChargeback: StateChargedBack},
	StateChargedBack: {}, // terminal
}

// AllowedTransitions returns the dispute lifecycle as a map from state to the
// event kinds it accepts and the state each one leads to.
func AllowedTransitions() map[State]map[Kind]State {
	out := make(map[State]map[Kind]State, len(transitions))
	for from, edges := range transitions {
		copied := make(map[Kind]State, len(edges))
		for kind, to := range edges {
			copied[kind] = to
		}
		out[from] = copied
	}
	return out
}

// next returns the state a record in from moves to when an event of kind is
// applied, or the rejection reason when the lifecycle does not allow it.
func next(from State, kind Kind) (State, error) {
	if to, ok := transitions[from][kind]; ok {
		return to, nil
	}
	switch {
	case from == StateChargedBack:
		return from, ErrChargedBack
	case from == StateInDispute:
		return from, ErrAlreadyDisputed
	default:
		return from, ErrNotDisputed
	}
}
