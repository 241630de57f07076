package domain

// Phase is the position of a conversation in the supervisor's state machine.
//
// Committed states only ever carry awaiting_input, routing, responding,
// clarifying, or failed. PhaseExecuting is transient: it exists between a
// routing commit and the following execution commit and is reported through
// events and hooks, never persisted.
type Phase string

const (
	PhaseAwaitingInput Phase = "awaiting_input"
	PhaseRouting       Phase = "routing"
	PhaseExecuting     Phase = "executing"
	PhaseResponding    Phase = "responding"
	PhaseClarifying    Phase = "clarifying"
	PhaseFailed        Phase = "failed"
)

var phaseTransitions = map[Phase][]Phase{
	PhaseAwaitingInput: {PhaseRouting},
	PhaseRouting:       {PhaseExecuting, PhaseResponding, PhaseClarifying, PhaseFailed},
	PhaseExecuting:     {PhaseRouting, PhaseFailed},
	PhaseResponding:    {PhaseAwaitingInput},
	PhaseClarifying:    {PhaseAwaitingInput},
	PhaseFailed:        {PhaseAwaitingInput},
}

// CanTransition reports whether moving from one phase to another is legal.
func CanTransition(from, to Phase) bool {
	for _, next := range phaseTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the phase ends a turn.
func (p Phase) Terminal() bool {
	return p == PhaseResponding || p == PhaseClarifying || p == PhaseFailed
}

// AcceptsInput reports whether a new user message may start a turn from
// this phase. Terminal phases pass through awaiting_input implicitly when
// the next message arrives.
func (p Phase) AcceptsInput() bool {
	return p == PhaseAwaitingInput || p.Terminal()
}

// Valid reports whether p is a known phase value.
func (p Phase) Valid() bool {
	switch p {
	case PhaseAwaitingInput, PhaseRouting, PhaseExecuting, PhaseResponding, PhaseClarifying, PhaseFailed:
		return true
	}
	return false
}
