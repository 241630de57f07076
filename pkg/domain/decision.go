package domain

import "fmt"

// Executor names. The known set is fixed; a decision naming anything else
// is rejected with a RoutingError.
const (
	ExecutorIngestion = "data_ingestion"
	ExecutorAnalysis  = "analysis"
	ExecutorReport    = "report"
	ExecutorQuery     = "query_translation"
	ExecutorNotify    = "notification"
)

// Reserved actors a decision may name besides the executors.
const (
	// ActorRespond ends the turn with a final answer to the user.
	ActorRespond = "respond"
	// ActorClarify ends the turn by asking the user for more input.
	ActorClarify = "clarify"
	// ActorFail escalates the turn to the failed phase. Policies return it
	// when no recovery path remains.
	ActorFail = "fail"
)

// ExecutorNames lists the known executors in routing-preference order.
var ExecutorNames = []string{
	ExecutorIngestion,
	ExecutorAnalysis,
	ExecutorReport,
	ExecutorQuery,
	ExecutorNotify,
}

// KnownExecutor reports whether name is one of the known executors.
func KnownExecutor(name string) bool {
	for _, n := range ExecutorNames {
		if n == name {
			return true
		}
	}
	return false
}

// RoutingDecision is the outcome of one routing pass: which actor runs next
// and why. A decision is valid only against the exact step counter it was
// computed from; after any commit it must be recomputed, never reused.
type RoutingDecision struct {
	Actor     string `json:"actor"`
	Rationale string `json:"rationale,omitempty"`
	// Step is the counter the decision was computed against.
	Step uint64 `json:"step"`
	// Answer carries the final or clarifying message for terminal actors.
	Answer string `json:"answer,omitempty"`
}

// Validate checks the decision against the current step counter and the
// known actor set.
func (d *RoutingDecision) Validate(currentStep uint64) error {
	if d == nil {
		return &RoutingError{Reason: "policy returned no decision", Step: currentStep}
	}
	if d.Step != currentStep {
		return &RoutingError{
			Reason: fmt.Sprintf("decision computed against step %d, state is at step %d", d.Step, currentStep),
			Step:   currentStep,
			Actor:  d.Actor,
		}
	}
	switch d.Actor {
	case ActorRespond, ActorClarify, ActorFail:
		return nil
	}
	if !KnownExecutor(d.Actor) {
		return &RoutingError{
			Reason: fmt.Sprintf("unknown executor %q", d.Actor),
			Step:   currentStep,
			Actor:  d.Actor,
		}
	}
	return nil
}

// Terminal reports whether the decision ends the turn.
func (d *RoutingDecision) Terminal() bool {
	switch d.Actor {
	case ActorRespond, ActorClarify, ActorFail:
		return true
	}
	return false
}

// RoutingView is the read-only projection policies decide from. It is built
// from a state clone; mutating it has no effect on the conversation.
type RoutingView struct {
	ConversationID string
	TurnID         string
	// Step is the committed counter this view was taken at. Policies must
	// copy it into the decision they return.
	Step uint64
	// UserMessage is the message that started the current turn.
	UserMessage string
	Messages    []Message
	Executors   map[string]ExecutorState
	// TurnRuns counts completed-or-failed runs per executor within the
	// current turn only.
	TurnRuns map[string]int
}

// Ran reports how many times the named executor ran this turn.
func (v *RoutingView) Ran(executor string) int {
	if v.TurnRuns == nil {
		return 0
	}
	return v.TurnRuns[executor]
}

// Completed reports whether the executor's last run this turn succeeded.
func (v *RoutingView) Completed(executor string) bool {
	es, ok := v.Executors[executor]
	return ok && es.Status == ExecCompleted
}

// FailedLast reports whether the executor's most recent run failed.
func (v *RoutingView) FailedLast(executor string) bool {
	es, ok := v.Executors[executor]
	return ok && es.Status == ExecFailed
}

// Scratch returns the executor's scratch payload, nil if it never ran.
func (v *RoutingView) Scratch(executor string) map[string]any {
	es, ok := v.Executors[executor]
	if !ok {
		return nil
	}
	return es.Scratch
}
