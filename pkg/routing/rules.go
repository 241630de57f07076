// Package routing provides the default routing policy: a deterministic
// rule set that reads the user's intent, walks the executor pipeline in
// dependency order, owns the retry decision for failed runs, and composes
// the terminal response or clarification.
//
// The policy is pure decision logic. It never mutates state, never calls an
// executor, and must stamp every decision with the step counter of the view
// it decided from.
package routing

import (
	"context"
	"fmt"

	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
)

// DefaultMaxAttempts is how many runs one executor gets per turn before the
// policy gives up on it.
const DefaultMaxAttempts = 2

// Rules is the built-in keyword-driven routing policy.
type Rules struct {
	maxAttempts int
}

// Option configures the rules policy.
type Option func(*Rules)

// WithMaxAttempts sets the per-executor attempt budget per turn.
func WithMaxAttempts(n int) Option {
	return func(r *Rules) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// NewRules creates the default policy.
func NewRules(opts ...Option) *Rules {
	r := &Rules{maxAttempts: DefaultMaxAttempts}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ ports.RoutingPolicy = (*Rules)(nil)

// Decide implements ports.RoutingPolicy.
func (r *Rules) Decide(ctx context.Context, view domain.RoutingView) (*domain.RoutingDecision, error) {
	intent := parseIntent(view.UserMessage)

	if len(intent.stages) == 0 {
		return &domain.RoutingDecision{
			Actor:     domain.ActorClarify,
			Rationale: "no recognizable request in the message",
			Step:      view.Step,
			Answer:    clarifyQuestion(view),
		}, nil
	}

	for _, stage := range intent.stages {
		switch {
		case view.FailedLast(stage) && view.Ran(stage) < r.maxAttempts:
			return &domain.RoutingDecision{
				Actor:     stage,
				Rationale: fmt.Sprintf("%s failed (%s), retrying attempt %d of %d", stage, lastError(view, stage), view.Ran(stage)+1, r.maxAttempts),
				Step:      view.Step,
			}, nil

		case view.FailedLast(stage):
			return &domain.RoutingDecision{
				Actor:     domain.ActorFail,
				Rationale: fmt.Sprintf("%s failed %d times, no recovery path", stage, view.Ran(stage)),
				Step:      view.Step,
				Answer:    fmt.Sprintf("The %s stage kept failing (%s). Please try again later.", stage, lastError(view, stage)),
			}, nil

		case !stageDone(view, stage):
			return &domain.RoutingDecision{
				Actor:     stage,
				Rationale: fmt.Sprintf("%s is the next incomplete stage for this request", stage),
				Step:      view.Step,
			}, nil
		}
	}

	return &domain.RoutingDecision{
		Actor:     domain.ActorRespond,
		Rationale: "all requested stages are complete",
		Step:      view.Step,
		Answer:    composeAnswer(view, intent),
	}, nil
}

// stageDone reports whether a stage already holds a usable result. Results
// persist across turns, so a stage completed for an earlier request is not
// rerun; its run this turn only matters once it failed.
func stageDone(view domain.RoutingView, stage string) bool {
	if !view.Completed(stage) {
		return false
	}
	// per-turn stages must have run within this turn to count
	switch stage {
	case domain.ExecutorQuery, domain.ExecutorNotify:
		return view.Ran(stage) > 0
	}
	return true
}

func lastError(view domain.RoutingView, stage string) string {
	if es, ok := view.Executors[stage]; ok && es.LastError != "" {
		return es.LastError
	}
	return "unknown error"
}
