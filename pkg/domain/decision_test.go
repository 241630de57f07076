package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestRoutingDecisionValidate(t *testing.T) {
	tests := []struct {
		name     string
		decision *RoutingDecision
		step     uint64
		wantErr  bool
		contains string
	}{
		{
			name:     "executor at matching step",
			decision: &RoutingDecision{Actor: ExecutorAnalysis, Step: 7},
			step:     7,
		},
		{
			name:     "respond at matching step",
			decision: &RoutingDecision{Actor: ActorRespond, Step: 0},
			step:     0,
		},
		{
			name:     "clarify at matching step",
			decision: &RoutingDecision{Actor: ActorClarify, Step: 3},
			step:     3,
		},
		{
			name:     "stale decision rejected",
			decision: &RoutingDecision{Actor: ExecutorReport, Step: 6},
			step:     7,
			wantErr:  true,
			contains: "step 6",
		},
		{
			name:     "unknown executor rejected",
			decision: &RoutingDecision{Actor: "marketing", Step: 2},
			step:     2,
			wantErr:  true,
			contains: `unknown executor "marketing"`,
		},
		{
			name:     "nil decision rejected",
			decision: nil,
			step:     1,
			wantErr:  true,
			contains: "no decision",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.decision.Validate(tt.step)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var re *RoutingError
			if !errors.As(err, &re) {
				t.Fatalf("Validate() = %T, want *RoutingError", err)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Fatalf("error %q does not mention %q", err.Error(), tt.contains)
			}
		})
	}
}

func TestPhaseTransitions(t *testing.T) {
	allowed := []struct{ from, to Phase }{
		{PhaseAwaitingInput, PhaseRouting},
		{PhaseRouting, PhaseExecuting},
		{PhaseRouting, PhaseResponding},
		{PhaseRouting, PhaseClarifying},
		{PhaseRouting, PhaseFailed},
		{PhaseExecuting, PhaseRouting},
		{PhaseExecuting, PhaseFailed},
		{PhaseResponding, PhaseAwaitingInput},
		{PhaseClarifying, PhaseAwaitingInput},
		{PhaseFailed, PhaseAwaitingInput},
	}
	for _, tr := range allowed {
		if !CanTransition(tr.from, tr.to) {
			t.Errorf("CanTransition(%s, %s) = false, want true", tr.from, tr.to)
		}
	}

	forbidden := []struct{ from, to Phase }{
		{PhaseAwaitingInput, PhaseExecuting},
		{PhaseAwaitingInput, PhaseResponding},
		{PhaseExecuting, PhaseExecuting},
		{PhaseResponding, PhaseRouting},
		{PhaseFailed, PhaseExecuting},
	}
	for _, tr := range forbidden {
		if CanTransition(tr.from, tr.to) {
			t.Errorf("CanTransition(%s, %s) = true, want false", tr.from, tr.to)
		}
	}
}

func TestPhaseTerminal(t *testing.T) {
	for _, p := range []Phase{PhaseResponding, PhaseClarifying, PhaseFailed} {
		if !p.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", p)
		}
	}
	for _, p := range []Phase{PhaseAwaitingInput, PhaseRouting, PhaseExecuting} {
		if p.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", p)
		}
	}
}

func TestTitleFromMessage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ingest the sales csv", "Ingest the sales csv"},
		{"   spaced    out   words  ", "Spaced out words"},
		{"", DefaultTitle},
		{strings.Repeat("analysis ", 20), "Analysis analysis analysis analysis analysis…"},
	}
	for _, tt := range tests {
		if got := TitleFromMessage(tt.in); got != tt.want {
			t.Errorf("TitleFromMessage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
