package domain

import (
	"testing"
	"time"
)

func TestDeltaApply(t *testing.T) {
	base := NewConversation("conv-1", "user-1")
	base.Step = 4
	base.TurnID = "turn-a"
	base.Phase = PhaseRouting
	base.Messages = []Message{{Role: RoleUser, Text: "ingest the q3 csv"}}

	tests := []struct {
		name  string
		delta Delta
		check func(t *testing.T, next *ConversationState)
	}{
		{
			name:  "step increments by exactly one",
			delta: Delta{Phase: PhaseResponding},
			check: func(t *testing.T, next *ConversationState) {
				if next.Step != 5 {
					t.Fatalf("Step = %d, want 5", next.Step)
				}
				if next.Phase != PhaseResponding {
					t.Fatalf("Phase = %q, want %q", next.Phase, PhaseResponding)
				}
			},
		},
		{
			name: "messages append in order",
			delta: Delta{Messages: []Message{
				{Role: RoleAssistant, Text: "first", Executor: ExecutorIngestion},
				{Role: RoleAssistant, Text: "second", Executor: ExecutorIngestion},
			}},
			check: func(t *testing.T, next *ConversationState) {
				if len(next.Messages) != 3 {
					t.Fatalf("len(Messages) = %d, want 3", len(next.Messages))
				}
				if next.Messages[1].Text != "first" || next.Messages[2].Text != "second" {
					t.Fatalf("messages out of order: %+v", next.Messages)
				}
				if next.Messages[1].Timestamp.IsZero() {
					t.Fatal("appended message missing timestamp")
				}
			},
		},
		{
			name: "executor update with scratch",
			delta: Delta{
				Executor:   ExecutorAnalysis,
				Status:     ExecCompleted,
				Scratch:    map[string]any{"mean": 42.5},
				DurationMS: 120,
			},
			check: func(t *testing.T, next *ConversationState) {
				es := next.Executors[ExecutorAnalysis]
				if es.Status != ExecCompleted {
					t.Fatalf("Status = %q, want %q", es.Status, ExecCompleted)
				}
				if es.Scratch["mean"] != 42.5 {
					t.Fatalf("Scratch = %v", es.Scratch)
				}
				if es.DurationMS != 120 {
					t.Fatalf("DurationMS = %d", es.DurationMS)
				}
			},
		},
		{
			name: "failure increments failure count and records detail",
			delta: Delta{
				Executor: ExecutorAnalysis,
				Status:   ExecFailed,
				Failure:  "deadline exceeded",
			},
			check: func(t *testing.T, next *ConversationState) {
				es := next.Executors[ExecutorAnalysis]
				if es.Failures != 1 {
					t.Fatalf("Failures = %d, want 1", es.Failures)
				}
				if es.LastError != "deadline exceeded" {
					t.Fatalf("LastError = %q", es.LastError)
				}
			},
		},
		{
			name: "routing record stamped with pre-commit step",
			delta: Delta{
				Routing: &RoutingRecord{Actor: ExecutorReport, Rationale: "analysis complete"},
			},
			check: func(t *testing.T, next *ConversationState) {
				if len(next.Routing) != 1 {
					t.Fatalf("len(Routing) = %d, want 1", len(next.Routing))
				}
				rec := next.Routing[0]
				if rec.Step != 4 {
					t.Fatalf("Routing.Step = %d, want the step the decision saw (4)", rec.Step)
				}
				if rec.TurnID != "turn-a" {
					t.Fatalf("Routing.TurnID = %q, want turn-a", rec.TurnID)
				}
			},
		},
		{
			name:  "title set once",
			delta: Delta{Title: "Ingest the q3 csv"},
			check: func(t *testing.T, next *ConversationState) {
				if next.Title != "Ingest the q3 csv" {
					t.Fatalf("Title = %q", next.Title)
				}
			},
		},
		{
			name:  "metadata merges key by key",
			delta: Delta{Metadata: map[string]any{"channel": "api", "client": "cli"}},
			check: func(t *testing.T, next *ConversationState) {
				if next.Metadata["channel"] != "api" || next.Metadata["client"] != "cli" {
					t.Fatalf("Metadata = %v", next.Metadata)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := tt.delta.Apply(base)
			tt.check(t, next)
			// the input state must never change
			if base.Step != 4 || len(base.Messages) != 1 || len(base.Routing) != 0 {
				t.Fatal("Apply mutated its input state")
			}
		})
	}
}

func TestDeltaApplyMetadataKeepsUnnamedKeys(t *testing.T) {
	base := NewConversation("conv-1", "")
	base.Metadata = map[string]any{"channel": "ws", "region": "eu"}

	next := Delta{Metadata: map[string]any{"channel": "api"}}.Apply(base)

	if next.Metadata["channel"] != "api" {
		t.Fatalf("channel = %v, want overwritten", next.Metadata["channel"])
	}
	if next.Metadata["region"] != "eu" {
		t.Fatalf("region = %v, want untouched", next.Metadata["region"])
	}
}

func TestDeltaApplySuccessClearsFailures(t *testing.T) {
	base := NewConversation("conv-1", "")
	base.Executors[ExecutorAnalysis] = ExecutorState{Status: ExecFailed, Failures: 2, LastError: "boom"}

	next := Delta{Executor: ExecutorAnalysis, Status: ExecCompleted}.Apply(base)

	es := next.Executors[ExecutorAnalysis]
	if es.Failures != 0 {
		t.Fatalf("Failures = %d, want 0 after success", es.Failures)
	}
	if es.LastError != "" {
		t.Fatalf("LastError = %q, want cleared", es.LastError)
	}
}

func TestCloneIsolation(t *testing.T) {
	orig := NewConversation("conv-1", "user-1")
	orig.Messages = []Message{{Role: RoleUser, Text: "hello", Timestamp: time.Now()}}
	orig.Executors[ExecutorIngestion] = ExecutorState{
		Status:  ExecCompleted,
		Scratch: map[string]any{"rows": 10, "nested": map[string]any{"k": "v"}},
	}
	orig.Metadata = map[string]any{"source": "api"}

	clone := orig.Clone()
	clone.Messages[0].Text = "mutated"
	clone.Messages = append(clone.Messages, Message{Role: RoleAssistant, Text: "x"})
	es := clone.Executors[ExecutorIngestion]
	es.Scratch["rows"] = 99
	es.Scratch["nested"].(map[string]any)["k"] = "mutated"
	clone.Metadata["source"] = "mutated"

	if orig.Messages[0].Text != "hello" {
		t.Error("clone shares message backing array")
	}
	if len(orig.Messages) != 1 {
		t.Error("clone append leaked into original")
	}
	if orig.Executors[ExecutorIngestion].Scratch["rows"] != 10 {
		t.Error("clone shares scratch map")
	}
	if orig.Executors[ExecutorIngestion].Scratch["nested"].(map[string]any)["k"] != "v" {
		t.Error("clone shares nested scratch map")
	}
	if orig.Metadata["source"] != "api" {
		t.Error("clone shares metadata map")
	}
}
