package domain

import (
	"context"
	"time"
)

// EventKind is the category of an execution event. The values double as the
// message types pushed over subscriber channels.
type EventKind string

const (
	EventConnected      EventKind = "connected"
	EventAgentStarted   EventKind = "agent_started"
	EventAgentProgress  EventKind = "agent_progress"
	EventAgentCompleted EventKind = "agent_completed"
	EventError          EventKind = "error"
	EventPong           EventKind = "pong"
)

// ExecutionEvent is an emitted fact about one supervisor or executor
// transition. Seq is assigned at emit time, strictly increasing and gap-free
// per conversation; transport-level events (connected, pong) carry no Seq.
type ExecutionEvent struct {
	Seq            uint64         `json:"seq,omitempty"`
	Type           EventKind      `json:"type"`
	ConversationID string         `json:"conversation_id,omitempty"`
	AgentName      string         `json:"agent_name,omitempty"`
	Message        string         `json:"message,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// LifecycleHooks are optional callbacks observing the step loop. They run
// synchronously inside the loop; keep them fast and never let them block.
type LifecycleHooks struct {
	// OnTurnStart fires after the user message is committed.
	OnTurnStart func(ctx context.Context, state *ConversationState)
	// OnDecision fires after every validated routing decision.
	OnDecision func(ctx context.Context, conversationID string, decision RoutingDecision)
	// OnExecutorStart fires before an executor runs.
	OnExecutorStart func(ctx context.Context, conversationID, executor string, step uint64)
	// OnExecutorEnd fires after the executor's outcome is committed. err is
	// nil on success and an *ExecutorFailure on failure.
	OnExecutorEnd func(ctx context.Context, conversationID, executor string, step uint64, err error)
	// OnStepCommit fires after every successful commit.
	OnStepCommit func(ctx context.Context, state *ConversationState)
	// OnTurnEnd fires once per turn with the terminal phase.
	OnTurnEnd func(ctx context.Context, state *ConversationState, outcome Phase)
}
