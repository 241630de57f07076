package domain

import (
	"strings"
	"time"
	"unicode"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry in the conversation transcript. The transcript is
// append-only: committed messages are never edited or removed.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	// Executor tags messages produced by an executor run, empty otherwise.
	Executor string `json:"executor,omitempty"`
}

// ExecStatus is the last-known status of an executor within a conversation.
type ExecStatus string

const (
	ExecPending   ExecStatus = "pending"
	ExecRunning   ExecStatus = "running"
	ExecCompleted ExecStatus = "completed"
	ExecFailed    ExecStatus = "failed"
)

// ExecutorState is the per-executor slice of conversation state: last-known
// status, failure bookkeeping, timing of the most recent run, and the scratch
// payload. Scratch persists for the lifetime of the conversation so later
// turns can build on earlier results.
type ExecutorState struct {
	Status      ExecStatus     `json:"status"`
	Scratch     map[string]any `json:"scratch,omitempty"`
	Runs        int            `json:"runs,omitempty"`
	Failures    int            `json:"failures,omitempty"`
	LastError   string         `json:"last_error,omitempty"`
	StartedAt   time.Time      `json:"started_at,omitempty"`
	CompletedAt time.Time      `json:"completed_at,omitempty"`
	DurationMS  int64          `json:"duration_ms,omitempty"`
}

// RoutingRecord is one entry of the append-only routing history.
type RoutingRecord struct {
	TurnID    string    `json:"turn_id"`
	Step      uint64    `json:"step"`
	Actor     string    `json:"actor"`
	Rationale string    `json:"rationale,omitempty"`
	At        time.Time `json:"at"`
}

// DefaultTitle names conversations until the first user message does.
const DefaultTitle = "New Conversation"

// ConversationState is the durable, versioned record of one conversation.
//
// ID is immutable once created. Step increases by exactly one per committed
// step and never moves backwards. Messages and Routing are append-only.
type ConversationState struct {
	ID        string                   `json:"id"`
	UserID    string                   `json:"user_id,omitempty"`
	Title     string                   `json:"title"`
	Phase     Phase                    `json:"phase"`
	Step      uint64                   `json:"step"`
	TurnID    string                   `json:"turn_id,omitempty"`
	Messages  []Message                `json:"messages"`
	Executors map[string]ExecutorState `json:"executors"`
	Routing   []RoutingRecord          `json:"routing,omitempty"`
	Metadata  map[string]any           `json:"metadata,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
	UpdatedAt time.Time                `json:"updated_at"`
}

// NewConversation creates an empty conversation at step zero, awaiting input.
func NewConversation(id, userID string) *ConversationState {
	now := time.Now().UTC()
	return &ConversationState{
		ID:        id,
		UserID:    userID,
		Title:     DefaultTitle,
		Phase:     PhaseAwaitingInput,
		Executors: make(map[string]ExecutorState),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// mutate persisted state through a shared pointer.
func (c *ConversationState) Clone() *ConversationState {
	out := *c
	if c.Messages != nil {
		out.Messages = append([]Message(nil), c.Messages...)
	}
	if c.Routing != nil {
		out.Routing = append([]RoutingRecord(nil), c.Routing...)
	}
	out.Executors = make(map[string]ExecutorState, len(c.Executors))
	for name, es := range c.Executors {
		es.Scratch = cloneAnyMap(es.Scratch)
		out.Executors[name] = es
	}
	out.Metadata = cloneAnyMap(c.Metadata)
	return &out
}

// MessageCount reports the transcript length.
func (c *ConversationState) MessageCount() int { return len(c.Messages) }

// LastUserMessage returns the text of the most recent user message, or "".
func (c *ConversationState) LastUserMessage() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i].Text
		}
	}
	return ""
}

// LastAssistantMessage returns the text of the most recent assistant
// message, or "".
func (c *ConversationState) LastAssistantMessage() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleAssistant {
			return c.Messages[i].Text
		}
	}
	return ""
}

// TitleFromMessage derives a conversation title from the first user message:
// the first few words, capitalized, truncated to keep listings readable.
func TitleFromMessage(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return DefaultTitle
	}
	const maxTitle = 48
	if len(text) > maxTitle {
		cut := strings.LastIndex(text[:maxTitle], " ")
		if cut < maxTitle/2 {
			cut = maxTitle
		}
		text = text[:cut] + "…"
	}
	runes := []rune(text)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneAnyValue(v)
	}
	return out
}

func cloneAnyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneAnyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneAnyValue(item)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, item := range val {
			out[i] = cloneAnyMap(item)
		}
		return out
	default:
		return v
	}
}
