// Package dto carries the wire shapes shared by the HTTP, WebSocket and MCP
// transports. The "mapstructure" tags let MCP tool arguments decode through
// the same structs the JSON API unmarshals.
package dto

import (
	"time"

	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
	"github.com/droverlabs/drover/pkg/supervisor"
)

// ExecuteRequest is one inbound user message. An empty ConversationID starts
// a new conversation.
type ExecuteRequest struct {
	ConversationID string `json:"conversation_id,omitempty" mapstructure:"conversation_id"`
	Message        string `json:"message" mapstructure:"message"`
	UserID         string `json:"user_id,omitempty" mapstructure:"user_id"`
}

// ExecuteResponse reports how the turn ended. Success is false when the turn
// reached the failed phase; Error then carries the failure detail.
type ExecuteResponse struct {
	Success        bool   `json:"success"`
	ConversationID string `json:"conversation_id"`
	Response       string `json:"response,omitempty"`
	MessageCount   int    `json:"message_count"`
	Error          string `json:"error,omitempty"`
}

// FromTurnResult folds a turn outcome into the execute response.
func FromTurnResult(result *supervisor.TurnResult) ExecuteResponse {
	out := ExecuteResponse{
		Success:        result.Err == nil,
		ConversationID: result.ConversationID,
		Response:       result.Response,
		MessageCount:   result.MessageCount,
	}
	if result.Err != nil {
		out.Error = result.Err.Error()
	}
	return out
}

// ConversationList is the paginated listing envelope. Total counts the
// matches before limit and offset were applied.
type ConversationList struct {
	Conversations []ports.ConversationSummary `json:"conversations"`
	Total         int                         `json:"total"`
}

// CheckpointInfo describes one checkpointed step without its full state.
type CheckpointInfo struct {
	Step         uint64       `json:"step"`
	Phase        domain.Phase `json:"phase"`
	MessageCount int          `json:"message_count"`
	TakenAt      time.Time    `json:"taken_at"`
}

// CheckpointList is the response of the checkpoint listing endpoint.
type CheckpointList struct {
	ConversationID string           `json:"conversation_id"`
	Checkpoints    []CheckpointInfo `json:"checkpoints"`
}

// FromCheckpoint projects a checkpoint into its listing form.
func FromCheckpoint(cp *domain.Checkpoint) CheckpointInfo {
	info := CheckpointInfo{
		Step:    cp.Step,
		TakenAt: cp.TakenAt,
	}
	if cp.State != nil {
		info.Phase = cp.State.Phase
		info.MessageCount = cp.State.MessageCount()
	}
	return info
}

// Inbound message types on the WebSocket channel.
const (
	ClientPing      = "ping"
	ClientSubscribe = "subscribe"
)

// TypeSubscribed acknowledges a subscribe request. Every other outbound type
// mirrors a domain.EventKind value.
const TypeSubscribed = "subscribed"

// EventMessage is the envelope pushed over the event channels. Domain events
// map one to one; transport acknowledgements (connected, subscribed, pong)
// reuse the shape without a sequence number.
type EventMessage struct {
	Seq            uint64         `json:"seq,omitempty"`
	Type           string         `json:"type"`
	ConversationID string         `json:"conversation_id,omitempty"`
	AgentName      string         `json:"agent_name,omitempty"`
	Message        string         `json:"message,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// FromEvent converts a domain event into its wire envelope.
func FromEvent(ev domain.ExecutionEvent) EventMessage {
	return EventMessage{
		Seq:            ev.Seq,
		Type:           string(ev.Type),
		ConversationID: ev.ConversationID,
		AgentName:      ev.AgentName,
		Message:        ev.Message,
		Data:           ev.Data,
		Timestamp:      ev.Timestamp,
	}
}

// ClientMessage is an inbound WebSocket frame.
type ClientMessage struct {
	Type           string `json:"type" mapstructure:"type"`
	ConversationID string `json:"conversation_id,omitempty" mapstructure:"conversation_id"`
}
