package domain

import "time"

// Checkpoint is an immutable snapshot of a conversation at a committed step.
// Checkpoints exist so a restarted process can resume mid-conversation; the
// live store remains the source of truth when the two diverge.
type Checkpoint struct {
	ConversationID string             `json:"conversation_id"`
	Step           uint64             `json:"step"`
	State          *ConversationState `json:"state"`
	TakenAt        time.Time          `json:"taken_at"`
}

// NewCheckpoint snapshots the given state. The state is cloned so later
// commits cannot reach into the checkpoint.
func NewCheckpoint(state *ConversationState) *Checkpoint {
	return &Checkpoint{
		ConversationID: state.ID,
		Step:           state.Step,
		State:          state.Clone(),
		TakenAt:        time.Now().UTC(),
	}
}
