package ports

import (
	"context"

	"github.com/droverlabs/drover/pkg/domain"
)

// CheckpointStore defines the interface for conversation checkpoints.
//
// Save must be idempotent per (conversation id, step): writing the same
// checkpoint twice is a no-op, not an error. Checkpoints are auxiliary; on
// divergence the conversation store wins.
type CheckpointStore interface {
	// Save persists a checkpoint.
	Save(ctx context.Context, checkpoint *domain.Checkpoint) error

	// Latest returns the highest-step checkpoint for the conversation.
	// Returns domain.ErrNoCheckpoint if none exists.
	Latest(ctx context.Context, conversationID string) (*domain.Checkpoint, error)

	// List returns all checkpoints for the conversation in ascending step
	// order.
	List(ctx context.Context, conversationID string) ([]*domain.Checkpoint, error)

	// Purge removes every checkpoint of the conversation.
	Purge(ctx context.Context, conversationID string) error
}
