// Package checkpoint records per-step snapshots of conversations and
// reconciles them with live store state on resume.
//
// Checkpoints are an auxiliary record: saving one must never fail a step,
// and when checkpoint and store disagree, the store wins.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
)

// Divergence describes a disagreement between live state and the latest
// checkpoint found during reconciliation.
type Divergence struct {
	ConversationID string
	StoreStep      uint64
	CheckpointStep uint64
	// Restored is true when the live record was rebuilt from the checkpoint
	// because the store had lost the conversation entirely.
	Restored bool
}

func (d *Divergence) String() string {
	if d.Restored {
		return fmt.Sprintf("conversation %s restored from checkpoint at step %d", d.ConversationID, d.CheckpointStep)
	}
	return fmt.Sprintf("conversation %s diverged: store at step %d, checkpoint at step %d",
		d.ConversationID, d.StoreStep, d.CheckpointStep)
}

// Checkpointer wraps a ports.CheckpointStore with the engine's policy:
// record after every commit, swallow (but log) save failures, reconcile on
// resume with the store as the source of truth.
type Checkpointer struct {
	store  ports.CheckpointStore
	logger *slog.Logger
}

// Option configures a Checkpointer.
type Option func(*Checkpointer)

// WithLogger sets the logger for save warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checkpointer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Checkpointer on top of the given store.
func New(store ports.CheckpointStore, opts ...Option) *Checkpointer {
	c := &Checkpointer{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Record snapshots the state after a committed step. Failures are logged
// and swallowed: a missing checkpoint degrades resume, it must not fail the
// step that produced the state.
func (c *Checkpointer) Record(ctx context.Context, state *domain.ConversationState) {
	cp := domain.NewCheckpoint(state)
	if err := c.store.Save(ctx, cp); err != nil {
		c.logger.Warn("checkpoint save failed",
			"conversation_id", state.ID,
			"step", state.Step,
			"err", err)
	}
}

// Latest returns the highest-step checkpoint for a conversation.
func (c *Checkpointer) Latest(ctx context.Context, conversationID string) (*domain.Checkpoint, error) {
	return c.store.Latest(ctx, conversationID)
}

// List returns all checkpoints for a conversation in ascending step order.
func (c *Checkpointer) List(ctx context.Context, conversationID string) ([]*domain.Checkpoint, error) {
	return c.store.List(ctx, conversationID)
}

// Purge removes a conversation's checkpoints, typically after deletion.
func (c *Checkpointer) Purge(ctx context.Context, conversationID string) error {
	return c.store.Purge(ctx, conversationID)
}

// Reconcile loads a conversation for resume, comparing the live store with
// the latest checkpoint.
//
// The store always wins: a checkpoint ahead of the store means lost writes
// and is reported as a Divergence, never silently adopted. Only when the
// store has no record at all is the checkpoint used, to rebuild the live
// state. A lagging checkpoint is caught up in place.
func (c *Checkpointer) Reconcile(ctx context.Context, store ports.ConversationStore, conversationID string) (*domain.ConversationState, *Divergence, error) {
	state, stateErr := store.Get(ctx, conversationID)
	cp, cpErr := c.store.Latest(ctx, conversationID)

	switch {
	case stateErr == nil && cpErr == nil:
		if cp.Step == state.Step {
			return state, nil, nil
		}
		div := &Divergence{
			ConversationID: conversationID,
			StoreStep:      state.Step,
			CheckpointStep: cp.Step,
		}
		if cp.Step < state.Step {
			// checkpoint fell behind (crash between commit and snapshot)
			c.Record(ctx, state)
		}
		return state, div, nil

	case stateErr == nil && errors.Is(cpErr, domain.ErrNoCheckpoint):
		// backfill so the next resume has something to compare against
		c.Record(ctx, state)
		return state, nil, nil

	case stateErr == nil:
		// checkpoint backend unavailable; the store alone is enough
		c.logger.Warn("checkpoint lookup failed during resume",
			"conversation_id", conversationID, "err", cpErr)
		return state, nil, nil

	case errors.Is(stateErr, domain.ErrConversationNotFound) && cpErr == nil:
		restored := cp.State.Clone()
		if err := store.Create(ctx, restored); err != nil {
			return nil, nil, fmt.Errorf("restoring conversation %s from checkpoint: %w", conversationID, err)
		}
		return restored, &Divergence{
			ConversationID: conversationID,
			CheckpointStep: cp.Step,
			StoreStep:      restored.Step,
			Restored:       true,
		}, nil

	case errors.Is(stateErr, domain.ErrConversationNotFound):
		return nil, nil, domain.ErrConversationNotFound

	default:
		return nil, nil, fmt.Errorf("loading conversation %s: %w", conversationID, stateErr)
	}
}
