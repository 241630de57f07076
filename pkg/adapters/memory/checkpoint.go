package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
)

// CheckpointStore implements ports.CheckpointStore in memory.
// Safe for concurrent use.
type CheckpointStore struct {
	data map[string]map[uint64]*domain.Checkpoint
	mu   sync.RWMutex
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		data: make(map[string]map[uint64]*domain.Checkpoint),
	}
}

var _ ports.CheckpointStore = (*CheckpointStore)(nil)

// Save persists a checkpoint. Saving an already-present (conversation, step)
// pair is a no-op, which makes retried saves after crashes harmless.
func (s *CheckpointStore) Save(ctx context.Context, checkpoint *domain.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byStep, ok := s.data[checkpoint.ConversationID]
	if !ok {
		byStep = make(map[uint64]*domain.Checkpoint)
		s.data[checkpoint.ConversationID] = byStep
	}
	if _, exists := byStep[checkpoint.Step]; exists {
		return nil
	}
	byStep[checkpoint.Step] = cloneCheckpoint(checkpoint)
	return nil
}

// Latest returns the highest-step checkpoint.
func (s *CheckpointStore) Latest(ctx context.Context, conversationID string) (*domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byStep := s.data[conversationID]
	if len(byStep) == 0 {
		return nil, domain.ErrNoCheckpoint
	}
	var max uint64
	for step := range byStep {
		if step >= max {
			max = step
		}
	}
	return cloneCheckpoint(byStep[max]), nil
}

// List returns all checkpoints in ascending step order.
func (s *CheckpointStore) List(ctx context.Context, conversationID string) ([]*domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byStep := s.data[conversationID]
	out := make([]*domain.Checkpoint, 0, len(byStep))
	for _, cp := range byStep {
		out = append(out, cloneCheckpoint(cp))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out, nil
}

// Purge removes every checkpoint of the conversation.
func (s *CheckpointStore) Purge(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, conversationID)
	return nil
}

func cloneCheckpoint(cp *domain.Checkpoint) *domain.Checkpoint {
	out := *cp
	if cp.State != nil {
		out.State = cp.State.Clone()
	}
	return &out
}
