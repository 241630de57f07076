// Package memory provides in-memory implementations of the persistence
// ports. It is the default backend for tests, examples, and single-process
// deployments.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
)

// Store implements ports.ConversationStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.ConversationState
	mu   sync.RWMutex
}

// NewStore creates a new in-memory conversation store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.ConversationState),
	}
}

var _ ports.ConversationStore = (*Store)(nil)

// Create persists a new conversation.
func (s *Store) Create(ctx context.Context, state *domain.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[state.ID]; ok {
		return domain.ErrConversationExists
	}
	// Clone on write so the caller can't mutate stored state by pointer
	s.data[state.ID] = state.Clone()
	return nil
}

// Get retrieves a conversation.
func (s *Store) Get(ctx context.Context, id string) (*domain.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.data[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return state.Clone(), nil
}

// Commit applies one step delta under compare-and-swap on the step counter.
// The whole check-apply-swap runs under the write lock, so a losing racer
// observes either the state before or after a competing commit, never a
// partial application.
func (s *Store) Commit(ctx context.Context, id string, expectedStep uint64, delta domain.Delta) (*domain.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.data[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	if current.Step != expectedStep {
		return nil, &domain.StaleWriteError{
			ConversationID: id,
			ExpectedStep:   expectedStep,
			ActualStep:     current.Step,
		}
	}

	next := delta.Apply(current)
	s.data[id] = next
	return next.Clone(), nil
}

// List returns conversation summaries, most recently updated first.
func (s *Store) List(ctx context.Context) ([]ports.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]ports.ConversationSummary, 0, len(s.data))
	for _, state := range s.data {
		summaries = append(summaries, ports.Summarize(state))
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].UpdatedAt.Equal(summaries[j].UpdatedAt) {
			return summaries[i].ID < summaries[j].ID
		}
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// Delete removes a conversation.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[id]; !ok {
		return domain.ErrConversationNotFound
	}
	delete(s.data, id)
	return nil
}
