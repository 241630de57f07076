// Package file provides filesystem-backed implementations of the persistence
// ports. Conversations and checkpoints are stored as indented JSON, one file
// per record, so state survives restarts and stays inspectable with a text
// editor.
//
// Writes are atomic (temp file, fsync, rename) but the compare-and-swap on
// commit is only guarded within this process. Run multiple replicas against
// the redis store, not this one.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
	"github.com/spf13/afero"
)

// DefaultRoot is where state lands when no root is configured.
const DefaultRoot = ".drover"

// Store implements ports.ConversationStore on a filesystem.
type Store struct {
	fs   afero.Fs
	root string
	mu   sync.Mutex
}

var _ ports.ConversationStore = (*Store)(nil)

// Option configures the file adapters.
type Option func(*options)

type options struct {
	fs afero.Fs
}

// WithFs substitutes the backing filesystem. Defaults to the OS filesystem;
// tests pass afero.NewMemMapFs().
func WithFs(fs afero.Fs) Option {
	return func(o *options) {
		o.fs = fs
	}
}

func newOptions(opts []Option) options {
	o := options{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewStore creates a Store rooted at root. An empty root defaults to
// ".drover".
func NewStore(root string, opts ...Option) *Store {
	if root == "" {
		root = DefaultRoot
	}
	o := newOptions(opts)
	return &Store{fs: o.fs, root: root}
}

func (s *Store) dir() string {
	return filepath.Join(s.root, "conversations")
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir(), id+".json")
}

// Create persists a new conversation.
func (s *Store) Create(ctx context.Context, state *domain.ConversationState) error {
	if state.ID == "" {
		return fmt.Errorf("conversation id cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if exists, err := afero.Exists(s.fs, s.path(state.ID)); err != nil {
		return fmt.Errorf("failed to check conversation %s: %w", state.ID, err)
	} else if exists {
		return domain.ErrConversationExists
	}
	return s.write(state)
}

// Get retrieves a conversation.
func (s *Store) Get(ctx context.Context, id string) (*domain.ConversationState, error) {
	data, err := afero.ReadFile(s.fs, s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to read conversation %s: %w", id, err)
	}

	var state domain.ConversationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation %s: %w", id, err)
	}
	return &state, nil
}

// Commit applies one step delta under compare-and-swap on the step counter.
// The read-check-write sequence runs under the store mutex.
func (s *Store) Commit(ctx context.Context, id string, expectedStep uint64, delta domain.Delta) (*domain.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Step != expectedStep {
		return nil, &domain.StaleWriteError{
			ConversationID: id,
			ExpectedStep:   expectedStep,
			ActualStep:     current.Step,
		}
	}

	next := delta.Apply(current)
	if err := s.write(next); err != nil {
		return nil, err
	}
	return next, nil
}

// List returns conversation summaries, most recently updated first.
func (s *Store) List(ctx context.Context) ([]ports.ConversationSummary, error) {
	entries, err := afero.ReadDir(s.fs, s.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return []ports.ConversationSummary{}, nil
		}
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	summaries := make([]ports.ConversationSummary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		state, err := s.Get(ctx, id)
		if err != nil {
			// A file deleted or half-renamed mid-scan is not listable.
			continue
		}
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

	err := s.fs.Remove(s.path(id))
	if os.IsNotExist(err) {
		return domain.ErrConversationNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	return nil
}

func (s *Store) write(state *domain.ConversationState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversation %s: %w", state.ID, err)
	}
	if err := writeFileAtomic(s.fs, s.path(state.ID), data); err != nil {
		return fmt.Errorf("failed to write conversation %s: %w", state.ID, err)
	}
	return nil
}

// writeFileAtomic writes data via a temp file in the destination directory,
// fsyncs, and renames it into place, so readers see either the old file or
// the new one, never a partial write.
func writeFileAtomic(fs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmpFile, err := afero.TempFile(fs, dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer fs.Remove(tmpPath)

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	// Close before rename; Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := fs.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}
	return nil
}
