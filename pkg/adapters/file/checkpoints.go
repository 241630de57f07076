package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
	"github.com/spf13/afero"
)

// CheckpointStore implements ports.CheckpointStore on a filesystem. Each
// conversation gets its own directory with one zero-padded file per step, so
// a directory listing reads in commit order.
type CheckpointStore struct {
	fs   afero.Fs
	root string
	mu   sync.Mutex
}

var _ ports.CheckpointStore = (*CheckpointStore)(nil)

// NewCheckpointStore creates a CheckpointStore rooted at root. An empty root
// defaults to ".drover".
func NewCheckpointStore(root string, opts ...Option) *CheckpointStore {
	if root == "" {
		root = DefaultRoot
	}
	o := newOptions(opts)
	return &CheckpointStore{fs: o.fs, root: root}
}

func (s *CheckpointStore) dir(conversationID string) string {
	return filepath.Join(s.root, "checkpoints", conversationID)
}

func (s *CheckpointStore) path(conversationID string, step uint64) string {
	return filepath.Join(s.dir(conversationID), fmt.Sprintf("%06d.json", step))
}

// Save persists a checkpoint. Saving an already-present (conversation, step)
// pair is a no-op, so the original snapshot is never overwritten.
func (s *CheckpointStore) Save(ctx context.Context, checkpoint *domain.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(checkpoint.ConversationID, checkpoint.Step)
	if exists, err := afero.Exists(s.fs, path); err != nil {
		return fmt.Errorf("failed to check checkpoint %s/%d: %w", checkpoint.ConversationID, checkpoint.Step, err)
	} else if exists {
		return nil
	}

	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint %s/%d: %w", checkpoint.ConversationID, checkpoint.Step, err)
	}
	if err := writeFileAtomic(s.fs, path, data); err != nil {
		return fmt.Errorf("failed to write checkpoint %s/%d: %w", checkpoint.ConversationID, checkpoint.Step, err)
	}
	return nil
}

// Latest returns the highest-step checkpoint.
func (s *CheckpointStore) Latest(ctx context.Context, conversationID string) (*domain.Checkpoint, error) {
	steps, err := s.steps(conversationID)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, domain.ErrNoCheckpoint
	}
	return s.load(conversationID, steps[len(steps)-1])
}

// List returns all checkpoints in ascending step order.
func (s *CheckpointStore) List(ctx context.Context, conversationID string) ([]*domain.Checkpoint, error) {
	steps, err := s.steps(conversationID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Checkpoint, 0, len(steps))
	for _, step := range steps {
		cp, err := s.load(conversationID, step)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// Purge removes every checkpoint of the conversation.
func (s *CheckpointStore) Purge(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.RemoveAll(s.dir(conversationID)); err != nil {
		return fmt.Errorf("failed to purge checkpoints for %s: %w", conversationID, err)
	}
	return nil
}

// steps returns the checkpoint steps on disk in ascending order.
func (s *CheckpointStore) steps(conversationID string) ([]uint64, error) {
	entries, err := afero.ReadDir(s.fs, s.dir(conversationID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list checkpoints for %s: %w", conversationID, err)
	}

	steps := make([]uint64, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSuffix(entry.Name(), ".json"), 10, 64)
		if err != nil {
			continue
		}
		steps = append(steps, n)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i] < steps[j] })
	return steps, nil
}

func (s *CheckpointStore) load(conversationID string, step uint64) (*domain.Checkpoint, error) {
	data, err := afero.ReadFile(s.fs, s.path(conversationID, step))
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint %s/%d: %w", conversationID, step, err)
	}
	var cp domain.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint %s/%d: %w", conversationID, step, err)
	}
	return &cp, nil
}
