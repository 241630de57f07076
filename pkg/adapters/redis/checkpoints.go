package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// CheckpointStore implements ports.CheckpointStore on Redis. Each checkpoint
// lives under its own (conversation, step) key, with a per-conversation
// sorted set scored by step for ordered reads.
type CheckpointStore struct {
	client *backend.Client
	settings
}

var _ ports.CheckpointStore = (*CheckpointStore)(nil)

// NewCheckpointStore creates a CheckpointStore on an existing client. The
// caller keeps ownership of the client.
func NewCheckpointStore(client *backend.Client, opts ...Option) *CheckpointStore {
	return &CheckpointStore{client: client, settings: newSettings(opts)}
}

func (s *CheckpointStore) key(conversationID string, step uint64) string {
	return s.prefix + "cp:" + conversationID + ":" + strconv.FormatUint(step, 10)
}

func (s *CheckpointStore) indexKey(conversationID string) string {
	return s.prefix + "cp:" + conversationID + ":index"
}

// saveScript writes a checkpoint only if its (conversation, step) key is
// absent, so a retried save after a crash never overwrites the original.
var saveScript = backend.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	if tonumber(ARGV[3]) > 0 then
		redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
	else
		redis.call("SET", KEYS[1], ARGV[1])
	end
	redis.call("ZADD", KEYS[2], ARGV[2], ARGV[2])
end
if tonumber(ARGV[3]) > 0 then
	redis.call("PEXPIRE", KEYS[2], ARGV[3])
end
return 1
`)

// Save persists a checkpoint. Saving an already-present (conversation, step)
// pair is a no-op.
func (s *CheckpointStore) Save(ctx context.Context, checkpoint *domain.Checkpoint) error {
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint %s/%d: %w", checkpoint.ConversationID, checkpoint.Step, err)
	}

	err = saveScript.Run(ctx, s.client,
		[]string{s.key(checkpoint.ConversationID, checkpoint.Step), s.indexKey(checkpoint.ConversationID)},
		data, checkpoint.Step, s.ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s/%d: %w", checkpoint.ConversationID, checkpoint.Step, err)
	}
	return nil
}

// Latest returns the highest-step checkpoint.
func (s *CheckpointStore) Latest(ctx context.Context, conversationID string) (*domain.Checkpoint, error) {
	steps, err := s.client.ZRevRange(ctx, s.indexKey(conversationID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint index for %s: %w", conversationID, err)
	}
	if len(steps) == 0 {
		return nil, domain.ErrNoCheckpoint
	}
	cp, err := s.load(ctx, conversationID, steps[0])
	if err == backend.Nil {
		// The checkpoint expired after its index entry was read.
		return nil, domain.ErrNoCheckpoint
	}
	return cp, err
}

// List returns all checkpoints in ascending step order.
func (s *CheckpointStore) List(ctx context.Context, conversationID string) ([]*domain.Checkpoint, error) {
	steps, err := s.client.ZRange(ctx, s.indexKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint index for %s: %w", conversationID, err)
	}

	out := make([]*domain.Checkpoint, 0, len(steps))
	for _, step := range steps {
		cp, err := s.load(ctx, conversationID, step)
		if err == backend.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// Purge removes every checkpoint of the conversation.
func (s *CheckpointStore) Purge(ctx context.Context, conversationID string) error {
	steps, err := s.client.ZRange(ctx, s.indexKey(conversationID), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read checkpoint index for %s: %w", conversationID, err)
	}

	pipe := s.client.TxPipeline()
	for _, step := range steps {
		n, err := strconv.ParseUint(step, 10, 64)
		if err != nil {
			continue
		}
		pipe.Del(ctx, s.key(conversationID, n))
	}
	pipe.Del(ctx, s.indexKey(conversationID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to purge checkpoints for %s: %w", conversationID, err)
	}
	return nil
}

// load fetches one checkpoint by its index member. Returns backend.Nil when
// the key has expired.
func (s *CheckpointStore) load(ctx context.Context, conversationID, step string) (*domain.Checkpoint, error) {
	n, err := strconv.ParseUint(step, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt checkpoint index entry %q for %s", step, conversationID)
	}
	raw, err := s.client.Get(ctx, s.key(conversationID, n)).Bytes()
	if err == backend.Nil {
		return nil, backend.Nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint %s/%d: %w", conversationID, n, err)
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint %s/%d: %w", conversationID, n, err)
	}
	return &cp, nil
}
