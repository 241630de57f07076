// Package redis provides Redis-backed implementations of the persistence
// ports: the conversation store, the checkpoint store, and a distributed
// locker. All three can share one client and one key prefix, so a single
// Redis database carries everything a multi-replica deployment needs.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

const defaultPrefix = "drover:"

type settings struct {
	prefix string
	ttl    time.Duration
}

// Option configures the Redis adapters.
type Option func(*settings)

// WithPrefix sets the key prefix. Defaults to "drover:".
func WithPrefix(prefix string) Option {
	return func(s *settings) {
		s.prefix = prefix
	}
}

// WithTTL sets an expiry on stored conversations and checkpoints. The TTL is
// refreshed on every write, so it acts as an idle timeout. Zero (the default)
// keeps data forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *settings) {
		s.ttl = ttl
	}
}

func newSettings(opts []Option) settings {
	s := settings{prefix: defaultPrefix}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Store implements ports.ConversationStore on Redis. States are stored as
// JSON under one key per conversation, with a sorted-set index keyed by
// last-update time for listing.
type Store struct {
	client *backend.Client
	settings
}

var _ ports.ConversationStore = (*Store)(nil)

// New creates a Store with its own client. The connection is established
// lazily on first use.
func New(address, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a Store on an existing client. The caller keeps
// ownership of the client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	return &Store{client: client, settings: newSettings(opts)}
}

// Close releases the underlying client connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(id string) string {
	return s.prefix + "conv:" + id
}

func (s *Store) indexKey() string {
	return s.prefix + "conv:index"
}

// createScript inserts a conversation only if the key is absent, keeping the
// state write and the index entry atomic. Returns 0 when the id is taken.
var createScript = backend.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
else
	redis.call("SET", KEYS[1], ARGV[1])
end
redis.call("ZADD", KEYS[2], ARGV[2], ARGV[4])
return 1
`)

// commitScript swaps in the next state only while the stored step still
// matches the step the writer read. It returns -1 on success, -2 when the
// conversation vanished, and the actual step when another writer got there
// first. Decoding the stored JSON inside the script keeps the check and the
// swap in one atomic round trip.
var commitScript = backend.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then
	return -2
end
local current = cjson.decode(raw)
if tonumber(current["step"]) ~= tonumber(ARGV[1]) then
	return tonumber(current["step"])
end
if tonumber(ARGV[4]) > 0 then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[4])
else
	redis.call("SET", KEYS[1], ARGV[2])
end
redis.call("ZADD", KEYS[2], ARGV[3], ARGV[5])
return -1
`)

// Create persists a new conversation.
func (s *Store) Create(ctx context.Context, state *domain.ConversationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation %s: %w", state.ID, err)
	}

	created, err := createScript.Run(ctx, s.client,
		[]string{s.key(state.ID), s.indexKey()},
		data, indexScore(state.UpdatedAt), s.ttl.Milliseconds(), state.ID,
	).Int64()
	if err != nil {
		return fmt.Errorf("failed to create conversation %s: %w", state.ID, err)
	}
	if created == 0 {
		return domain.ErrConversationExists
	}
	return nil
}

// Get retrieves a conversation.
func (s *Store) Get(ctx context.Context, id string) (*domain.ConversationState, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == backend.Nil {
		return nil, domain.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", id, err)
	}

	var state domain.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation %s: %w", id, err)
	}
	return &state, nil
}

// Commit applies one step delta under compare-and-swap on the step counter.
// The delta is applied to a local copy first; the script then installs the
// result only if no other writer advanced the conversation in between.
func (s *Store) Commit(ctx context.Context, id string, expectedStep uint64, delta domain.Delta) (*domain.ConversationState, error) {
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
	data, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation %s: %w", id, err)
	}

	res, err := commitScript.Run(ctx, s.client,
		[]string{s.key(id), s.indexKey()},
		expectedStep, data, indexScore(next.UpdatedAt), s.ttl.Milliseconds(), id,
	).Int64()
	if err != nil {
		return nil, fmt.Errorf("failed to commit step %d of conversation %s: %w", next.Step, id, err)
	}
	switch {
	case res == -2:
		return nil, domain.ErrConversationNotFound
	case res >= 0:
		return nil, &domain.StaleWriteError{
			ConversationID: id,
			ExpectedStep:   expectedStep,
			ActualStep:     uint64(res),
		}
	}
	return next, nil
}

// List returns conversation summaries, most recently updated first. With a
// TTL configured, index entries whose conversation has expired are cleaned
// up lazily on the way.
func (s *Store) List(ctx context.Context) ([]ports.ConversationSummary, error) {
	if s.ttl > 0 {
		horizon := indexScore(time.Now().Add(-s.ttl))
		if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%d", horizon)).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune conversation index: %w", err)
		}
	}

	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation index: %w", err)
	}

	summaries := make([]ports.ConversationSummary, 0, len(ids))
	for _, id := range ids {
		state, err := s.Get(ctx, id)
		if err == domain.ErrConversationNotFound {
			// Expired or deleted since the index read; drop the entry.
			s.client.ZRem(ctx, s.indexKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, ports.Summarize(state))
	}
	return summaries, nil
}

// Delete removes a conversation and its index entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.key(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	if del.Val() == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

// indexScore orders index members by update time. Millisecond scores stay
// well inside float64 precision, which sorted-set scores are stored as.
func indexScore(t time.Time) int64 {
	return t.UnixMilli()
}
