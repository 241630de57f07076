package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/droverlabs/drover/pkg/ports"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// lockPollInterval is how often a blocked Lock retries acquisition.
const lockPollInterval = 100 * time.Millisecond

// unlockScript deletes the lock only while it still holds our token, so a
// holder whose lock expired cannot release a successor's lock.
var unlockScript = backend.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker implements ports.DistributedLocker using Redis SET NX PX with a
// per-acquisition token.
type Locker struct {
	client *backend.Client
	prefix string
}

var _ ports.DistributedLocker = (*Locker)(nil)

// NewLocker creates a Locker on an existing client. The caller keeps
// ownership of the client.
func NewLocker(client *backend.Client, opts ...Option) *Locker {
	s := newSettings(opts)
	return &Locker{client: client, prefix: s.prefix}
}

// Lock acquires the lock for key, polling until it succeeds or ctx is
// canceled. The TTL bounds how long a crashed holder can block others.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	lockKey := l.prefix + "lock:" + key
	token := uuid.NewString()

	acquire := func() (ports.UnlockFunc, bool, error) {
		ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			return nil, false, fmt.Errorf("redis error acquiring lock %s: %w", lockKey, err)
		}
		if !ok {
			return nil, false, nil
		}
		unlock := func(ctx context.Context) error {
			return unlockScript.Run(ctx, l.client, []string{lockKey}, token).Err()
		}
		return unlock, true, nil
	}

	if unlock, ok, err := acquire(); err != nil || ok {
		return unlock, err
	}

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			unlock, ok, err := acquire()
			if err != nil || ok {
				return unlock, err
			}
		}
	}
}
