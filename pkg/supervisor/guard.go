package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/droverlabs/drover/internal/logging"
	"github.com/droverlabs/drover/pkg/ports"
)

// lockEntry holds the mutex and the reference count for one conversation.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// turnGuard serializes turns per conversation: one turn at a time in this
// process, and across replicas when a distributed locker is configured.
// It uses reference counting to garbage collect unused locks.
type turnGuard struct {
	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

func newTurnGuard(locker ports.DistributedLocker, lockTTL time.Duration, logger *slog.Logger) *turnGuard {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &turnGuard{
		locks:   make(map[string]*lockEntry),
		locker:  locker,
		lockTTL: lockTTL,
		logger:  logger,
	}
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu and call release(id) after unlocking.
func (g *turnGuard) acquire(id string) *lockEntry {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, exists := g.locks[id]
	if !exists {
		entry = &lockEntry{}
		g.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (g *turnGuard) release(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, exists := g.locks[id]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(g.locks, id)
	}
}

// withTurn executes fn while holding the conversation's turn lock.
func (g *turnGuard) withTurn(ctx context.Context, id string, fn func(context.Context) error) error {
	entry := g.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		g.release(id)
	}()

	if g.locker != nil {
		unlock, err := g.locker.Lock(ctx, id, g.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				g.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"conversation_id", id,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
