package observability

import (
	"context"
	"sync"

	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
)

// Aggregator combines the event streams of multiple conversations into a
// single channel. Per-conversation order survives the merge; events from
// different conversations interleave arbitrarily.
type Aggregator struct {
	events ports.EventEmitter
	buffer int
}

// Option configures the aggregator.
type Option func(*Aggregator)

// WithBuffer sets the merged channel's buffer size.
func WithBuffer(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.buffer = n
		}
	}
}

// NewAggregator creates an aggregator reading from events.
func NewAggregator(events ports.EventEmitter, opts ...Option) *Aggregator {
	a := &Aggregator{events: events, buffer: 64}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Watch subscribes to every named conversation and returns the merged
// stream. The channel closes when ctx is cancelled or every underlying
// subscription has been detached; all subscriptions are released either
// way. Duplicate IDs collapse to one subscription so no event arrives
// twice.
func (a *Aggregator) Watch(ctx context.Context, conversationIDs ...string) <-chan domain.ExecutionEvent {
	out := make(chan domain.ExecutionEvent, a.buffer)

	var wg sync.WaitGroup
	seen := make(map[string]struct{}, len(conversationIDs))
	for _, id := range conversationIDs {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}

		ch, cancel := a.events.Subscribe(id)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()
			for {
				select {
				case event, ok := <-ch:
					if !ok {
						return
					}
					select {
					case out <- event:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
