// Package emitter implements the causally ordered event stream: one
// sequence counter per conversation, fan-out to live subscribers, and
// optional bridging into external sinks.
package emitter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 16

// Emitter assigns per-conversation sequence numbers and delivers events to
// live subscribers. Delivery is at most once, in order, gap-free per
// subscriber: a subscriber whose buffer is full is detached (its channel
// closed) rather than handed a stream with holes. There is no replay.
type Emitter struct {
	logger *slog.Logger
	buffer int
	sinks  []ports.EventSink

	mu     sync.Mutex
	closed bool
	seqs   map[string]uint64
	subs   map[string]map[chan domain.ExecutionEvent]struct{}
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithLogger sets the logger used for detach and sink warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Emitter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(n int) Option {
	return func(e *Emitter) {
		if n > 0 {
			e.buffer = n
		}
	}
}

// WithSink registers an external sink that receives every sequenced event.
func WithSink(sink ports.EventSink) Option {
	return func(e *Emitter) {
		if sink != nil {
			e.sinks = append(e.sinks, sink)
		}
	}
}

// New creates an Emitter.
func New(opts ...Option) *Emitter {
	e := &Emitter{
		logger: slog.Default(),
		buffer: DefaultBuffer,
		seqs:   make(map[string]uint64),
		subs:   make(map[string]map[chan domain.ExecutionEvent]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ ports.EventEmitter = (*Emitter)(nil)

// Emit implements ports.EventEmitter. Sequencing and fan-out happen under
// one lock so no two events of a conversation can race into subscribers out
// of order.
func (e *Emitter) Emit(ctx context.Context, event domain.ExecutionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if sequenced(event.Type) && event.ConversationID != "" {
		e.seqs[event.ConversationID]++
		event.Seq = e.seqs[event.ConversationID]
	}
	for ch := range e.subs[event.ConversationID] {
		select {
		case ch <- event:
		default:
			// A full buffer means the subscriber fell behind. Dropping a
			// single event would hand it a gap, so detach it instead.
			delete(e.subs[event.ConversationID], ch)
			close(ch)
			e.logger.Warn("event subscriber detached: buffer full",
				"conversation_id", event.ConversationID,
				"seq", event.Seq)
		}
	}
	e.mu.Unlock()

	for _, sink := range e.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			e.logger.Warn("event sink publish failed",
				"conversation_id", event.ConversationID,
				"type", string(event.Type),
				"error", err)
		}
	}
}

// Subscribe implements ports.EventEmitter.
func (e *Emitter) Subscribe(conversationID string) (<-chan domain.ExecutionEvent, func()) {
	ch := make(chan domain.ExecutionEvent, e.buffer)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if e.subs[conversationID] == nil {
		e.subs[conversationID] = make(map[chan domain.ExecutionEvent]struct{})
	}
	e.subs[conversationID][ch] = struct{}{}
	e.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			// the emitter may have detached this subscriber already
			if set, ok := e.subs[conversationID]; ok {
				if _, live := set[ch]; live {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(e.subs, conversationID)
				}
			}
		})
	}
	return ch, cancel
}

// Seq reports the last sequence number assigned for a conversation, zero if
// none was emitted yet.
func (e *Emitter) Seq(conversationID string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seqs[conversationID]
}

// SubscriberCount reports live subscribers for a conversation.
func (e *Emitter) SubscriberCount(conversationID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs[conversationID])
}

// Close detaches every subscriber and rejects further emits. Sequence
// counters are not reset; they live as long as the emitter to keep numbers
// from ever being reused.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for id, set := range e.subs {
		for ch := range set {
			close(ch)
		}
		delete(e.subs, id)
	}
}

// sequenced reports whether the event kind participates in the ordered
// stream. Connection-level kinds are transport chatter and carry no Seq.
func sequenced(kind domain.EventKind) bool {
	switch kind {
	case domain.EventConnected, domain.EventPong:
		return false
	}
	return true
}
