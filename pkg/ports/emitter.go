package ports

import (
	"context"

	"github.com/droverlabs/drover/pkg/domain"
)

// EventEmitter defines the interface for the causally ordered event stream.
//
// Emit assigns the per-conversation sequence number and delivers to the
// subscribers live at that moment, at most once each, in order and without
// gaps. There is no replay: a subscriber joining later starts at the next
// event. A subscriber that cannot keep up is detached rather than skipped,
// so every channel a subscriber does observe is gap-free.
type EventEmitter interface {
	// Emit sequences and fans out one event.
	Emit(ctx context.Context, event domain.ExecutionEvent)

	// Subscribe registers a live subscriber for one conversation. The
	// returned cancel function detaches it and closes the channel; it is
	// safe to call more than once.
	Subscribe(conversationID string) (<-chan domain.ExecutionEvent, func())
}

// EventSink receives every event after sequencing, for bridging the stream
// into external systems. Sink errors are logged, never propagated into the
// step loop.
type EventSink interface {
	Publish(ctx context.Context, event domain.ExecutionEvent) error
}
