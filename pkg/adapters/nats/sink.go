// Package nats bridges the event stream into NATS, one subject per
// conversation, so other services can follow turns without holding an
// in-process subscription.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	natsio "github.com/nats-io/nats.go"

	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
)

// DefaultPrefix is the leading subject token.
const DefaultPrefix = "drover"

// Sink publishes every sequenced event to
// "<prefix>.<conversation_id>.events".
type Sink struct {
	conn   *natsio.Conn
	prefix string
	owned  bool
}

// Option configures the Sink.
type Option func(*Sink)

// WithPrefix overrides the leading subject token.
func WithPrefix(prefix string) Option {
	return func(s *Sink) {
		if prefix != "" {
			s.prefix = sanitizeToken(prefix)
		}
	}
}

// New connects to the given NATS URL and owns the connection: Close drains
// it.
func New(url string, opts ...Option) (*Sink, error) {
	conn, err := natsio.Connect(url, natsio.Name("drover-events"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	s := NewFromConn(conn, opts...)
	s.owned = true
	return s, nil
}

// NewFromConn wraps an existing connection, which stays open after Close.
func NewFromConn(conn *natsio.Conn, opts ...Option) *Sink {
	s := &Sink{conn: conn, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ ports.EventSink = (*Sink)(nil)

// Publish implements ports.EventSink. The publish is fire-and-forget; NATS
// buffers and flushes on its own schedule.
func (s *Sink) Publish(ctx context.Context, event domain.ExecutionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := s.conn.Publish(s.subject(event.ConversationID), data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close drains the connection when this sink opened it.
func (s *Sink) Close() error {
	if !s.owned {
		return nil
	}
	return s.conn.Drain()
}

func (s *Sink) subject(conversationID string) string {
	token := sanitizeToken(conversationID)
	if token == "" {
		token = "_global"
	}
	return s.prefix + "." + token + ".events"
}

// sanitizeToken makes an arbitrary id safe as a single subject token.
// Dots, spaces and wildcards would otherwise change subject structure.
func sanitizeToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '\t', '*', '>':
			return '-'
		}
		return r
	}, s)
}
