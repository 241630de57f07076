package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/droverlabs/drover/internal/dto"
	"github.com/droverlabs/drover/pkg/domain"
)

// wsOutboundBuffer absorbs event bursts between socket writes. Transport
// acknowledgements are dropped when it is full; subscription forwarders
// block instead, so a client that stops reading is detached by the emitter
// and never sees a gap.
const wsOutboundBuffer = 32

// agentUpdates handles GET /ws/agent-updates/{client_id}.
//
// The server greets with connected. The client may send
// ping, answered with pong, and subscribe {conversation_id}, answered with
// subscribed followed by that conversation's events as they happen.
func (s *Server) agentUpdates(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	sess := &wsSession{
		server:   s,
		conn:     conn,
		clientID: chi.URLParam(r, "client_id"),
		outbound: make(chan dto.EventMessage, wsOutboundBuffer),
		subs:     make(map[string]func()),
	}
	sess.run(r.Context())
}

// wsSession is one WebSocket connection: a read loop for client messages,
// a single write loop draining outbound, and one emitter subscription per
// conversation the client asked for.
type wsSession struct {
	server   *Server
	conn     *websocket.Conn
	clientID string
	outbound chan dto.EventMessage

	mu   sync.Mutex
	subs map[string]func()
}

func (ws *wsSession) run(ctx context.Context) {
	defer ws.conn.CloseNow()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer ws.unsubscribeAll()

	go ws.writeLoop(ctx)

	ws.send(dto.EventMessage{
		Type:      string(domain.EventConnected),
		Data:      map[string]any{"client_id": ws.clientID},
		Timestamp: time.Now().UTC(),
	})
	ws.server.logger.Info("websocket client connected", "client_id", ws.clientID)

	for {
		var msg dto.ClientMessage
		if err := wsjson.Read(ctx, ws.conn, &msg); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				ws.server.logger.Debug("websocket read ended", "client_id", ws.clientID, "error", err)
			}
			return
		}

		switch msg.Type {
		case dto.ClientPing:
			ws.send(dto.EventMessage{
				Type:      string(domain.EventPong),
				Timestamp: time.Now().UTC(),
			})
		case dto.ClientSubscribe:
			ws.subscribe(ctx, msg.ConversationID)
		default:
			ws.send(dto.EventMessage{
				Type:      string(domain.EventError),
				Message:   fmt.Sprintf("unknown message type %q", msg.Type),
				Timestamp: time.Now().UTC(),
			})
		}
	}
}

// subscribe attaches the session to one conversation's event stream.
// Subscribing twice to the same conversation just re-acknowledges.
func (ws *wsSession) subscribe(ctx context.Context, conversationID string) {
	if conversationID == "" {
		ws.send(dto.EventMessage{
			Type:      string(domain.EventError),
			Message:   "subscribe requires conversation_id",
			Timestamp: time.Now().UTC(),
		})
		return
	}

	ws.mu.Lock()
	_, active := ws.subs[conversationID]
	if !active {
		events, cancel := ws.server.sup.Events().Subscribe(conversationID)
		ws.subs[conversationID] = cancel
		go ws.forward(ctx, events)
	}
	ws.mu.Unlock()

	ws.send(dto.EventMessage{
		Type:           dto.TypeSubscribed,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
	})
	ws.server.logger.Info("websocket subscription added",
		"client_id", ws.clientID,
		"conversation_id", conversationID,
	)
}

// forward pushes one subscription's events into the outbound queue. The send
// blocks so backpressure reaches the emitter, which detaches the
// subscription when the client cannot keep up.
func (ws *wsSession) forward(ctx context.Context, events <-chan domain.ExecutionEvent) {
	for ev := range events {
		select {
		case ws.outbound <- dto.FromEvent(ev):
		case <-ctx.Done():
			return
		}
	}
}

// send queues a transport frame without blocking the read loop.
func (ws *wsSession) send(msg dto.EventMessage) {
	select {
	case ws.outbound <- msg:
	default:
		ws.server.logger.Warn("websocket client buffer full, dropping message",
			"client_id", ws.clientID,
			"type", msg.Type,
		)
	}
}

func (ws *wsSession) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ws.outbound:
			if err := wsjson.Write(ctx, ws.conn, msg); err != nil {
				return
			}
		}
	}
}

func (ws *wsSession) unsubscribeAll() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for id, cancel := range ws.subs {
		cancel()
		delete(ws.subs, id)
	}
}
