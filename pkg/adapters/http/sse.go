package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/droverlabs/drover/internal/dto"
)

// subscribeEvents handles GET /api/events: a ping greeting, then every event
// of the named conversations as JSON data frames until the client
// disconnects. Repeating conversation_id follows several conversations over
// one connection; the streams merge with per-conversation order intact.
//
// A subscriber that stops reading is detached by the emitter rather than
// handed a stream with gaps; the closed channel ends the response.
func (s *Server) subscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		s.logger.Error("sse: streaming not supported")
		return
	}

	conversationIDs := r.URL.Query()["conversation_id"]
	if len(conversationIDs) == 0 {
		writeError(w, http.StatusBadRequest, "conversation_id is required")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := s.watch.Watch(r.Context(), conversationIDs...)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Info("sse subscriber attached", "conversation_ids", conversationIDs)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("sse subscriber disconnected", "conversation_ids", conversationIDs)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(dto.FromEvent(ev))
			if err != nil {
				s.logger.Error("sse event encode failed", "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
