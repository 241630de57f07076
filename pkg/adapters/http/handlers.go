package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/droverlabs/drover/internal/dto"
	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
	"github.com/droverlabs/drover/pkg/supervisor"
)

// defaultListLimit caps a listing response when the client names no limit.
const defaultListLimit = 50

// execute handles POST /api/agents/execute: one full conversation turn.
func (s *Server) execute(w http.ResponseWriter, r *http.Request) {
	var body dto.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		s.logger.Warn("execute: invalid request body", "error", err)
		return
	}

	result, err := s.sup.Handle(r.Context(), supervisor.TurnRequest{
		ConversationID: body.ConversationID,
		Message:        body.Message,
		UserID:         body.UserID,
	})
	switch {
	case errors.Is(err, domain.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, supervisor.ErrTurnActive):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		s.logger.Error("execute failed", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.FromTurnResult(result))
}

// listConversations handles GET /api/conversations with an optional user_id
// filter and limit/offset pagination.
func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.sup.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		s.logger.Error("list conversations failed", "error", err)
		return
	}

	q := r.URL.Query()
	if userID := q.Get("user_id"); userID != "" {
		filtered := summaries[:0]
		for _, sum := range summaries {
			if sum.UserID == userID {
				filtered = append(filtered, sum)
			}
		}
		summaries = filtered
	}

	total := len(summaries)
	offset := intQuery(q, "offset", 0)
	limit := intQuery(q, "limit", defaultListLimit)
	if offset > len(summaries) {
		offset = len(summaries)
	}
	summaries = summaries[offset:]
	if limit < len(summaries) {
		summaries = summaries[:limit]
	}
	if summaries == nil {
		summaries = []ports.ConversationSummary{}
	}

	writeJSON(w, http.StatusOK, dto.ConversationList{Conversations: summaries, Total: total})
}

// getConversation handles GET /api/conversations/{id}.
func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	state, err := s.sup.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.conversationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// deleteConversation handles DELETE /api/conversations/{id}.
func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.sup.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.conversationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listCheckpoints handles GET /api/conversations/{id}/checkpoints.
func (s *Server) listCheckpoints(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.sup.Get(r.Context(), id); err != nil {
		s.conversationError(w, err)
		return
	}

	checkpoints, err := s.sup.Checkpoints(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		s.logger.Error("list checkpoints failed", "conversation_id", id, "error", err)
		return
	}

	out := dto.CheckpointList{
		ConversationID: id,
		Checkpoints:    make([]dto.CheckpointInfo, 0, len(checkpoints)),
	}
	for _, cp := range checkpoints {
		out.Checkpoints = append(out.Checkpoints, dto.FromCheckpoint(cp))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) conversationError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrConversationNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
	s.logger.Error("conversation lookup failed", "error", err)
}

func intQuery(q url.Values, key string, fallback int) int {
	raw := q.Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
