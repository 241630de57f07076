package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/droverlabs/drover/internal/logging"
	"github.com/droverlabs/drover/pkg/adapters/memory"
	"github.com/droverlabs/drover/pkg/supervisor"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	sup, err := supervisor.New(memory.NewStore(), supervisor.WithLogger(logging.NewNop()))
	if err != nil {
		t.Fatalf("supervisor.New: %v", err)
	}
	t.Cleanup(sup.Close)
	return NewServer(sup)
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func TestSendMessageRunsTurn(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.handleSendMessage(context.Background(), callRequest("send_message", nil), map[string]any{
		"message": "Load the sales data",
		"user_id": "alice",
	})
	if err != nil {
		t.Fatalf("handleSendMessage: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got error %q", resp.Error)
	}
	if resp.ConversationID == "" {
		t.Error("expected a conversation id")
	}
	if resp.MessageCount == 0 {
		t.Error("expected committed messages")
	}
}

func TestSendMessageRejectsEmptyMessage(t *testing.T) {
	s := newTestServer(t)

	_, err := s.handleSendMessage(context.Background(), callRequest("send_message", nil), map[string]any{
		"message": "",
	})
	if err == nil {
		t.Fatal("expected an error for an empty message")
	}
}

func TestListConversationsFiltersByUser(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	for _, userID := range []string{"alice", "alice", "bob"} {
		if _, err := s.handleSendMessage(ctx, callRequest("send_message", nil), map[string]any{
			"message": "hello there",
			"user_id": userID,
		}); err != nil {
			t.Fatalf("seed turn for %s: %v", userID, err)
		}
	}

	all, err := s.handleListConversations(ctx, callRequest("list_conversations", nil), map[string]any{})
	if err != nil {
		t.Fatalf("handleListConversations: %v", err)
	}
	if all.Total != 3 {
		t.Fatalf("expected 3 conversations, got %d", all.Total)
	}

	filtered, err := s.handleListConversations(ctx, callRequest("list_conversations", nil), map[string]any{
		"user_id": "alice",
	})
	if err != nil {
		t.Fatalf("handleListConversations filtered: %v", err)
	}
	if filtered.Total != 2 {
		t.Fatalf("expected 2 conversations for alice, got %d", filtered.Total)
	}
	for _, sum := range filtered.Conversations {
		if sum.UserID != "alice" {
			t.Errorf("unexpected user %q in filtered list", sum.UserID)
		}
	}
}

func TestGetConversationNotFound(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleGetConversation(context.Background(), callRequest("get_conversation", map[string]any{
		"conversation_id": "missing",
	}))
	if err != nil {
		t.Fatalf("handleGetConversation: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected an error result")
	}
	text := toolResultText(t, result)
	if text != "conversation not found" {
		t.Errorf("expected verbatim not-found message, got %q", text)
	}
}

func TestGetConversationReturnsState(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	resp, err := s.handleSendMessage(ctx, callRequest("send_message", nil), map[string]any{
		"message": "Load the sales data",
	})
	if err != nil {
		t.Fatalf("seed turn: %v", err)
	}

	result, err := s.handleGetConversation(ctx, callRequest("get_conversation", map[string]any{
		"conversation_id": resp.ConversationID,
	}))
	if err != nil {
		t.Fatalf("handleGetConversation: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", toolResultText(t, result))
	}
	text := toolResultText(t, result)
	if !strings.Contains(text, resp.ConversationID) {
		t.Errorf("state JSON should mention the conversation id, got %s", text)
	}
	if !strings.Contains(text, `"phase":"responding"`) {
		t.Errorf("state JSON should carry the committed phase, got %s", text)
	}
}

func toolResultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty tool result content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}
