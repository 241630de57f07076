// Package mcp exposes the supervisor as a Model Context Protocol server, so
// MCP-aware assistants and IDEs can drive conversations as tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mitchellh/mapstructure"

	"github.com/droverlabs/drover"
	"github.com/droverlabs/drover/internal/dto"
	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/ports"
	"github.com/droverlabs/drover/pkg/supervisor"
)

// Server wraps a Supervisor and exposes it as an MCP server.
type Server struct {
	sup       *supervisor.Supervisor
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance.
func NewServer(sup *supervisor.Supervisor) *Server {
	s := &Server{
		sup:       sup,
		mcpServer: server.NewMCPServer("drover-mcp", strings.TrimSpace(drover.Version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)

	go func() {
		slog.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		slog.Info("shutdown signal received, stopping MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: send_message
	sendTool := mcp.NewTool("send_message",
		mcp.WithDescription("Send a user message to a conversation and run the turn to completion. Omit conversation_id to start a new conversation."),
		mcp.WithString("message", mcp.Required(), mcp.Description("The user message text")),
		mcp.WithString("conversation_id", mcp.Description("Existing conversation to continue (optional)")),
		mcp.WithString("user_id", mcp.Description("Identifier of the end user (optional)")),
		mcp.WithOutputSchema[dto.ExecuteResponse](),
	)
	s.mcpServer.AddTool(sendTool, mcp.NewStructuredToolHandler(s.handleSendMessage))

	// TOOL: list_conversations
	listTool := mcp.NewTool("list_conversations",
		mcp.WithDescription("List conversations, optionally filtered by user."),
		mcp.WithString("user_id", mcp.Description("Only list conversations for this user (optional)")),
		mcp.WithOutputSchema[dto.ConversationList](),
	)
	s.mcpServer.AddTool(listTool, mcp.NewStructuredToolHandler(s.handleListConversations))

	// TOOL: get_conversation
	s.mcpServer.AddTool(mcp.NewTool("get_conversation",
		mcp.WithDescription("Get the full state of a conversation: messages, executor states and routing history."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation to fetch")),
	), s.handleGetConversation)
}

func (s *Server) handleGetConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	state, err := s.sup.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrConversationNotFound) {
			return mcp.NewToolResultError("conversation not found"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("get conversation failed: %v", err)), nil
	}
	jsonBytes, _ := json.Marshal(state)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// Handler methods for structured tools

func (s *Server) handleSendMessage(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (dto.ExecuteResponse, error) {
	var req dto.ExecuteRequest
	if err := mapstructure.Decode(args, &req); err != nil {
		return dto.ExecuteResponse{}, fmt.Errorf("decode arguments: %w", err)
	}

	result, err := s.sup.Handle(ctx, supervisor.TurnRequest{
		ConversationID: req.ConversationID,
		Message:        req.Message,
		UserID:         req.UserID,
	})
	if err != nil {
		slog.Warn("MCP send_message rejected", "error", err)
		return dto.ExecuteResponse{}, fmt.Errorf("send message: %w", err)
	}

	return dto.FromTurnResult(result), nil
}

func (s *Server) handleListConversations(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (dto.ConversationList, error) {
	userID, _ := args["user_id"].(string)

	summaries, err := s.sup.List(ctx)
	if err != nil {
		return dto.ConversationList{}, fmt.Errorf("list conversations: %w", err)
	}
	if userID != "" {
		filtered := summaries[:0]
		for _, sum := range summaries {
			if sum.UserID == userID {
				filtered = append(filtered, sum)
			}
		}
		summaries = filtered
	}
	if summaries == nil {
		summaries = []ports.ConversationSummary{}
	}

	return dto.ConversationList{Conversations: summaries, Total: len(summaries)}, nil
}

func (s *Server) registerResources() {
	// EXPOSE: drover://conversations
	s.mcpServer.AddResource(mcp.NewResource("drover://conversations", "Active Conversations",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		summaries, err := s.sup.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list conversations: %w", err)
		}
		if summaries == nil {
			summaries = []ports.ConversationSummary{}
		}
		jsonBytes, _ := json.Marshal(dto.ConversationList{Conversations: summaries, Total: len(summaries)})

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "drover://conversations",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
