// ABOUTME: MCP server initialization and configuration for backstage.
// ABOUTME: Exposes the backend client's auth, profile, and feed operations as tools.
package mcp

import (
	"context"
	"fmt"
	"log/slog"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389-research/backstage/internal/api"
	"github.com/2389-research/backstage/internal/apierr"
	"github.com/2389-research/backstage/internal/logging"
)

// Server wraps the MCP server around a backend client.
type Server struct {
	mcp      *gomcp.Server
	client   *api.Client
	logger   *slog.Logger
	handlers map[string]gomcp.ToolHandler
}

// ServerOption configures optional Server dependencies.
type ServerOption func(*Server)

// WithLogger sets the logger attached to every tool call's context.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates an MCP server backed by client.
func NewServer(client *api.Client, opts ...ServerOption) (*Server, error) {
	if client == nil {
		return nil, fmt.Errorf("api client is required")
	}

	mcpServer := gomcp.NewServer(
		&gomcp.Implementation{
			Name:    "backstage",
			Version: "1.0.0",
		},
		nil,
	)

	s := &Server{
		mcp:      mcpServer,
		client:   client,
		logger:   slog.Default(),
		handlers: make(map[string]gomcp.ToolHandler),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registerAuthTools()
	s.registerProfileTools()
	s.registerFeedTools()

	return s, nil
}

// Serve starts the MCP server in stdio mode.
func (s *Server) Serve(ctx context.Context) error {
	return s.mcp.Run(ctx, &gomcp.StdioTransport{})
}

// Tools lists the registered tool names.
func (s *Server) Tools() []string {
	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	return names
}

func (s *Server) addTool(tool *gomcp.Tool, h gomcp.ToolHandler) {
	wrapped := func(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		ctx = logging.WithLogger(ctx, s.logger.With("tool", tool.Name))
		return h(ctx, req)
	}
	s.handlers[tool.Name] = wrapped
	s.mcp.AddTool(tool, wrapped)
}

func toolText(format string, args ...interface{}) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}

func toolError(format string, args ...interface{}) *gomcp.CallToolResult {
	res := toolText(format, args...)
	res.IsError = true
	return res
}

// apiError renders err the way a user would see it, prefixed by its kind.
func apiError(err error) *gomcp.CallToolResult {
	return toolError("%s: %s", apierr.KindOf(err), apierr.Message(err))
}
