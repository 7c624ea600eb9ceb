package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"tablexport/internal/service"
)

// Server is the MCP server for tablexport.
// It exposes schema reads, exports, and stored jobs as tools for AI agents.
type Server struct {
	mcp     *server.MCPServer
	exports *service.ExportService
	logger  *slog.Logger
}

// Deps holds the dependencies the MCP server is built from.
type Deps struct {
	Exports *service.ExportService
	Logger  *slog.Logger
	Version string
}

// New creates and configures a new MCP server with all tools.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{exports: deps.Exports, logger: logger}

	s.mcp = server.NewMCPServer(
		"tablexport",
		version,
		server.WithToolCapabilities(true),
	)

	s.registerSchemaTools()
	s.registerExportTools()
	s.registerJobTools()
	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info("starting MCP stdio server")
	return server.ServeStdio(s.mcp)
}

// ToolNames lists the registered tools.
func (s *Server) ToolNames() []string {
	tools := s.mcp.ListTools()
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	return names
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// errorResult reports a failed operation to the agent without failing the call.
func errorResult(err error) *mcp.CallToolResult {
	res := textResult(err.Error())
	res.IsError = true
	return res
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

func requireString(req mcp.CallToolRequest, key string) (string, error) {
	v := req.GetString(key, "")
	if v == "" {
		return "", errRequired(key)
	}
	return v, nil
}

func boolPtr(v bool) *bool { return &v }

// handler adapts fn so that domain errors come back as tool errors.
func handler(fn func(ctx context.Context, req mcp.CallToolRequest) (any, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		v, err := fn(ctx, req)
		if err != nil {
			return errorResult(err), nil
		}
		if text, ok := v.(string); ok {
			return textResult(text), nil
		}
		return jsonResult(v)
	}
}
