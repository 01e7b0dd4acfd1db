package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	mcpsdk "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/armatrix/sandbox-agent/internal/schema"
)

// LocalServer is an in-process tool server that wraps Go functions as tools.
// It satisfies Transport directly, and Handler exposes the same tools over
// MCP streamable HTTP.
//
// Usage:
//
//	srv := mcp.NewLocalServer("sandbox")
//	mcp.AddTool(srv, "run", "Run a shell command", func(ctx context.Context, in RunInput) (string, error) {
//	    return exec(in.Command)
//	})
//	a := agent.NewAgent(agent.WithTransport(srv))
type LocalServer struct {
	name  string
	tools []localTool

	mu        sync.Mutex
	connected bool
}

type localTool struct {
	name        string
	description string
	schema      json.RawMessage
	handler     func(ctx context.Context, input json.RawMessage) (string, error)
}

var _ Transport = (*LocalServer)(nil)

// NewLocalServer creates a new in-process tool server with the given name.
func NewLocalServer(name string) *LocalServer {
	return &LocalServer{name: name}
}

// Name returns the server name.
func (s *LocalServer) Name() string {
	return s.name
}

// ToolNames returns the names of all registered tools in registration order.
func (s *LocalServer) ToolNames() []string {
	names := make([]string, len(s.tools))
	for i, t := range s.tools {
		names[i] = t.name
	}
	return names
}

// AddTool registers a typed Go function as a tool.
// The input type T is used for automatic JSON Schema generation.
func AddTool[T any](s *LocalServer, name, description string, handler func(ctx context.Context, input T) (string, error)) {
	s.tools = append(s.tools, localTool{
		name:        name,
		description: description,
		schema:      schema.Generate[T](),
		handler: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var input T
			if err := json.Unmarshal(raw, &input); err != nil {
				return "", fmt.Errorf("invalid input: %w", err)
			}
			return handler(ctx, input)
		},
	})
}

// Connect marks the server as ready.
func (s *LocalServer) Connect(_ context.Context) error {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *LocalServer) isConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// ListTools returns the registered tools.
func (s *LocalServer) ListTools(_ context.Context) ([]ToolInfo, error) {
	if !s.isConnected() {
		return nil, ErrNotConnected
	}
	out := make([]ToolInfo, len(s.tools))
	for i, t := range s.tools {
		out[i] = ToolInfo{Name: t.name, Description: t.description, InputSchema: t.schema}
	}
	return out, nil
}

// CallTool runs the named handler. Handler errors become IsError results,
// matching how a remote server reports tool failures.
func (s *LocalServer) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	if !s.isConnected() {
		return nil, ErrNotConnected
	}
	t, ok := s.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	out, err := t.handler(ctx, raw)
	if err != nil {
		return &CallResult{Content: err.Error(), IsError: true}, nil
	}
	return &CallResult{Content: out}, nil
}

// Close marks the server as disconnected.
func (s *LocalServer) Close() error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return nil
}

func (s *LocalServer) lookup(name string) (localTool, bool) {
	for _, t := range s.tools {
		if t.name == name {
			return t, true
		}
	}
	return localTool{}, false
}

// MCPServer builds an mcp-go server exposing the registered tools.
func (s *LocalServer) MCPServer(version string) *server.MCPServer {
	srv := server.NewMCPServer(s.name, version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	for _, t := range s.tools {
		handler := t.handler
		srv.AddTool(
			mcpsdk.NewToolWithRawSchema(t.name, t.description, t.schema),
			func(ctx context.Context, req mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
				raw, err := json.Marshal(req.Params.Arguments)
				if err != nil {
					return mcpsdk.NewToolResultError(err.Error()), nil
				}
				out, err := handler(ctx, raw)
				if err != nil {
					return mcpsdk.NewToolResultError(err.Error()), nil
				}
				return mcpsdk.NewToolResultText(out), nil
			},
		)
	}
	return srv
}

// Handler serves the registered tools over MCP streamable HTTP.
func (s *LocalServer) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.MCPServer("0.1.0"))
}
