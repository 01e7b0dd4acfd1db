package mcp

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolInfo describes a tool discovered from an MCP server.
type ToolInfo struct {
	// Name is the tool's name as reported by the server.
	Name string

	// Description is a human-readable description of the tool.
	Description string

	// InputSchema is the raw JSON schema for the tool's input.
	InputSchema json.RawMessage
}

// CallResult is the normalized tools/call result.
type CallResult struct {
	// Content joins the text items of the result with newlines. Non-text
	// items are JSON-encoded in place.
	Content string

	// IsError is the server's isError flag.
	IsError bool
}

// Transport is the interface for communicating with an MCP server.
type Transport interface {
	// Connect establishes the connection and performs the initialize handshake.
	Connect(ctx context.Context) error

	// ListTools discovers available tools from the server, following
	// pagination cursors until exhausted.
	ListTools(ctx context.Context) ([]ToolInfo, error)

	// CallTool invokes a tool on the server by name with the given arguments.
	CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error)

	// Close tears down the connection and releases resources.
	Close() error
}

// NewTransport creates a Transport for the given ServerConfig based on its
// Transport type. Returns ErrInvalidConfig if the config is not valid.
func NewTransport(cfg ServerConfig) (Transport, error) {
	switch cfg.Transport {
	case TransportSDK:
		return NewSDKTransport(cfg)
	case TransportJSONRPC:
		return NewJSONRPCTransport(cfg)
	case TransportStdio:
		return NewStdioTransport(cfg)
	case "":
		if cfg.URL != "" {
			return NewSDKTransport(cfg)
		}
		if cfg.Command != "" {
			return NewStdioTransport(cfg)
		}
		return nil, fmt.Errorf("%w: URL or command required", ErrInvalidConfig)
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, cfg.Transport)
	}
}
