package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
)

// StdioTransport implements Transport for subprocess-based MCP servers.
// It is meant for running the tool server locally during development.
type StdioTransport struct {
	sdkSession
}

var _ Transport = (*StdioTransport)(nil)

// NewStdioTransport creates a new StdioTransport from the given config.
// Returns ErrInvalidConfig if Command is empty.
func NewStdioTransport(cfg ServerConfig) (*StdioTransport, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("%w: stdio transport requires command", ErrInvalidConfig)
	}
	return &StdioTransport{sdkSession{cfg: cfg}}, nil
}

// Connect spawns the subprocess and performs the initialize handshake.
func (t *StdioTransport) Connect(ctx context.Context) error {
	// NewStdioMCPClient starts the subprocess itself.
	c, err := client.NewStdioMCPClient(t.cfg.Command, t.cfg.environ(), t.cfg.Args...)
	if err != nil {
		return fmt.Errorf("mcp spawn %s: %w", t.cfg.Command, err)
	}
	return t.initialize(ctx, c)
}
