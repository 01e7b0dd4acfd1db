package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
)

// SDKTransport implements Transport over MCP streamable HTTP using the
// mcp-go client. The bearer token from the config is attached to every
// request.
type SDKTransport struct {
	sdkSession
}

var _ Transport = (*SDKTransport)(nil)

// NewSDKTransport creates a new SDKTransport from the given config.
// Returns ErrInvalidConfig if URL is empty.
func NewSDKTransport(cfg ServerConfig) (*SDKTransport, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: HTTP transport requires URL", ErrInvalidConfig)
	}
	return &SDKTransport{sdkSession{cfg: cfg}}, nil
}

// Connect opens the HTTP session and performs the initialize handshake.
func (t *SDKTransport) Connect(ctx context.Context) error {
	c, err := client.NewStreamableHttpClient(t.cfg.URL,
		transport.WithHTTPHeaders(t.cfg.headers()),
	)
	if err != nil {
		return fmt.Errorf("mcp client: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("mcp start: %w", err)
	}
	return t.initialize(ctx, c)
}
