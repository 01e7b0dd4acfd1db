package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	mcpsdk "github.com/mark3labs/mcp-go/mcp"
)

// sdkSession drives an mcp-go client once it has been constructed by one of
// the transports. It is shared by SDKTransport and StdioTransport.
type sdkSession struct {
	mu     sync.Mutex
	client *client.Client
	cfg    ServerConfig
}

func (s *sdkSession) initialize(ctx context.Context, c *client.Client) error {
	name, version := s.cfg.clientInfo()

	req := mcpsdk.InitializeRequest{}
	req.Params.ProtocolVersion = mcpsdk.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcpsdk.Implementation{Name: name, Version: version}
	req.Params.Capabilities = mcpsdk.ClientCapabilities{}

	if _, err := c.Initialize(ctx, req); err != nil {
		_ = c.Close()
		return fmt.Errorf("mcp initialize: %w", err)
	}

	s.mu.Lock()
	s.client = c
	s.mu.Unlock()
	return nil
}

func (s *sdkSession) current() (*client.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, ErrNotConnected
	}
	return s.client, nil
}

func (s *sdkSession) ListTools(ctx context.Context) ([]ToolInfo, error) {
	c, err := s.current()
	if err != nil {
		return nil, err
	}

	var tools []ToolInfo
	req := mcpsdk.ListToolsRequest{}
	for {
		res, err := c.ListTools(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("mcp tools/list: %w", err)
		}
		for _, t := range res.Tools {
			tools = append(tools, toolInfoFromSDK(t))
		}
		if res.NextCursor == "" {
			return tools, nil
		}
		req.Params.Cursor = res.NextCursor
	}
}

func (s *sdkSession) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	c, err := s.current()
	if err != nil {
		return nil, err
	}

	req := mcpsdk.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := c.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mcp tools/call %s: %w", name, err)
	}
	return &CallResult{Content: joinContent(res.Content), IsError: res.IsError}, nil
}

func (s *sdkSession) Close() error {
	s.mu.Lock()
	c := s.client
	s.client = nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	return c.Close()
}
