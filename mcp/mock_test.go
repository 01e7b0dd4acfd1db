package mcp

import (
	"context"
	"encoding/json"
	"sync"
)

// mockTransport is a scriptable Transport for registry and executor tests.
type mockTransport struct {
	mu        sync.Mutex
	tools     []ToolInfo
	listErr   error
	listCalls int
	calls     []string
	call      func(ctx context.Context, name string, args map[string]any) (*CallResult, error)
}

func (m *mockTransport) Connect(context.Context) error { return nil }

func (m *mockTransport) ListTools(context.Context) ([]ToolInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.tools, nil
}

func (m *mockTransport) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, name)
	fn := m.call
	m.mu.Unlock()
	if fn == nil {
		return &CallResult{Content: name + " ok"}, nil
	}
	return fn(ctx, name, args)
}

func (m *mockTransport) Close() error { return nil }

func tool(name string) ToolInfo {
	return ToolInfo{Name: name, Description: name + " tool", InputSchema: json.RawMessage(`{"type":"object","properties":{}}`)}
}
