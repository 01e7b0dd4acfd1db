package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/google/uuid"
)

const (
	jsonrpcProtocolVersion = "2025-03-26"
	sessionHeader          = "Mcp-Session-Id"
)

// JSONRPCTransport implements Transport by posting JSON-RPC 2.0 messages to
// the MCP endpoint. Responses may come back as a plain JSON body or as a
// single-response event stream. The session id assigned by the server during
// initialize is echoed on every later request.
type JSONRPCTransport struct {
	cfg        ServerConfig
	httpClient *http.Client

	mu        sync.Mutex
	sessionID string
	connected bool
}

var _ Transport = (*JSONRPCTransport)(nil)

// JSONRPCOption configures a JSONRPCTransport.
type JSONRPCOption func(*JSONRPCTransport)

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(c *http.Client) JSONRPCOption {
	return func(t *JSONRPCTransport) { t.httpClient = c }
}

// NewJSONRPCTransport creates a new JSONRPCTransport from the given config.
// Returns ErrInvalidConfig if URL is empty.
func NewJSONRPCTransport(cfg ServerConfig, opts ...JSONRPCOption) (*JSONRPCTransport, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: HTTP transport requires URL", ErrInvalidConfig)
	}
	t := &JSONRPCTransport{cfg: cfg, httpClient: http.DefaultClient}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// Connect performs the initialize handshake and sends the initialized
// notification.
func (t *JSONRPCTransport) Connect(ctx context.Context) error {
	name, version := t.cfg.clientInfo()
	params := map[string]any{
		"protocolVersion": jsonrpcProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": name, "version": version},
	}
	if _, err := t.call(ctx, "initialize", params); err != nil {
		return fmt.Errorf("mcp initialize: %w", err)
	}
	if err := t.notify(ctx, "notifications/initialized"); err != nil {
		return fmt.Errorf("mcp initialized notification: %w", err)
	}

	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	return nil
}

func (t *JSONRPCTransport) isConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// ListTools sends tools/list, following nextCursor until exhausted.
func (t *JSONRPCTransport) ListTools(ctx context.Context) ([]ToolInfo, error) {
	if !t.isConnected() {
		return nil, ErrNotConnected
	}

	var (
		tools  []ToolInfo
		cursor string
	)
	for {
		var params any
		if cursor != "" {
			params = map[string]any{"cursor": cursor}
		}
		raw, err := t.call(ctx, "tools/list", params)
		if err != nil {
			return nil, fmt.Errorf("mcp tools/list: %w", err)
		}

		var res struct {
			Tools []struct {
				Name        string          `json:"name"`
				Description string          `json:"description"`
				InputSchema json.RawMessage `json:"inputSchema"`
			} `json:"tools"`
			NextCursor string `json:"nextCursor"`
		}
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, fmt.Errorf("%w: decode tools/list: %v", ErrProtocol, err)
		}
		for _, tool := range res.Tools {
			tools = append(tools, ToolInfo{Name: tool.Name, Description: tool.Description, InputSchema: tool.InputSchema})
		}
		if res.NextCursor == "" {
			return tools, nil
		}
		cursor = res.NextCursor
	}
}

// CallTool sends tools/call and normalizes the returned content.
func (t *JSONRPCTransport) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	if !t.isConnected() {
		return nil, ErrNotConnected
	}
	if args == nil {
		args = map[string]any{}
	}

	raw, err := t.call(ctx, "tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return nil, fmt.Errorf("mcp tools/call %s: %w", name, err)
	}

	var res struct {
		Content []json.RawMessage `json:"content"`
		IsError bool              `json:"isError"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("%w: decode tools/call: %v", ErrProtocol, err)
	}
	return &CallResult{Content: joinRawContent(res.Content), IsError: res.IsError}, nil
}

// Close terminates the server-side session, if one was assigned.
func (t *JSONRPCTransport) Close() error {
	t.mu.Lock()
	sid := t.sessionID
	t.connected = false
	t.sessionID = ""
	t.mu.Unlock()

	if sid == "" {
		return nil
	}

	req, err := http.NewRequest(http.MethodDelete, t.cfg.URL, nil)
	if err != nil {
		return err
	}
	t.setHeaders(req, sid)
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mcp close session: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	// Servers that do not support explicit termination answer 405.
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusMethodNotAllowed {
		return fmt.Errorf("%w: close session: HTTP %d", ErrProtocol, resp.StatusCode)
	}
	return nil
}

func (t *JSONRPCTransport) setHeaders(req *http.Request, sessionID string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range t.cfg.headers() {
		req.Header.Set(k, v)
	}
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}
}

func (t *JSONRPCTransport) post(ctx context.Context, msg rpcRequest) (*http.Response, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	sid := t.sessionID
	t.mu.Unlock()
	t.setHeaders(req, sid)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if id := resp.Header.Get(sessionHeader); id != "" {
		t.mu.Lock()
		t.sessionID = id
		t.mu.Unlock()
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrProtocol, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return resp, nil
}

func (t *JSONRPCTransport) notify(ctx context.Context, method string) error {
	resp, err := t.post(ctx, rpcRequest{JSONRPC: "2.0", Method: method})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (t *JSONRPCTransport) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := uuid.NewString()
	resp, err := t.post(ctx, rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var rpcResp *rpcResponse
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		rpcResp, err = readEventStream(resp, id)
	} else {
		rpcResp = &rpcResponse{}
		err = json.NewDecoder(resp.Body).Decode(rpcResp)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s response: %v", ErrProtocol, method, err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("%w: %s: %s (code %d)", ErrProtocol, method, rpcResp.Error.Message, rpcResp.Error.Code)
	}
	return rpcResp.Result, nil
}

// readEventStream scans an SSE body for the response matching id.
func readEventStream(resp *http.Response, id string) (*rpcResponse, error) {
	dec := ssestream.NewDecoder(resp)
	defer dec.Close()

	for dec.Next() {
		data := dec.Event().Data
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		var msg rpcResponse
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		var got string
		if err := json.Unmarshal(msg.ID, &got); err == nil && got == id {
			return &msg, nil
		}
	}
	if err := dec.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("no response for request %s in event stream", id)
}
