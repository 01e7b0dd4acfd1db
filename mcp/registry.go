package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/armatrix/sandbox-agent/conversation"
	"github.com/armatrix/sandbox-agent/internal/schema"
)

// Registry discovers the tool catalog of a connected server and caches it
// for the rest of the session.
type Registry struct {
	transport Transport

	mu         sync.RWMutex
	discovered bool
	tools      []conversation.ToolDescriptor
	byName     map[string]int
}

// NewRegistry creates a registry backed by the given transport. The
// transport must already be connected before Discover is called.
func NewRegistry(t Transport) *Registry {
	return &Registry{transport: t}
}

// Discover queries the server once and returns the tool descriptors. Later
// calls return the cached set without contacting the server.
func (r *Registry) Discover(ctx context.Context) ([]conversation.ToolDescriptor, error) {
	r.mu.RLock()
	if r.discovered {
		tools := r.snapshot()
		r.mu.RUnlock()
		return tools, nil
	}
	r.mu.RUnlock()
	return r.Refresh(ctx)
}

// Refresh re-queries the server and replaces the cached set. A failed
// refresh leaves the previous set untouched.
func (r *Registry) Refresh(ctx context.Context) ([]conversation.ToolDescriptor, error) {
	infos, err := r.transport.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	tools := make([]conversation.ToolDescriptor, 0, len(infos))
	byName := make(map[string]int, len(infos))
	for _, info := range infos {
		if info.Name == "" {
			return nil, fmt.Errorf("%w: tool with empty name", ErrMalformedListing)
		}
		if _, dup := byName[info.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate tool %q", ErrMalformedListing, info.Name)
		}
		if err := schema.Validate(info.InputSchema); err != nil {
			return nil, fmt.Errorf("%w: tool %q: %v", ErrMalformedListing, info.Name, err)
		}
		byName[info.Name] = len(tools)
		tools = append(tools, conversation.ToolDescriptor{
			Name:        info.Name,
			Description: info.Description,
			InputSchema: info.InputSchema,
		})
	}

	r.mu.Lock()
	r.tools = tools
	r.byName = byName
	r.discovered = true
	out := r.snapshot()
	r.mu.Unlock()
	return out, nil
}

// Tools returns the cached descriptors, or nil before discovery.
func (r *Registry) Tools() []conversation.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot()
}

// Lookup finds a discovered tool by name.
func (r *Registry) Lookup(name string) (conversation.ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byName[name]
	if !ok {
		return conversation.ToolDescriptor{}, false
	}
	return r.tools[i], true
}

// Names returns the discovered tool names in server order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.tools))
	for i, t := range r.tools {
		names[i] = t.Name
	}
	return names
}

// caller must hold r.mu.
func (r *Registry) snapshot() []conversation.ToolDescriptor {
	if r.tools == nil {
		return nil
	}
	out := make([]conversation.ToolDescriptor, len(r.tools))
	copy(out, r.tools)
	return out
}
