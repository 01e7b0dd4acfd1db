package agent

import (
	"context"
	"sync"
	"time"

	"github.com/armatrix/sandbox-agent/conversation"
	"github.com/armatrix/sandbox-agent/internal/budget"
	"github.com/armatrix/sandbox-agent/mcp"
)

// Session holds the state of one run: the conversation, the turn budget and
// the tool server connection.
type Session struct {
	ID           string
	Conversation *conversation.Conversation
	Budget       *budget.TurnBudget
	CreatedAt    time.Time

	tracker   *budget.Tracker
	transport mcp.Transport
	registry  *mcp.Registry

	closeOnce sync.Once
	closeErr  error
}

// NewSession creates a session seeded with task as the first user turn.
func NewSession(task string, maxTurns int) *Session {
	return &Session{
		ID:           generateID(PrefixSession),
		Conversation: conversation.New(task),
		Budget:       budget.NewTurnBudget(maxTurns),
		CreatedAt:    time.Now(),
		tracker:      budget.NewTracker(nil),
	}
}

// attach binds the tool server connection. It must be called once, before
// connect.
func (s *Session) attach(t mcp.Transport) {
	s.transport = t
	s.registry = mcp.NewRegistry(t)
}

// connect opens the tool server connection and discovers its tools.
func (s *Session) connect(ctx context.Context) ([]conversation.ToolDescriptor, error) {
	if err := s.transport.Connect(ctx); err != nil {
		return nil, &ConnectionError{Op: "connect", Err: err}
	}
	tools, err := s.registry.Discover(ctx)
	if err != nil {
		return nil, &ConnectionError{Op: "discover", Err: err}
	}
	return tools, nil
}

// Tools returns the discovered tool catalog, empty before discovery.
func (s *Session) Tools() []conversation.ToolDescriptor {
	if s.registry == nil {
		return nil
	}
	return s.registry.Tools()
}

// Close releases the tool server connection. Only the first call reaches the
// transport; later calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.transport == nil {
			return
		}
		s.closeErr = s.transport.Close()
	})
	return s.closeErr
}
