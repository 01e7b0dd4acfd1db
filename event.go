package agent

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/armatrix/sandbox-agent/conversation"
	"github.com/armatrix/sandbox-agent/internal/engine"
)

// EventType identifies the kind of event emitted by an AgentStream.
type EventType string

const (
	EventSystem         EventType = "system"
	EventTurnStart      EventType = "turn_start"
	EventStream         EventType = "stream"
	EventToolUseStart   EventType = "tool_use_start"
	EventAssistant      EventType = "assistant"
	EventToolsExecuting EventType = "tools_executing"
	EventToolResult     EventType = "tool_result"
	EventResult         EventType = "result"
	EventClosed         EventType = "closed"
)

// Event is the interface implemented by all events emitted through AgentStream.
type Event interface {
	Type() EventType
}

// State is the terminal state of a run.
type State = engine.State

const (
	StateCompleted      = engine.StateCompleted
	StateAborted        = engine.StateAborted
	StateBudgetExceeded = engine.StateBudgetExceeded
)

// Usage tracks token consumption for a run.
type Usage = conversation.Usage

// SystemEvent is emitted once the tool server is connected and its tools
// discovered, before the first model call.
type SystemEvent struct {
	SessionID string
	Model     string
	Tools     []string
}

func (e *SystemEvent) Type() EventType { return EventSystem }

// TurnStartEvent is emitted before each model call. Turn is 1-based.
type TurnStartEvent struct {
	Turn int
}

func (e *TurnStartEvent) Type() EventType { return EventTurnStart }

// StreamEvent is emitted for streaming text deltas as they arrive.
type StreamEvent struct {
	Delta string
}

func (e *StreamEvent) Type() EventType { return EventStream }

// ToolUseStartEvent is emitted when the model starts a tool call block.
type ToolUseStartEvent struct {
	Name string
}

func (e *ToolUseStartEvent) Type() EventType { return EventToolUseStart }

// AssistantEvent is emitted when the model produces a complete response.
type AssistantEvent struct {
	Turn    int
	Message *conversation.Message
}

func (e *AssistantEvent) Type() EventType { return EventAssistant }

// ToolsExecutingEvent is emitted before the tool calls of a turn run.
type ToolsExecutingEvent struct {
	Turn  int
	Calls []conversation.Block
}

func (e *ToolsExecutingEvent) Type() EventType { return EventToolsExecuting }

// ToolResultEvent carries the outcome of one tool call.
type ToolResultEvent struct {
	Turn    int
	Call    conversation.Block
	Outcome conversation.Outcome
}

func (e *ToolResultEvent) Type() EventType { return EventToolResult }

// ResultEvent is emitted once at the end of a run with summary information.
type ResultEvent struct {
	State      State
	SessionID  string
	NumTurns   int
	MaxTurns   int
	Duration   time.Duration
	Usage      Usage
	TotalCost  decimal.Decimal
	StopReason conversation.StopReason

	// Result is the final assistant text of a completed run.
	Result string

	// Err is the fatal error of an aborted run: a *ConnectionError, a
	// *StreamError, or the context error.
	Err error
}

func (e *ResultEvent) Type() EventType { return EventResult }

// IsError reports whether the run was aborted.
func (e *ResultEvent) IsError() bool { return e.State == StateAborted }

// ClosedEvent is the last event of a run, emitted after the tool server
// connection is released. Err is the close failure, if any; it never changes
// the run's outcome.
type ClosedEvent struct {
	Err error
}

func (e *ClosedEvent) Type() EventType { return EventClosed }
