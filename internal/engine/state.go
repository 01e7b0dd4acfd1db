package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/armatrix/sandbox-agent/conversation"
)

// State is the controller state. Completed, Aborted and BudgetExceeded are
// terminal.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateAborted
	StateBudgetExceeded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateBudgetExceeded:
		return "budget_exceeded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted || s == StateBudgetExceeded
}

// ResultPolicy selects how tool outcomes are fed back to the model.
type ResultPolicy string

const (
	// ResultPolicyStructured appends one user turn of tool_result blocks.
	ResultPolicyStructured ResultPolicy = "structured"

	// ResultPolicyContinue appends a plain text turn carrying the outcomes
	// and ContinueInstruction, for providers without tool_result blocks.
	ResultPolicyContinue ResultPolicy = "continue"
)

// ContinueInstruction closes the text turn under ResultPolicyContinue.
const ContinueInstruction = "Continue based on the tool results."

// ParseResultPolicy maps a configuration string to a ResultPolicy.
func ParseResultPolicy(s string) (ResultPolicy, error) {
	switch ResultPolicy(s) {
	case "":
		return ResultPolicyStructured, nil
	case ResultPolicyStructured, ResultPolicyContinue:
		return ResultPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown result policy %q", s)
	}
}

// StreamError reports a provider stream that broke mid-turn.
type StreamError struct {
	Turn int
	Err  error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream failed at turn %d: %v", e.Turn, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// ResultInfo contains the data for the final result event.
type ResultInfo struct {
	State      State
	SessionID  string
	NumTurns   int
	MaxTurns   int
	Duration   time.Duration
	Usage      conversation.Usage
	TotalCost  decimal.Decimal
	StopReason conversation.StopReason
	FinalText  string

	// Err is set only when State is StateAborted.
	Err error
}

// IsError reports whether the run ended in StateAborted.
func (r ResultInfo) IsError() bool { return r.State == StateAborted }
