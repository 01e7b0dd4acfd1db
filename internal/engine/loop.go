// Package engine runs the agentic tool-use loop: one streamed model turn at a
// time, tool calls dispatched between turns, until the model finishes or the
// turn budget runs out.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/armatrix/sandbox-agent/conversation"
	"github.com/armatrix/sandbox-agent/internal/budget"
)

// TurnRequest is everything a driver needs to produce one assistant message.
type TurnRequest struct {
	System string
	Turns  []conversation.Turn
	Tools  []conversation.ToolDescriptor
}

// StreamObserver receives progress while a turn is streaming.
type StreamObserver interface {
	OnStream(delta string)
	OnToolUseStart(name string)
}

// Driver streams one model turn. Implementations consume the provider stream
// fully before returning and never retry internally.
type Driver interface {
	Model() string
	RunTurn(ctx context.Context, req TurnRequest, obs StreamObserver) (*conversation.Message, error)
}

// ToolExecutor runs the tool calls of one assistant turn. Outcomes are
// returned in call order; failures are folded into the outcomes.
type ToolExecutor interface {
	ExecuteAll(ctx context.Context, calls []conversation.Block) []conversation.Outcome
}

// EventSink receives events from the loop. The loop calls these methods instead
// of importing root package event types, breaking the import cycle.
type EventSink interface {
	StreamObserver
	OnSystem(sessionID, model string, tools []string)
	OnTurnStart(turn int)
	OnAssistant(turn int, msg *conversation.Message)
	OnToolsExecuting(turn int, calls []conversation.Block)
	OnToolResult(turn int, call conversation.Block, out conversation.Outcome)
	OnResult(info ResultInfo)
}

// LoopConfig holds everything the agent loop needs to execute.
type LoopConfig struct {
	Driver Driver
	Tools  ToolExecutor

	// Conversation is the transcript the loop appends to.
	Conversation *conversation.Conversation

	// ToolDescriptors is the discovered catalog advertised on every turn.
	ToolDescriptors []conversation.ToolDescriptor

	SystemPrompt string

	// Budget caps model calls. Nil means budget.DefaultMaxTurns.
	Budget *budget.TurnBudget

	// Tracker accumulates usage and cost. Nil disables cost accounting.
	Tracker *budget.Tracker

	ResultPolicy ResultPolicy

	SessionID string
	Sink      EventSink
	Logger    *zap.Logger
}

// RunLoop drives the controller from Running to a terminal state. It runs in
// the calling goroutine, reports progress through cfg.Sink and returns the
// same ResultInfo passed to Sink.OnResult.
func RunLoop(ctx context.Context, cfg LoopConfig) ResultInfo {
	start := time.Now()
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	turns := cfg.Budget
	if turns == nil {
		turns = budget.NewTurnBudget(0)
	}
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = budget.NewTracker(nil)
	}

	names := make([]string, len(cfg.ToolDescriptors))
	for i, d := range cfg.ToolDescriptors {
		names[i] = d.Name
	}
	cfg.Sink.OnSystem(cfg.SessionID, cfg.Driver.Model(), names)

	finish := func(info ResultInfo) ResultInfo {
		info.SessionID = cfg.SessionID
		info.NumTurns = turns.Current()
		info.MaxTurns = turns.Max()
		info.Duration = time.Since(start)
		info.Usage = tracker.TotalUsage()
		info.TotalCost = tracker.TotalCost()
		cfg.Sink.OnResult(info)
		return info
	}

	for {
		if err := ctx.Err(); err != nil {
			log.Warn("run cancelled", zap.Int("turn", turns.Current()), zap.Error(err))
			return finish(ResultInfo{State: StateAborted, Err: err})
		}

		if !turns.Next() {
			log.Info("turn budget exhausted", zap.Int("max_turns", turns.Max()))
			return finish(ResultInfo{State: StateBudgetExceeded})
		}
		turn := turns.Current()
		cfg.Sink.OnTurnStart(turn)

		req := TurnRequest{
			System: cfg.SystemPrompt,
			Turns:  cfg.Conversation.Turns(),
			Tools:  cfg.ToolDescriptors,
		}
		msg, err := cfg.Driver.RunTurn(ctx, req, cfg.Sink)
		if err != nil {
			serr := &StreamError{Turn: turn, Err: err}
			log.Error("model turn failed", zap.Int("turn", turn), zap.Error(err))
			return finish(ResultInfo{State: StateAborted, Err: serr})
		}

		tracker.RecordUsage(cfg.Driver.Model(), msg.Usage)
		cfg.Conversation.AppendAssistant(msg)
		cfg.Sink.OnAssistant(turn, msg)

		calls := msg.ToolUses()
		if len(calls) == 0 || msg.StopReason != conversation.StopToolUse {
			log.Debug("model finished", zap.Int("turn", turn), zap.String("stop_reason", string(msg.StopReason)))
			return finish(ResultInfo{
				State:      StateCompleted,
				StopReason: msg.StopReason,
				FinalText:  msg.Text(),
			})
		}

		cfg.Sink.OnToolsExecuting(turn, calls)
		outcomes := cfg.Tools.ExecuteAll(ctx, calls)
		if len(outcomes) != len(calls) {
			err := fmt.Errorf("executor returned %d outcomes for %d calls", len(outcomes), len(calls))
			return finish(ResultInfo{State: StateAborted, Err: err})
		}

		results := make([]conversation.Block, len(calls))
		for i, call := range calls {
			cfg.Sink.OnToolResult(turn, call, outcomes[i])
			results[i] = outcomes[i].ResultBlock(call)
		}

		if cfg.ResultPolicy == ResultPolicyContinue {
			cfg.Conversation.AppendUser(conversation.TextBlock(continuationText(calls, results)))
			continue
		}
		if err := cfg.Conversation.AppendToolResults(results); err != nil {
			log.Error("tool results rejected", zap.Int("turn", turn), zap.Error(err))
			return finish(ResultInfo{State: StateAborted, Err: err})
		}
	}
}

// continuationText renders tool outcomes as prose followed by
// ContinueInstruction.
func continuationText(calls, results []conversation.Block) string {
	var sb strings.Builder
	for i, call := range calls {
		fmt.Fprintf(&sb, "[Result: %s]\n%s\n\n", call.Name, results[i].Content)
	}
	sb.WriteString(ContinueInstruction)
	return sb.String()
}
