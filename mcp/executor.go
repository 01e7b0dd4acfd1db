package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/armatrix/sandbox-agent/conversation"
)

// DefaultToolTimeout bounds a single tool call.
const DefaultToolTimeout = 5 * time.Minute

// Executor invokes discovered tools and folds every failure mode into a
// conversation.Outcome. It never returns an error and never lets a panic
// escape.
type Executor struct {
	registry  *Registry
	transport Transport
	timeout   time.Duration
	logger    *zap.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTimeout sets the per-call timeout. Zero or negative disables it.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = d }
}

// WithLogger sets the logger used for per-call diagnostics.
func WithLogger(l *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor creates an executor that resolves names through registry and
// dispatches calls over transport.
func NewExecutor(registry *Registry, transport Transport, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry:  registry,
		transport: transport,
		timeout:   DefaultToolTimeout,
		logger:    zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Execute runs one tool call.
func (e *Executor) Execute(ctx context.Context, name string, args json.RawMessage) (out conversation.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool panicked", zap.String("tool", name), zap.Any("panic", r))
			out = conversation.Err(fmt.Sprintf("tool %s panicked: %v", name, r))
		}
	}()

	if _, ok := e.registry.Lookup(name); !ok {
		return conversation.Err(fmt.Sprintf("%v: %s", ErrToolNotFound, name))
	}

	params := map[string]any{}
	if len(args) > 0 && string(args) != "null" {
		if err := json.Unmarshal(args, &params); err != nil {
			return conversation.Err(fmt.Sprintf("invalid arguments for %s: %v", name, err))
		}
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := e.transport.CallTool(ctx, name, params)
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		e.logger.Warn("tool timed out", zap.String("tool", name), zap.Duration("timeout", e.timeout))
		return conversation.Err(fmt.Sprintf("tool %s timed out after %s", name, e.timeout))
	case err != nil:
		e.logger.Warn("tool call failed", zap.String("tool", name), zap.Error(err))
		return conversation.Err(err.Error())
	case res == nil:
		return conversation.Err(fmt.Sprintf("tool %s returned no result", name))
	case res.IsError:
		e.logger.Debug("tool reported error", zap.String("tool", name), zap.Duration("elapsed", elapsed))
		if res.Content == "" {
			return conversation.Err(fmt.Sprintf("tool %s reported an error", name))
		}
		return conversation.Err(res.Content)
	}

	e.logger.Debug("tool done", zap.String("tool", name), zap.Duration("elapsed", elapsed))
	return conversation.Ok(res.Content)
}

// ExecuteAll runs the tool_use blocks of one assistant turn concurrently and
// returns their outcomes in request order. Every call completes before
// ExecuteAll returns.
func (e *Executor) ExecuteAll(ctx context.Context, calls []conversation.Block) []conversation.Outcome {
	outcomes := make([]conversation.Outcome, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call conversation.Block) {
			defer wg.Done()
			outcomes[i] = e.Execute(ctx, call.Name, call.Input)
		}(i, call)
	}
	wg.Wait()

	return outcomes
}
