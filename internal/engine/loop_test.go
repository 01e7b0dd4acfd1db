package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armatrix/sandbox-agent/conversation"
	"github.com/armatrix/sandbox-agent/internal/budget"
)

// scriptedDriver replays canned messages, one per turn. Once the script is
// exhausted it repeats the last entry.
type scriptedDriver struct {
	mu       sync.Mutex
	script   []func(turn int) (*conversation.Message, error)
	requests []TurnRequest
}

func (d *scriptedDriver) Model() string { return "claude-sonnet-4-5-20250929" }

func (d *scriptedDriver) RunTurn(_ context.Context, req TurnRequest, obs StreamObserver) (*conversation.Message, error) {
	d.mu.Lock()
	d.requests = append(d.requests, req)
	n := len(d.requests)
	d.mu.Unlock()

	i := n - 1
	if i >= len(d.script) {
		i = len(d.script) - 1
	}
	msg, err := d.script[i](n)
	if msg != nil {
		for _, b := range msg.Content {
			switch b.Type {
			case conversation.BlockText:
				obs.OnStream(b.Text)
			case conversation.BlockToolUse:
				obs.OnToolUseStart(b.Name)
			}
		}
	}
	return msg, err
}

func (d *scriptedDriver) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

func endTurn(text string) func(int) (*conversation.Message, error) {
	return func(int) (*conversation.Message, error) {
		return &conversation.Message{
			Content:    []conversation.Block{conversation.TextBlock(text)},
			StopReason: conversation.StopEndTurn,
			Usage:      conversation.Usage{InputTokens: 100, OutputTokens: 10},
		}, nil
	}
}

func toolTurn(names ...string) func(int) (*conversation.Message, error) {
	return func(turn int) (*conversation.Message, error) {
		msg := &conversation.Message{
			Content:    []conversation.Block{conversation.TextBlock("Let me check.")},
			StopReason: conversation.StopToolUse,
			Usage:      conversation.Usage{InputTokens: 100, OutputTokens: 10},
		}
		for i, name := range names {
			id := fmt.Sprintf("toolu_%d_%d", turn, i)
			msg.Content = append(msg.Content, conversation.ToolUseBlock(id, name, json.RawMessage(`{"path":"/blaxel/app"}`)))
		}
		return msg, nil
	}
}

// fakeExecutor fails every tool whose name starts with "bad".
type fakeExecutor struct {
	mu      sync.Mutex
	batches [][]string
}

func (e *fakeExecutor) ExecuteAll(_ context.Context, calls []conversation.Block) []conversation.Outcome {
	names := make([]string, len(calls))
	outs := make([]conversation.Outcome, len(calls))
	for i, c := range calls {
		names[i] = c.Name
		if len(c.Name) >= 3 && c.Name[:3] == "bad" {
			outs[i] = conversation.Err("no such file")
		} else {
			outs[i] = conversation.Ok(c.Name + " output")
		}
	}
	e.mu.Lock()
	e.batches = append(e.batches, names)
	e.mu.Unlock()
	return outs
}

type recordingSink struct {
	mu         sync.Mutex
	system     []string
	turnStarts []int
	deltas     []string
	toolStarts []string
	assistant  int
	executing  []int
	results    []conversation.Outcome
	final      []ResultInfo
}

func (s *recordingSink) OnSystem(_, _ string, tools []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.system = tools
}
func (s *recordingSink) OnTurnStart(turn int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnStarts = append(s.turnStarts, turn)
}
func (s *recordingSink) OnStream(delta string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltas = append(s.deltas, delta)
}
func (s *recordingSink) OnToolUseStart(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolStarts = append(s.toolStarts, name)
}
func (s *recordingSink) OnAssistant(int, *conversation.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assistant++
}
func (s *recordingSink) OnToolsExecuting(_ int, calls []conversation.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executing = append(s.executing, len(calls))
}
func (s *recordingSink) OnToolResult(_ int, _ conversation.Block, out conversation.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, out)
}
func (s *recordingSink) OnResult(info ResultInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.final = append(s.final, info)
}

func newConfig(d Driver, maxTurns int) (LoopConfig, *recordingSink, *fakeExecutor) {
	sink := &recordingSink{}
	exec := &fakeExecutor{}
	return LoopConfig{
		Driver:       d,
		Tools:        exec,
		Conversation: conversation.New("Create a Next.js app"),
		ToolDescriptors: []conversation.ToolDescriptor{
			{Name: "read_file"}, {Name: "write_file"},
		},
		Budget:    budget.NewTurnBudget(maxTurns),
		Tracker:   budget.NewTracker(nil),
		SessionID: "sess-1",
		Sink:      sink,
	}, sink, exec
}

func TestRunLoop_EndTurnCompletesAfterOneCall(t *testing.T) {
	d := &scriptedDriver{script: []func(int) (*conversation.Message, error){endTurn("All done.")}}
	cfg, sink, exec := newConfig(d, 50)

	res := RunLoop(context.Background(), cfg)

	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, 1, d.calls())
	assert.Equal(t, 1, res.NumTurns)
	assert.Equal(t, "All done.", res.FinalText)
	assert.Equal(t, conversation.StopEndTurn, res.StopReason)
	assert.NoError(t, res.Err)
	assert.Empty(t, exec.batches)
	assert.Equal(t, []string{"read_file", "write_file"}, sink.system)
	assert.Equal(t, []string{"All done."}, sink.deltas)
	require.Len(t, sink.final, 1)
	assert.Equal(t, res.State, sink.final[0].State)
	assert.Equal(t, 2, cfg.Conversation.Len())
}

func TestRunLoop_ToolResultsMatchToolUses(t *testing.T) {
	d := &scriptedDriver{script: []func(int) (*conversation.Message, error){
		toolTurn("read_file", "bad_path", "write_file"),
		endTurn("Finished."),
	}}
	cfg, sink, exec := newConfig(d, 50)

	res := RunLoop(context.Background(), cfg)
	require.Equal(t, StateCompleted, res.State)
	assert.Equal(t, 2, d.calls())
	assert.Equal(t, [][]string{{"read_file", "bad_path", "write_file"}}, exec.batches)
	assert.Equal(t, []string{"read_file", "bad_path", "write_file"}, sink.toolStarts)
	assert.Equal(t, []int{3}, sink.executing)

	turns := cfg.Conversation.Turns()
	require.Len(t, turns, 4)
	uses := turns[1].ToolUses()
	results := turns[2].Content
	require.Len(t, results, len(uses))

	ids := map[string]bool{}
	for _, u := range uses {
		ids[u.ID] = true
	}
	for _, r := range results {
		assert.Equal(t, conversation.BlockToolResult, r.Type)
		assert.True(t, ids[r.ToolUseID], "foreign id %s", r.ToolUseID)
		delete(ids, r.ToolUseID)
	}
	assert.Empty(t, ids)

	// The failing tool is reported to the model and the session carries on.
	assert.True(t, results[1].IsError)
	assert.Contains(t, results[1].Content, "no such file")
	assert.Equal(t, "Error: no such file", results[1].Content)
	assert.False(t, results[0].IsError)
	assert.Equal(t, "read_file output", results[0].Content)

	// The second model call sees the tool results.
	assert.Len(t, d.requests[1].Turns, 3)
}

func TestRunLoop_BudgetExceeded(t *testing.T) {
	d := &scriptedDriver{script: []func(int) (*conversation.Message, error){toolTurn("read_file")}}
	cfg, sink, _ := newConfig(d, 3)

	res := RunLoop(context.Background(), cfg)

	assert.Equal(t, StateBudgetExceeded, res.State)
	assert.Equal(t, 3, d.calls())
	assert.Equal(t, 3, res.NumTurns)
	assert.Equal(t, 3, res.MaxTurns)
	assert.NoError(t, res.Err)
	assert.False(t, res.IsError())
	assert.Equal(t, []int{1, 2, 3}, sink.turnStarts)
}

func TestRunLoop_NeverExceedsBudget(t *testing.T) {
	for _, max := range []int{1, 2, 5, 10} {
		d := &scriptedDriver{script: []func(int) (*conversation.Message, error){toolTurn("read_file")}}
		cfg, _, _ := newConfig(d, max)
		res := RunLoop(context.Background(), cfg)
		assert.Equal(t, max, d.calls())
		assert.LessOrEqual(t, res.NumTurns, max)
	}
}

func TestRunLoop_StreamErrorCarriesTurn(t *testing.T) {
	broken := errors.New("unexpected EOF")
	d := &scriptedDriver{script: []func(int) (*conversation.Message, error){
		toolTurn("read_file"),
		func(int) (*conversation.Message, error) { return nil, broken },
	}}
	cfg, _, _ := newConfig(d, 50)

	res := RunLoop(context.Background(), cfg)

	assert.Equal(t, StateAborted, res.State)
	assert.True(t, res.IsError())
	var serr *StreamError
	require.ErrorAs(t, res.Err, &serr)
	assert.Equal(t, 2, serr.Turn)
	assert.ErrorIs(t, res.Err, broken)
	assert.Contains(t, res.Err.Error(), "turn 2")
	assert.Equal(t, 2, d.calls(), "failed turns are not retried")
}

func TestRunLoop_CancelledBeforeFirstTurn(t *testing.T) {
	d := &scriptedDriver{script: []func(int) (*conversation.Message, error){endTurn("x")}}
	cfg, _, _ := newConfig(d, 50)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := RunLoop(ctx, cfg)

	assert.Equal(t, StateAborted, res.State)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, 0, d.calls())
}

func TestRunLoop_CancelledBetweenTurns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := &scriptedDriver{script: []func(int) (*conversation.Message, error){
		func(turn int) (*conversation.Message, error) {
			cancel()
			return toolTurn("read_file")(turn)
		},
	}}
	cfg, _, _ := newConfig(d, 50)

	res := RunLoop(ctx, cfg)
	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, 1, d.calls())
}

func TestRunLoop_NonToolStopReasonCompletes(t *testing.T) {
	d := &scriptedDriver{script: []func(int) (*conversation.Message, error){
		func(turn int) (*conversation.Message, error) {
			msg, _ := toolTurn("read_file")(turn)
			msg.StopReason = conversation.StopMaxTokens
			return msg, nil
		},
	}}
	cfg, _, exec := newConfig(d, 50)

	res := RunLoop(context.Background(), cfg)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, conversation.StopMaxTokens, res.StopReason)
	assert.Empty(t, exec.batches)
}

func TestRunLoop_ContinuePolicy(t *testing.T) {
	d := &scriptedDriver{script: []func(int) (*conversation.Message, error){
		toolTurn("read_file", "bad_path"),
		endTurn("ok"),
	}}
	cfg, _, _ := newConfig(d, 50)
	cfg.ResultPolicy = ResultPolicyContinue

	res := RunLoop(context.Background(), cfg)
	require.Equal(t, StateCompleted, res.State)

	turns := cfg.Conversation.Turns()
	require.Len(t, turns, 4)
	follow := turns[2]
	assert.Equal(t, conversation.RoleUser, follow.Role)
	require.Len(t, follow.Content, 1)
	assert.Equal(t, conversation.BlockText, follow.Content[0].Type)
	assert.Contains(t, follow.Text(), "read_file output")
	assert.Contains(t, follow.Text(), "Error: no such file")
	assert.True(t, len(follow.Text()) > len(ContinueInstruction))
	assert.Equal(t, ContinueInstruction, follow.Text()[len(follow.Text())-len(ContinueInstruction):])
}

func TestRunLoop_TracksUsage(t *testing.T) {
	d := &scriptedDriver{script: []func(int) (*conversation.Message, error){
		toolTurn("read_file"),
		endTurn("done"),
	}}
	cfg, _, _ := newConfig(d, 50)

	res := RunLoop(context.Background(), cfg)
	assert.Equal(t, int64(200), res.Usage.InputTokens)
	assert.Equal(t, int64(20), res.Usage.OutputTokens)
	assert.True(t, res.TotalCost.IsPositive())
	assert.Equal(t, "sess-1", res.SessionID)
}

func TestParseResultPolicy(t *testing.T) {
	p, err := ParseResultPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ResultPolicyStructured, p)

	p, err = ParseResultPolicy("continue")
	require.NoError(t, err)
	assert.Equal(t, ResultPolicyContinue, p)

	_, err = ParseResultPolicy("yolo")
	assert.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "budget_exceeded", StateBudgetExceeded.String())
	assert.True(t, StateAborted.Terminal())
	assert.False(t, StateRunning.Terminal())
}
