package agent

import (
	"context"
	"fmt"

	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	openaiopt "github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/armatrix/sandbox-agent/conversation"
	"github.com/armatrix/sandbox-agent/internal/engine"
	"github.com/armatrix/sandbox-agent/internal/provider"
	"github.com/armatrix/sandbox-agent/mcp"
)

// Agent is a stateless execution engine that holds configuration.
// The same Agent can be safely shared across multiple goroutines; every Run
// opens its own Session and tool server connection.
type Agent struct {
	opts agentOptions
}

// NewAgent creates a new Agent with the given options.
func NewAgent(opts ...AgentOption) *Agent {
	return &Agent{opts: resolveOptions(opts)}
}

// Model returns the configured model id.
func (a *Agent) Model() string {
	if a.opts.driver != nil {
		return a.opts.driver.Model()
	}
	return a.opts.model
}

// MaxTurns returns the configured turn budget.
func (a *Agent) MaxTurns() int {
	return a.opts.maxTurns
}

// Run starts a run for task with a new session.
// Returns an AgentStream for iterating over events.
func (a *Agent) Run(ctx context.Context, task string) *AgentStream {
	session := NewSession(task, a.opts.maxTurns)
	eventCh := make(chan Event, a.opts.streamBufferSize)
	stream := newStream(eventCh, session)

	go func() {
		defer close(eventCh)
		a.run(ctx, session, &channelSink{ch: eventCh})
	}()

	return stream
}

func (a *Agent) run(ctx context.Context, session *Session, sink *channelSink) {
	log := a.opts.logger.With(zap.String("session_id", session.ID))

	abort := func(err error) {
		sink.OnResult(engine.ResultInfo{
			State:     engine.StateAborted,
			SessionID: session.ID,
			MaxTurns:  session.Budget.Max(),
			Err:       err,
		})
	}

	driver, err := a.newDriver()
	if err != nil {
		log.Error("model driver setup failed", zap.Error(err))
		abort(err)
		return
	}

	transport, err := a.newTransport()
	if err != nil {
		cerr := &ConnectionError{Op: "configure", Err: err}
		log.Error("tool server setup failed", zap.Error(cerr))
		abort(cerr)
		return
	}
	session.attach(transport)

	defer func() {
		cerr := session.Close()
		if cerr != nil {
			log.Warn("tool server close failed", zap.Error(cerr))
		}
		sink.ch <- &ClosedEvent{Err: cerr}
	}()

	tools, err := session.connect(ctx)
	if err != nil {
		log.Error("tool discovery failed", zap.Error(err))
		abort(err)
		return
	}
	log.Info("tools discovered", zap.Int("count", len(tools)), zap.String("model", driver.Model()))

	executor := mcp.NewExecutor(session.registry, transport,
		mcp.WithTimeout(a.opts.toolTimeout),
		mcp.WithLogger(log),
	)

	engine.RunLoop(ctx, engine.LoopConfig{
		Driver:          driver,
		Tools:           executor,
		Conversation:    session.Conversation,
		ToolDescriptors: tools,
		SystemPrompt:    a.opts.systemPrompt,
		Budget:          session.Budget,
		Tracker:         session.tracker,
		ResultPolicy:    a.opts.resultPolicy,
		SessionID:       session.ID,
		Sink:            sink,
		Logger:          log,
	})
}

func (a *Agent) newDriver() (engine.Driver, error) {
	if a.opts.driver != nil {
		return a.opts.driver, nil
	}

	switch a.opts.provider {
	case ProviderAnthropic:
		var opts []anthropicopt.RequestOption
		if a.opts.apiKey != "" {
			opts = append(opts, anthropicopt.WithAPIKey(a.opts.apiKey))
		}
		if a.opts.baseURL != "" {
			opts = append(opts, anthropicopt.WithBaseURL(a.opts.baseURL))
		}
		return provider.NewAnthropic(provider.NewAnthropicClient(opts...), a.opts.model, a.opts.maxOutputTokens), nil
	case ProviderOpenAI:
		var opts []openaiopt.RequestOption
		if a.opts.apiKey != "" {
			opts = append(opts, openaiopt.WithAPIKey(a.opts.apiKey))
		}
		if a.opts.baseURL != "" {
			opts = append(opts, openaiopt.WithBaseURL(a.opts.baseURL))
		}
		return provider.NewOpenAI(provider.NewOpenAIClient(opts...), a.opts.model, a.opts.maxOutputTokens), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", a.opts.provider)
	}
}

func (a *Agent) newTransport() (mcp.Transport, error) {
	if a.opts.transport != nil {
		return a.opts.transport, nil
	}
	if a.opts.toolServer == nil {
		return nil, fmt.Errorf("%w: no tool server configured", mcp.ErrInvalidConfig)
	}
	return mcp.NewTransport(*a.opts.toolServer)
}

// channelSink implements engine.EventSink by sending events to a channel.
type channelSink struct {
	ch chan Event
}

func (s *channelSink) OnSystem(sessionID, model string, tools []string) {
	s.ch <- &SystemEvent{SessionID: sessionID, Model: model, Tools: tools}
}

func (s *channelSink) OnTurnStart(turn int) {
	s.ch <- &TurnStartEvent{Turn: turn}
}

func (s *channelSink) OnStream(delta string) {
	s.ch <- &StreamEvent{Delta: delta}
}

func (s *channelSink) OnToolUseStart(name string) {
	s.ch <- &ToolUseStartEvent{Name: name}
}

func (s *channelSink) OnAssistant(turn int, msg *conversation.Message) {
	s.ch <- &AssistantEvent{Turn: turn, Message: msg}
}

func (s *channelSink) OnToolsExecuting(turn int, calls []conversation.Block) {
	s.ch <- &ToolsExecutingEvent{Turn: turn, Calls: calls}
}

func (s *channelSink) OnToolResult(turn int, call conversation.Block, out conversation.Outcome) {
	s.ch <- &ToolResultEvent{Turn: turn, Call: call, Outcome: out}
}

func (s *channelSink) OnResult(info engine.ResultInfo) {
	s.ch <- &ResultEvent{
		State:      info.State,
		SessionID:  info.SessionID,
		NumTurns:   info.NumTurns,
		MaxTurns:   info.MaxTurns,
		Duration:   info.Duration,
		Usage:      info.Usage,
		TotalCost:  info.TotalCost,
		StopReason: info.StopReason,
		Result:     info.FinalText,
		Err:        info.Err,
	}
}
