package agent

import (
	"time"

	"go.uber.org/zap"

	"github.com/armatrix/sandbox-agent/internal/engine"
	"github.com/armatrix/sandbox-agent/mcp"
)

// AgentOption configures an Agent via the functional options pattern.
type AgentOption func(*agentOptions)

// Driver streams one model turn. Supplying one with WithDriver replaces the
// provider client built from WithProvider.
type Driver = engine.Driver

// ResultPolicy selects how tool outcomes are fed back to the model.
type ResultPolicy = engine.ResultPolicy

const (
	ResultPolicyStructured = engine.ResultPolicyStructured
	ResultPolicyContinue   = engine.ResultPolicyContinue
)

// agentOptions holds all configurable fields set via AgentOption functions.
type agentOptions struct {
	provider        Provider
	model           string
	maxOutputTokens int64
	maxTurns        int
	systemPrompt    string
	resultPolicy    ResultPolicy

	apiKey  string
	baseURL string
	driver  Driver

	toolServer  *mcp.ServerConfig
	transport   mcp.Transport
	toolTimeout time.Duration

	logger           *zap.Logger
	streamBufferSize int
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (o *agentOptions) applyDefaults() {
	if o.provider == "" {
		o.provider = ProviderAnthropic
	}
	if o.model == "" {
		o.model = DefaultModel
		if o.provider == ProviderOpenAI {
			o.model = DefaultOpenAIModel
		}
	}
	if o.maxOutputTokens <= 0 {
		o.maxOutputTokens = DefaultMaxOutputTokens
	}
	if o.maxTurns <= 0 {
		o.maxTurns = DefaultMaxTurns
	}
	if o.resultPolicy == "" {
		o.resultPolicy = ResultPolicyStructured
	}
	if o.toolTimeout <= 0 {
		o.toolTimeout = mcp.DefaultToolTimeout
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.streamBufferSize <= 0 {
		o.streamBufferSize = DefaultStreamBufferSize
	}
}

// resolveOptions applies all option functions and fills defaults.
func resolveOptions(opts []AgentOption) agentOptions {
	var o agentOptions
	for _, fn := range opts {
		fn(&o)
	}
	o.applyDefaults()
	return o
}

// --- Model ---

// WithProvider selects the model API. Defaults to ProviderAnthropic.
func WithProvider(p Provider) AgentOption {
	return func(o *agentOptions) { o.provider = p }
}

// WithModel sets the model id. The default depends on the provider.
func WithModel(model string) AgentOption {
	return func(o *agentOptions) { o.model = model }
}

// WithMaxOutputTokens sets the maximum output tokens per response.
func WithMaxOutputTokens(tokens int64) AgentOption {
	return func(o *agentOptions) { o.maxOutputTokens = tokens }
}

// WithMaxTurns caps model calls per run. Values <= 0 select DefaultMaxTurns.
func WithMaxTurns(n int) AgentOption {
	return func(o *agentOptions) { o.maxTurns = n }
}

// WithSystemPrompt sets the system prompt sent on every turn.
func WithSystemPrompt(prompt string) AgentOption {
	return func(o *agentOptions) { o.systemPrompt = prompt }
}

// WithResultPolicy selects how tool outcomes are returned to the model.
func WithResultPolicy(p ResultPolicy) AgentOption {
	return func(o *agentOptions) { o.resultPolicy = p }
}

// WithAPIKey sets the provider API key. Without it the provider client reads
// its usual environment variable.
func WithAPIKey(key string) AgentOption {
	return func(o *agentOptions) { o.apiKey = key }
}

// WithBaseURL points the provider client at a different endpoint.
func WithBaseURL(url string) AgentOption {
	return func(o *agentOptions) { o.baseURL = url }
}

// WithDriver replaces the provider client.
func WithDriver(d Driver) AgentOption {
	return func(o *agentOptions) { o.driver = d }
}

// --- Tools ---

// WithToolServer configures the MCP server each run connects to.
func WithToolServer(cfg mcp.ServerConfig) AgentOption {
	return func(o *agentOptions) { o.toolServer = &cfg }
}

// WithTransport supplies a ready transport instead of a server config. The
// run connects and closes it.
func WithTransport(t mcp.Transport) AgentOption {
	return func(o *agentOptions) { o.transport = t }
}

// WithToolTimeout bounds each tool call. Defaults to mcp.DefaultToolTimeout.
func WithToolTimeout(d time.Duration) AgentOption {
	return func(o *agentOptions) { o.toolTimeout = d }
}

// --- Runtime ---

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) AgentOption {
	return func(o *agentOptions) { o.logger = l }
}

// WithStreamBufferSize sets the event channel buffer size.
func WithStreamBufferSize(n int) AgentOption {
	return func(o *agentOptions) { o.streamBufferSize = n }
}
