package agent

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"

	"github.com/armatrix/sandbox-agent/internal/budget"
)

// Model and loop defaults.
const (
	// DefaultModel is the Claude model used when no model is specified.
	DefaultModel = string(anthropic.ModelClaudeSonnet4_5_20250929)

	// DefaultOpenAIModel is used with ProviderOpenAI when no model is specified.
	DefaultOpenAIModel = string(openai.ChatModelGPT4o)

	// DefaultMaxOutputTokens caps each model response.
	DefaultMaxOutputTokens = 30_000

	// DefaultMaxTurns caps model calls per run.
	DefaultMaxTurns = budget.DefaultMaxTurns

	// DefaultStreamBufferSize is the channel buffer size for streaming events.
	DefaultStreamBufferSize = 64
)

// Provider selects the model API.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// ParseProvider maps a configuration string to a Provider. Empty selects
// ProviderAnthropic.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case "":
		return ProviderAnthropic, nil
	case ProviderAnthropic, ProviderOpenAI:
		return Provider(s), nil
	default:
		return "", fmt.Errorf("unknown provider %q", s)
	}
}
