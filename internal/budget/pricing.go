package budget

import (
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"github.com/shopspring/decimal"
)

// ModelPricing holds per-model token prices in USD per million tokens.
type ModelPricing struct {
	InputPerMTok         decimal.Decimal
	OutputPerMTok        decimal.Decimal
	LongInputPerMTok     decimal.Decimal // Premium rate when total input > LongContextThreshold
	LongOutputPerMTok    decimal.Decimal
	CacheWritePerMTok    decimal.Decimal
	CacheReadPerMTok     decimal.Decimal
	LongContextThreshold int64 // 0 = no long context support
}

var million = decimal.NewFromInt(1_000_000)

// CostForInput calculates the input cost considering long context threshold and cache tokens.
// totalInputTokens decides whether long context pricing applies.
func (p ModelPricing) CostForInput(inputTokens, cacheReadTokens, cacheWriteTokens, totalInputTokens int64) decimal.Decimal {
	rate := p.InputPerMTok
	if p.LongContextThreshold > 0 && totalInputTokens > p.LongContextThreshold {
		rate = p.LongInputPerMTok
	}

	cost := decimal.NewFromInt(inputTokens).Mul(rate).Div(million)
	cost = cost.Add(decimal.NewFromInt(cacheReadTokens).Mul(p.CacheReadPerMTok).Div(million))
	cost = cost.Add(decimal.NewFromInt(cacheWriteTokens).Mul(p.CacheWritePerMTok).Div(million))

	return cost
}

// CostForOutput calculates the output cost considering long context threshold.
func (p ModelPricing) CostForOutput(outputTokens, totalInputTokens int64) decimal.Decimal {
	rate := p.OutputPerMTok
	if p.LongContextThreshold > 0 && totalInputTokens > p.LongContextThreshold {
		rate = p.LongOutputPerMTok
	}

	return decimal.NewFromInt(outputTokens).Mul(rate).Div(million)
}

var sonnet45 = ModelPricing{
	InputPerMTok:         decimal.NewFromFloat(3),
	OutputPerMTok:        decimal.NewFromFloat(15),
	LongInputPerMTok:     decimal.NewFromFloat(6),
	LongOutputPerMTok:    decimal.NewFromFloat(22.5),
	CacheWritePerMTok:    decimal.NewFromFloat(3.75),
	CacheReadPerMTok:     decimal.NewFromFloat(0.3),
	LongContextThreshold: 200_000,
}

// DefaultPricing contains built-in pricing (USD per million tokens) keyed by
// model id. Dated ids fall back to their undated prefix in Lookup.
var DefaultPricing = map[string]ModelPricing{
	string(anthropic.ModelClaudeSonnet4_5):          sonnet45,
	string(anthropic.ModelClaudeSonnet4_5_20250929): sonnet45,
	string(anthropic.ModelClaudeOpus4_6): {
		InputPerMTok:         decimal.NewFromFloat(5),
		OutputPerMTok:        decimal.NewFromFloat(25),
		LongInputPerMTok:     decimal.NewFromFloat(10),
		LongOutputPerMTok:    decimal.NewFromFloat(37.5),
		CacheWritePerMTok:    decimal.NewFromFloat(6.25),
		CacheReadPerMTok:     decimal.NewFromFloat(0.5),
		LongContextThreshold: 200_000,
	},
	string(anthropic.ModelClaudeHaiku4_5): {
		InputPerMTok:      decimal.NewFromFloat(1),
		OutputPerMTok:     decimal.NewFromFloat(5),
		CacheWritePerMTok: decimal.NewFromFloat(1.25),
		CacheReadPerMTok:  decimal.NewFromFloat(0.1),
	},
	string(openai.ChatModelGPT4o): {
		InputPerMTok:     decimal.NewFromFloat(2.5),
		OutputPerMTok:    decimal.NewFromFloat(10),
		CacheReadPerMTok: decimal.NewFromFloat(1.25),
	},
	string(openai.ChatModelGPT4oMini): {
		InputPerMTok:     decimal.NewFromFloat(0.15),
		OutputPerMTok:    decimal.NewFromFloat(0.6),
		CacheReadPerMTok: decimal.NewFromFloat(0.075),
	},
	string(openai.ChatModelGPT4_1): {
		InputPerMTok:     decimal.NewFromFloat(2),
		OutputPerMTok:    decimal.NewFromFloat(8),
		CacheReadPerMTok: decimal.NewFromFloat(0.5),
	},
}

// Lookup finds the pricing for model, preferring an exact match and
// otherwise the longest key that prefixes model.
func Lookup(pricing map[string]ModelPricing, model string) (ModelPricing, bool) {
	if p, ok := pricing[model]; ok {
		return p, true
	}
	best := ""
	for k := range pricing {
		if strings.HasPrefix(model, k) && len(k) > len(best) {
			best = k
		}
	}
	if best == "" {
		return ModelPricing{}, false
	}
	return pricing[best], true
}
