package budget

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/armatrix/sandbox-agent/conversation"
)

// Tracker accumulates token usage and cost across model calls.
// It is safe for concurrent use.
type Tracker struct {
	totalCost  decimal.Decimal
	totalUsage conversation.Usage
	calls      int
	pricing    map[string]ModelPricing
	mu         sync.Mutex
}

// NewTracker creates a new tracker. A nil pricing table uses DefaultPricing.
func NewTracker(pricing map[string]ModelPricing) *Tracker {
	if pricing == nil {
		pricing = DefaultPricing
	}
	return &Tracker{
		totalCost: decimal.Zero,
		pricing:   pricing,
	}
}

// RecordUsage records token usage for a single model call and updates the
// cumulative cost. Unknown models count tokens but add no cost.
func (b *Tracker) RecordUsage(model string, usage conversation.Usage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls++
	b.totalUsage.InputTokens += usage.InputTokens
	b.totalUsage.OutputTokens += usage.OutputTokens
	b.totalUsage.CacheReadInputTokens += usage.CacheReadInputTokens
	b.totalUsage.CacheCreationInputTokens += usage.CacheCreationInputTokens

	pricing, ok := Lookup(b.pricing, model)
	if !ok {
		return
	}

	totalInput := usage.InputTokens + usage.CacheReadInputTokens + usage.CacheCreationInputTokens
	inputCost := pricing.CostForInput(usage.InputTokens, usage.CacheReadInputTokens, usage.CacheCreationInputTokens, totalInput)
	outputCost := pricing.CostForOutput(usage.OutputTokens, totalInput)

	b.totalCost = b.totalCost.Add(inputCost).Add(outputCost)
}

// TotalCost returns the cumulative cost across all recorded usage.
func (b *Tracker) TotalCost() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalCost
}

// TotalUsage returns the cumulative token usage across all recorded calls.
func (b *Tracker) TotalUsage() conversation.Usage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalUsage
}

// Calls returns the number of recorded model calls.
func (b *Tracker) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}
