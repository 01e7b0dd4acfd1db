// Package budget bounds an agent session: the turn budget caps model calls,
// and the tracker accumulates token usage and cost.
package budget

// DefaultMaxTurns is the turn budget used when none is configured.
const DefaultMaxTurns = 50

// TurnBudget counts model turns against a fixed maximum.
// Invariant: Current() <= Max().
type TurnBudget struct {
	current int
	max     int
}

// NewTurnBudget creates a budget allowing max turns. A non-positive max
// selects DefaultMaxTurns.
func NewTurnBudget(max int) *TurnBudget {
	if max <= 0 {
		max = DefaultMaxTurns
	}
	return &TurnBudget{max: max}
}

// Next claims the next turn. It returns false, leaving the counter at Max,
// once every turn has been used.
func (b *TurnBudget) Next() bool {
	if b.current >= b.max {
		return false
	}
	b.current++
	return true
}

// Current returns the number of turns claimed so far.
func (b *TurnBudget) Current() int { return b.current }

// Max returns the turn limit.
func (b *TurnBudget) Max() int { return b.max }

// Exhausted reports whether no turns remain.
func (b *TurnBudget) Exhausted() bool { return b.current >= b.max }
