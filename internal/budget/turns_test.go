package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTurnBudget_Default(t *testing.T) {
	b := NewTurnBudget(0)
	assert.Equal(t, DefaultMaxTurns, b.Max())
	assert.Equal(t, 0, b.Current())
}

func TestTurnBudget_NeverExceedsMax(t *testing.T) {
	for _, max := range []int{1, 3, 7} {
		b := NewTurnBudget(max)
		granted := 0
		for i := 0; i < max+5; i++ {
			if b.Next() {
				granted++
			}
			assert.LessOrEqual(t, b.Current(), b.Max())
		}
		assert.Equal(t, max, granted)
		assert.Equal(t, max, b.Current())
		assert.True(t, b.Exhausted())
	}
}
