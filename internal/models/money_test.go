package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundCents(t *testing.T) {
	t.Run("Rounds Half Up", func(t *testing.T) {
		assert.Equal(t, int64(1000), RoundCents(999.5))
		assert.Equal(t, int64(999), RoundCents(999.49))
		assert.Equal(t, int64(1000), RoundCents(999.99))
		assert.Equal(t, int64(0), RoundCents(0))
	})
}

func TestMultiplyCents(t *testing.T) {
	t.Run("Whole Multiplier", func(t *testing.T) {
		assert.Equal(t, int64(10000), MultiplyCents(5000, 2.0))
	})

	t.Run("Fractional Multiplier", func(t *testing.T) {
		assert.Equal(t, int64(7500), MultiplyCents(5000, 1.5))
		// 3333 * 1.15 = 3832.95, rounds up
		assert.Equal(t, int64(3833), MultiplyCents(3333, 1.15))
	})

	t.Run("Identity", func(t *testing.T) {
		assert.Equal(t, int64(5000), MultiplyCents(5000, 1.0))
	})
}

func TestPercentCents(t *testing.T) {
	t.Run("Exact Percentage", func(t *testing.T) {
		assert.Equal(t, int64(1000), PercentCents(10000, 10))
		assert.Equal(t, int64(1250), PercentCents(10000, 12.5))
	})

	t.Run("Rounds Half Up", func(t *testing.T) {
		// 9999 * 10% = 999.9
		assert.Equal(t, int64(1000), PercentCents(9999, 10))
		// 1001 * 2.5% = 25.025
		assert.Equal(t, int64(25), PercentCents(1001, 2.5))
	})

	t.Run("Zero Amount", func(t *testing.T) {
		assert.Equal(t, int64(0), PercentCents(0, 50))
	})
}

func TestCentsToDisplay(t *testing.T) {
	assert.Equal(t, 90.0, CentsToDisplay(9000))
	assert.Equal(t, 0.01, CentsToDisplay(1))
}
