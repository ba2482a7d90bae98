package xp

import (
	"testing"

	"engagement-service/internal/settings"
	"github.com/stretchr/testify/assert"
)

func TestLevelForLinear(t *testing.T) {
	curve := settings.LevelCurve{Type: settings.CurveLinear, XPPerLevel: 100}

	assert.Equal(t, 1, LevelFor(curve, 0))
	assert.Equal(t, 1, LevelFor(curve, 99))
	assert.Equal(t, 2, LevelFor(curve, 100))
	assert.Equal(t, 11, LevelFor(curve, 1050))
}

func TestLevelForExponential(t *testing.T) {
	curve := settings.LevelCurve{Type: settings.CurveExponential, BaseXP: 100, Growth: 1.5}

	// needs: 100, 150, 225, 337
	assert.Equal(t, 1, LevelFor(curve, 99))
	assert.Equal(t, 2, LevelFor(curve, 100))
	assert.Equal(t, 2, LevelFor(curve, 249))
	assert.Equal(t, 3, LevelFor(curve, 250))
	assert.Equal(t, 4, LevelFor(curve, 475))
	assert.Equal(t, 5, LevelFor(curve, 812))
}

func TestLevelForTable(t *testing.T) {
	curve := settings.LevelCurve{Type: settings.CurveTable, Thresholds: []int64{50, 200, 1000}}

	assert.Equal(t, 1, LevelFor(curve, 49))
	assert.Equal(t, 2, LevelFor(curve, 50))
	assert.Equal(t, 3, LevelFor(curve, 999))
	assert.Equal(t, 4, LevelFor(curve, 1000))
	assert.Equal(t, 4, LevelFor(curve, 1_000_000))
}

func TestXPForLevelMatchesLevelFor(t *testing.T) {
	curves := []settings.LevelCurve{
		{Type: settings.CurveLinear, XPPerLevel: 70},
		{Type: settings.CurveExponential, BaseXP: 100, Growth: 1.5},
		{Type: settings.CurveTable, Thresholds: []int64{10, 30, 90, 270}},
	}
	for _, curve := range curves {
		for level := 2; level <= 5; level++ {
			need := XPForLevel(curve, level)
			assert.Equal(t, level, LevelFor(curve, need), "%s level %d", curve.Type, level)
			assert.Equal(t, level-1, LevelFor(curve, need-1), "%s level %d", curve.Type, level)
		}
	}
}

func TestLevelIsMonotonic(t *testing.T) {
	curve := settings.Defaults().LevelCurve
	previous := 1
	for total := int64(0); total < 50000; total += 37 {
		level := LevelFor(curve, total)
		assert.GreaterOrEqual(t, level, previous)
		previous = level
	}
}
