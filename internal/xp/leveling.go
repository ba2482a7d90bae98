package xp

import (
	"math"
	"sort"

	"engagement-service/internal/settings"
)

const maxLevel = 10000

// LevelFor returns the level reached with total lifetime XP under curve.
// Unknown curves yield level 1.
func LevelFor(curve settings.LevelCurve, total int64) int {
	if total <= 0 {
		return 1
	}

	switch curve.Type {
	case settings.CurveLinear:
		if curve.XPPerLevel <= 0 {
			return 1
		}
		level := 1 + total/curve.XPPerLevel
		if level > maxLevel {
			return maxLevel
		}
		return int(level)

	case settings.CurveExponential:
		if curve.BaseXP <= 0 || curve.Growth < 1 {
			return 1
		}
		level := 1
		need := float64(curve.BaseXP)
		reached := 0.0
		for level < maxLevel && reached+need <= float64(total) {
			reached += need
			need = math.Floor(need * curve.Growth)
			level++
		}
		return level

	case settings.CurveTable:
		// thresholds[i] is the total for level i+2
		return 1 + sort.Search(len(curve.Thresholds), func(i int) bool {
			return curve.Thresholds[i] > total
		})
	}
	return 1
}

// XPForLevel returns the lifetime XP needed to reach level under curve.
func XPForLevel(curve settings.LevelCurve, level int) int64 {
	if level <= 1 {
		return 0
	}

	switch curve.Type {
	case settings.CurveLinear:
		return int64(level-1) * curve.XPPerLevel

	case settings.CurveExponential:
		need := float64(curve.BaseXP)
		total := 0.0
		for n := 1; n < level; n++ {
			total += need
			need = math.Floor(need * curve.Growth)
		}
		return int64(total)

	case settings.CurveTable:
		if level-2 < len(curve.Thresholds) {
			return curve.Thresholds[level-2]
		}
	}
	return math.MaxInt64
}
