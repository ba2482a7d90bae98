package xp

import (
	"math"

	"engagement-service/internal/settings"
	"github.com/sirupsen/logrus"
)

// floating point slack so that e.g. 10 × 1.1 × ... does not floor one short
const epsilon = 1e-9

// resolve computes floor(base × global × streak) and then applies the action's
// hard cap. Faults fall back to a multiplier of 1.
func (e *Engine) resolve(cfg *settings.Config, action string, base int64, streakDays int) (amount int64) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithFields(logrus.Fields{"action": action, "panic": r}).Warn("multiplier fault, using base amount")
			amount = applyCap(cfg, action, base)
		}
	}()

	multiplier := cfg.Multipliers.Global
	if multiplier <= 0 || math.IsNaN(multiplier) || math.IsInf(multiplier, 0) {
		e.log.WithField("multiplier", multiplier).Warn("invalid global multiplier, using 1")
		multiplier = 1
	}

	raw := float64(base) * multiplier * StreakMultiplier(cfg.Streaks, streakDays)
	return applyCap(cfg, action, int64(math.Floor(raw+epsilon)))
}

// StreakMultiplier returns min(1 + (days-1) × (bonus-1), max) when streak
// bonuses are enabled and days > 1, else 1.
func StreakMultiplier(streaks settings.Streaks, days int) float64 {
	if !streaks.Enabled || days <= 1 {
		return 1
	}
	m := 1 + float64(days-1)*(streaks.BonusMultiplier-1)
	if m > streaks.MaxMultiplier {
		m = streaks.MaxMultiplier
	}
	if m < 1 || math.IsNaN(m) {
		return 1
	}
	return m
}

func applyCap(cfg *settings.Config, action string, amount int64) int64 {
	if ceiling, ok := cfg.EventCaps[action]; ok && amount > ceiling {
		return ceiling
	}
	return amount
}
