package xp

import (
	"time"

	"engagement-service/internal/settings"
	"github.com/sirupsen/logrus"
)

// allowAction applies the fixed-window limit configured for action. A fault
// while evaluating it lets the event through.
func (e *Engine) allowAction(cfg *settings.Config, username, action string, now time.Time) (allowed bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithFields(logrus.Fields{"action": action, "panic": r}).Warn("rate limiter fault, failing open")
			allowed = true
		}
	}()

	window, ok := cfg.RateLimits.PerUserPerEvent[action]
	if !ok {
		return true
	}
	if window.Interval <= 0 || window.MaxPerInterval <= 0 {
		e.log.WithField("action", action).Warn("invalid rate limit window, failing open")
		return true
	}

	return e.tracker.Hit(username, action, now, time.Duration(window.Interval)*time.Second, window.MaxPerInterval)
}

// allowGlobal rejects once the XP already granted inside the 5 minute or the
// 1 hour window reached its ceiling. A zero ceiling disables that window.
func (e *Engine) allowGlobal(cfg *settings.Config, username string, now time.Time) (allowed bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithFields(logrus.Fields{"username": username, "panic": r}).Warn("global limiter fault, failing open")
			allowed = true
		}
	}()

	limits := cfg.RateLimits.GlobalLimits
	fiveMin, hour := e.tracker.GlobalXP(username, now)

	if limits.MaxXPPer5Min > 0 && fiveMin >= limits.MaxXPPer5Min {
		return false
	}
	if limits.MaxXPPerHour > 0 && hour >= limits.MaxXPPerHour {
		return false
	}
	return true
}
