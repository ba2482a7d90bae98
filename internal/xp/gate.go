package xp

import (
	"time"

	"engagement-service/internal/model"
	"engagement-service/internal/settings"
	"github.com/sirupsen/logrus"
)

// admit runs the opt-out gate, the legacy cooldown and both governor tiers.
// Every rejection is silent for the caller.
func (e *Engine) admit(
	cfg *settings.Config,
	actionCfg settings.Action,
	profile *model.ViewerProfile,
	username, action string,
	now time.Time,
) bool {
	fields := logrus.Fields{"username": username, "action": action}

	if !actionCfg.Enabled {
		e.log.WithFields(fields).Debug("action disabled")
		return false
	}
	if profile != nil && profile.OptedOut {
		return false
	}

	if !e.cooldownElapsed(actionCfg, username, action, now) {
		e.log.WithFields(fields).Debug("action on cooldown")
		return false
	}
	if !e.allowAction(cfg, username, action, now) {
		e.log.WithFields(fields).Debug("per-action rate limit reached")
		return false
	}
	if !e.allowGlobal(cfg, username, now) {
		e.log.WithFields(fields).Debug("global xp limit reached")
		return false
	}
	return true
}

func (e *Engine) cooldownElapsed(actionCfg settings.Action, username, action string, now time.Time) bool {
	if actionCfg.CooldownSeconds <= 0 {
		return true
	}
	last, ok := e.tracker.LastAward(username, action)
	if !ok {
		return true
	}
	return now.Sub(last) >= time.Duration(actionCfg.CooldownSeconds)*time.Second
}
