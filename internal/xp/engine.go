// Package xp turns viewer activity into XP. AwardXP runs every request
// through the opt-out gate, the legacy cooldown, the rate limit governor and
// the multiplier/cap resolver before the ledger credits the profile and the
// leveling rules derive level, streak and badges.
package xp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"engagement-service/internal/automation"
	"engagement-service/internal/broadcast"
	"engagement-service/internal/leaderboard"
	"engagement-service/internal/model"
	"engagement-service/internal/repository"
	"engagement-service/internal/settings"
	"engagement-service/internal/tracker"
	"github.com/sirupsen/logrus"
)

var (
	ErrUnknownAction   = errors.New("unknown action type")
	ErrInvalidUsername = errors.New("username is required")
)

type ProfileStore interface {
	Get(ctx context.Context, username string) (*model.ViewerProfile, error)
	GetOrCreate(ctx context.Context, username, userID string) (*model.ViewerProfile, error)
	Credit(ctx context.Context, username string, amount int64, event *model.XPEvent, adjust func(*model.ViewerProfile) []string) (*model.ViewerProfile, error)
	AddWatchTime(ctx context.Context, username string, minutes int64) error
	SetOptOut(ctx context.Context, username string, optedOut bool) error
}

type GiftBoard interface {
	AddGift(ctx context.Context, gift leaderboard.Gift)
	Forget(userID string)
}

type SettingsSource interface {
	Current() *settings.Config
}

// Details carries what the ingress knows about the activity.
type Details struct {
	UserID        string
	SourceEventID string
	// Amount is the base for manual_award and ifttt_award.
	Amount int64
	// Quantity multiplies the base of watch_time_minute.
	Quantity  int64
	Reason    string
	GiftName  string
	GiftValue int64
	Metadata  map[string]any
}

type Options struct {
	Now      func() time.Time
	Location *time.Location
}

type Engine struct {
	profiles    ProfileStore
	settings    SettingsSource
	tracker     *tracker.Store
	board       GiftBoard
	broadcaster broadcast.Broadcaster
	sink        automation.Sink
	log         *logrus.Logger
	now         func() time.Time
	loc         *time.Location

	mu sync.Mutex
}

func New(
	profiles ProfileStore,
	source SettingsSource,
	trackers *tracker.Store,
	board GiftBoard,
	broadcaster broadcast.Broadcaster,
	sink automation.Sink,
	opts Options,
	log *logrus.Logger,
) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Engine{
		profiles:    profiles,
		settings:    source,
		tracker:     trackers,
		board:       board,
		broadcaster: broadcaster,
		sink:        sink,
		log:         log,
		now:         opts.Now,
		loc:         opts.Location,
	}
}

// AwardXP grants the configured XP for action to username. It returns false
// without error when a gate or limit rejected the request; errors are
// validation or persistence failures.
func (e *Engine) AwardXP(ctx context.Context, username, action string, d Details) (bool, error) {
	if username == "" {
		return false, ErrInvalidUsername
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cfg := e.settings.Current()
	now := e.now()
	fields := logrus.Fields{"username": username, "action": action}

	actionCfg, ok := cfg.Actions[action]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	profile, err := e.profiles.Get(ctx, username)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		e.log.WithFields(fields).WithError(err).Error("failed to load profile")
		return false, fmt.Errorf("failed to load profile: %w", err)
	}

	if !e.admit(cfg, actionCfg, profile, username, action, now) {
		return false, nil
	}

	if profile == nil {
		profile, err = e.profiles.GetOrCreate(ctx, username, d.UserID)
		if err != nil {
			e.log.WithFields(fields).WithError(err).Error("failed to create profile")
			return false, fmt.Errorf("failed to create profile: %w", err)
		}
	}

	profile, mark, err := e.checkDaily(ctx, cfg, profile, now)
	if err != nil {
		e.log.WithFields(fields).WithError(err).Error("failed to apply daily bonus")
		return false, err
	}

	base := baseAmount(actionCfg, action, d)
	amount := e.resolve(cfg, action, base, profile.StreakDays)
	if amount <= 0 {
		e.log.WithFields(fields).Debug("resolved amount is zero, nothing to award")
		return false, nil
	}

	updated, err := e.commit(ctx, cfg, profile, action, base, amount, d, mark, now)
	if err != nil {
		e.log.WithFields(fields).WithError(err).Error("failed to credit XP")
		return false, err
	}
	if mark != nil {
		e.announceStreak(ctx, cfg, username, mark.streak)
	}

	e.tracker.MarkAward(username, action, now)
	e.tracker.AddXP(username, now, amount)

	gained := XPGained{
		Username:      username,
		UserID:        updated.UserID,
		ActionType:    action,
		BaseAmount:    base,
		Amount:        amount,
		XP:            updated.XP,
		TotalXPEarned: updated.TotalXPEarned,
		Level:         updated.Level,
		Metadata:      metadata(d),
		Timestamp:     now,
	}
	e.broadcaster.Broadcast(broadcast.ChannelXPGained, gained)
	e.broadcaster.Broadcast(broadcast.ChannelEventStream, gained)
	e.sink.Fire(ctx, automation.EventXPGained, map[string]any{
		"username": username,
		"action":   action,
		"amount":   amount,
		"xp":       updated.XP,
		"level":    updated.Level,
	})

	e.log.WithFields(logrus.Fields{
		"username": username,
		"action":   action,
		"base":     base,
		"amount":   amount,
		"xp":       updated.XP,
	}).Debug("xp awarded")

	return true, nil
}

// Profile returns the stored profile of username.
func (e *Engine) Profile(ctx context.Context, username string) (*model.ViewerProfile, error) {
	return e.profiles.Get(ctx, username)
}

// RecordWatchTime adds watched minutes and awards watch_time_minute XP for them.
func (e *Engine) RecordWatchTime(ctx context.Context, username, userID string, minutes int64) (bool, error) {
	if minutes <= 0 {
		return false, nil
	}

	profile, err := e.profiles.Get(ctx, username)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}
	if profile != nil && profile.OptedOut {
		return false, nil
	}

	awarded, err := e.AwardXP(ctx, username, settings.ActionWatchTimeMinute, Details{UserID: userID, Quantity: minutes})
	if err != nil {
		return false, err
	}

	if err := e.profiles.AddWatchTime(ctx, username, minutes); err != nil {
		e.log.WithError(err).WithField("username", username).Error("failed to store watch time")
		return awarded, err
	}
	return awarded, nil
}

// SetOptOut enables or disables tracking for username. Opting out drops the
// viewer's ephemeral state.
func (e *Engine) SetOptOut(ctx context.Context, username, userID string, optedOut bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	profile, err := e.profiles.GetOrCreate(ctx, username, userID)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	if err := e.profiles.SetOptOut(ctx, username, optedOut); err != nil {
		return fmt.Errorf("failed to store opt-out: %w", err)
	}

	if optedOut {
		e.tracker.Forget(username)
		e.board.Forget(giftKey(profile.UserID, username))
	}

	e.log.WithFields(logrus.Fields{
		"username":  username,
		"opted_out": optedOut,
	}).Info("tracking preference changed")
	return nil
}

func baseAmount(actionCfg settings.Action, action string, d Details) int64 {
	switch action {
	case settings.ActionManualAward, settings.ActionIFTTTAward:
		if d.Amount > 0 {
			return d.Amount
		}
	case settings.ActionWatchTimeMinute:
		if d.Quantity > 1 {
			return actionCfg.XPAmount * d.Quantity
		}
	}
	return actionCfg.XPAmount
}

func metadata(d Details) map[string]any {
	out := make(map[string]any, len(d.Metadata)+4)
	for k, v := range d.Metadata {
		out[k] = v
	}
	if d.GiftName != "" {
		out["gift_name"] = d.GiftName
	}
	if d.GiftValue > 0 {
		out["gift_value"] = d.GiftValue
	}
	if d.Quantity > 0 {
		out["quantity"] = d.Quantity
	}
	if d.Reason != "" {
		out["reason"] = d.Reason
	}
	return out
}
