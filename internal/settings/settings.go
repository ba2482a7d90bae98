// Package settings holds the typed configuration blobs that tune the
// engagement engine, their defaults and their validation rules.
package settings

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

// Action types known to the engine.
const (
	ActionChatMessage     = "chat_message"
	ActionLike            = "like"
	ActionShare           = "share"
	ActionFollow          = "follow"
	ActionDailyBonus      = "daily_bonus"
	ActionWatchTimeMinute = "watch_time_minute"
	ActionManualAward     = "manual_award"
	ActionIFTTTAward      = "ifttt_award"
)

// Blob names accepted by Manager.Update.
const (
	BlobActions      = "actions"
	BlobRateLimits   = "rate_limits"
	BlobEventCaps    = "event_caps"
	BlobMultipliers  = "xp_multipliers"
	BlobStreaks      = "streaks"
	BlobSpin         = "spin"
	BlobLevelCurve   = "level_curve"
	BlobLevelRewards = "level_rewards"
	BlobGiftTiers    = "gift_tiers"
	BlobMilestones   = "milestones"
)

// Level curve types.
const (
	CurveLinear      = "linear"
	CurveExponential = "exponential"
	CurveTable       = "table"
)

var ErrInvalid = errors.New("invalid settings")

// GiftTierAction returns the action type of gift tier n (1-based).
func GiftTierAction(n int) string {
	return fmt.Sprintf("gift_tier%d", n)
}

// KnownActions lists every action type in a stable order.
func KnownActions() []string {
	actions := []string{
		ActionChatMessage, ActionLike, ActionShare, ActionFollow,
	}
	for i := 1; i <= 8; i++ {
		actions = append(actions, GiftTierAction(i))
	}
	return append(actions, ActionDailyBonus, ActionWatchTimeMinute, ActionManualAward, ActionIFTTTAward)
}

type Action struct {
	XPAmount        int64 `json:"xp_amount"`
	CooldownSeconds int   `json:"cooldown_seconds"`
	Enabled         bool  `json:"enabled"`
}

type Window struct {
	Interval       int `json:"interval"`
	MaxPerInterval int `json:"max_per_interval"`
}

type GlobalLimits struct {
	MaxXPPer5Min int64 `json:"max_xp_per_5min"`
	MaxXPPerHour int64 `json:"max_xp_per_hour"`
}

type RateLimits struct {
	PerUserPerEvent map[string]Window `json:"per_user_per_event"`
	GlobalLimits    GlobalLimits      `json:"global_limits"`
}

type Multipliers struct {
	Global float64 `json:"global"`
}

type Streaks struct {
	Enabled         bool    `json:"enabled"`
	BonusMultiplier float64 `json:"bonus_multiplier"`
	MaxMultiplier   float64 `json:"max_multiplier"`
}

type Spin struct {
	Enabled     bool    `json:"enabled"`
	MinBet      int64   `json:"min_bet"`
	MaxBet      int64   `json:"max_bet"`
	DefaultBet  int64   `json:"default_bet"`
	FieldValues []int64 `json:"field_values"`
}

// LevelCurve maps lifetime XP to a level. Thresholds[i] is the total needed
// for level i+2 when Type is CurveTable.
type LevelCurve struct {
	Type       string  `json:"type"`
	XPPerLevel int64   `json:"xp_per_level,omitempty"`
	BaseXP     int64   `json:"base_xp,omitempty"`
	Growth     float64 `json:"growth,omitempty"`
	Thresholds []int64 `json:"thresholds,omitempty"`
}

type LevelReward struct {
	Title        string   `json:"title,omitempty"`
	NameColor    string   `json:"name_color,omitempty"`
	Announcement string   `json:"announcement,omitempty"`
	Effects      []string `json:"effects,omitempty"`
}

type GiftTier struct {
	MinCoins int64  `json:"min_coins"`
	Action   string `json:"action"`
}

type Milestones struct {
	Currency []int64 `json:"currency"`
	Streak   []int   `json:"streak"`
}

type Config struct {
	Actions      map[string]Action   `json:"actions"`
	RateLimits   RateLimits          `json:"rate_limits"`
	EventCaps    map[string]int64    `json:"event_caps"`
	Multipliers  Multipliers         `json:"xp_multipliers"`
	Streaks      Streaks             `json:"streaks"`
	Spin         Spin                `json:"spin"`
	LevelCurve   LevelCurve          `json:"level_curve"`
	LevelRewards map[int]LevelReward `json:"level_rewards"`
	GiftTiers    []GiftTier          `json:"gift_tiers"`
	Milestones   Milestones          `json:"milestones"`
}

// Defaults returns the configuration used when no blob was stored.
func Defaults() *Config {
	return &Config{
		Actions: map[string]Action{
			ActionChatMessage:     {XPAmount: 5, CooldownSeconds: 30, Enabled: true},
			ActionLike:            {XPAmount: 2, CooldownSeconds: 10, Enabled: true},
			ActionShare:           {XPAmount: 10, CooldownSeconds: 60, Enabled: true},
			ActionFollow:          {XPAmount: 50, Enabled: true},
			"gift_tier1":          {XPAmount: 10, Enabled: true},
			"gift_tier2":          {XPAmount: 25, Enabled: true},
			"gift_tier3":          {XPAmount: 50, Enabled: true},
			"gift_tier4":          {XPAmount: 100, Enabled: true},
			"gift_tier5":          {XPAmount: 250, Enabled: true},
			"gift_tier6":          {XPAmount: 500, Enabled: true},
			"gift_tier7":          {XPAmount: 1000, Enabled: true},
			"gift_tier8":          {XPAmount: 2500, Enabled: true},
			ActionDailyBonus:      {XPAmount: 100, Enabled: true},
			ActionWatchTimeMinute: {XPAmount: 1, Enabled: true},
			ActionManualAward:     {Enabled: true},
			ActionIFTTTAward:      {Enabled: true},
		},
		RateLimits: RateLimits{
			PerUserPerEvent: map[string]Window{
				ActionChatMessage: {Interval: 60, MaxPerInterval: 10},
				ActionLike:        {Interval: 60, MaxPerInterval: 5},
				ActionShare:       {Interval: 300, MaxPerInterval: 3},
				ActionFollow:      {Interval: 86400, MaxPerInterval: 1},
			},
			GlobalLimits: GlobalLimits{
				MaxXPPer5Min: 5000,
				MaxXPPerHour: 20000,
			},
		},
		EventCaps: map[string]int64{
			"gift_tier7": 3000,
			"gift_tier8": 5000,
		},
		Multipliers: Multipliers{Global: 1},
		Streaks: Streaks{
			Enabled:         true,
			BonusMultiplier: 1.1,
			MaxMultiplier:   2,
		},
		Spin: Spin{
			Enabled:     true,
			MinBet:      100,
			MaxBet:      10000,
			DefaultBet:  500,
			FieldValues: []int64{0, 100, 250, 500, 750, 1000, 2000, 5000, -500, -1000},
		},
		LevelCurve: LevelCurve{
			Type:   CurveExponential,
			BaseXP: 100,
			Growth: 1.5,
		},
		LevelRewards: map[int]LevelReward{
			5:  {Title: "Regular", NameColor: "#3498db", Announcement: "{username} is now a Regular!"},
			10: {Title: "Veteran", NameColor: "#9b59b6", Announcement: "{username} reached level 10!", Effects: []string{"confetti"}},
			25: {Title: "Legend", NameColor: "#f1c40f", Announcement: "{username} became a Legend!", Effects: []string{"confetti", "fireworks"}},
		},
		GiftTiers: []GiftTier{
			{MinCoins: 1, Action: "gift_tier1"},
			{MinCoins: 10, Action: "gift_tier2"},
			{MinCoins: 50, Action: "gift_tier3"},
			{MinCoins: 100, Action: "gift_tier4"},
			{MinCoins: 500, Action: "gift_tier5"},
			{MinCoins: 1000, Action: "gift_tier6"},
			{MinCoins: 5000, Action: "gift_tier7"},
			{MinCoins: 10000, Action: "gift_tier8"},
		},
		Milestones: Milestones{
			Currency: []int64{1000, 10000, 100000},
			Streak:   []int{7, 30, 100},
		},
	}
}

// Validate checks every blob and reports the first violation.
func (c *Config) Validate() error {
	known := KnownActions()
	for name, action := range c.Actions {
		if !slices.Contains(known, name) {
			return fmt.Errorf("%w: unknown action %s", ErrInvalid, name)
		}
		if action.XPAmount < 0 || action.CooldownSeconds < 0 {
			return fmt.Errorf("%w: action %s has negative values", ErrInvalid, name)
		}
	}
	for name, window := range c.RateLimits.PerUserPerEvent {
		if !slices.Contains(known, name) {
			return fmt.Errorf("%w: rate limit for unknown action %s", ErrInvalid, name)
		}
		if window.Interval <= 0 || window.MaxPerInterval <= 0 {
			return fmt.Errorf("%w: rate limit for %s needs positive interval and max", ErrInvalid, name)
		}
	}
	if c.RateLimits.GlobalLimits.MaxXPPer5Min < 0 || c.RateLimits.GlobalLimits.MaxXPPerHour < 0 {
		return fmt.Errorf("%w: global limits must not be negative", ErrInvalid)
	}
	for name, ceiling := range c.EventCaps {
		if ceiling < 0 {
			return fmt.Errorf("%w: event cap for %s is negative", ErrInvalid, name)
		}
	}
	if c.Multipliers.Global <= 0 {
		return fmt.Errorf("%w: global multiplier must be positive", ErrInvalid)
	}
	if c.Streaks.Enabled && (c.Streaks.BonusMultiplier < 1 || c.Streaks.MaxMultiplier < 1) {
		return fmt.Errorf("%w: streak multipliers must be at least 1", ErrInvalid)
	}
	if err := c.Spin.validate(); err != nil {
		return err
	}
	if err := c.LevelCurve.validate(); err != nil {
		return err
	}
	for level := range c.LevelRewards {
		if level < 2 {
			return fmt.Errorf("%w: level reward for level %d", ErrInvalid, level)
		}
	}
	for i, tier := range c.GiftTiers {
		if tier.MinCoins <= 0 {
			return fmt.Errorf("%w: gift tier %d needs positive min_coins", ErrInvalid, i+1)
		}
		if i > 0 && tier.MinCoins <= c.GiftTiers[i-1].MinCoins {
			return fmt.Errorf("%w: gift tiers must be ascending", ErrInvalid)
		}
		if _, ok := c.Actions[tier.Action]; !ok {
			return fmt.Errorf("%w: gift tier %d uses unknown action %s", ErrInvalid, i+1, tier.Action)
		}
	}
	return nil
}

func (s Spin) validate() error {
	if s.MinBet <= 0 || s.MaxBet < s.MinBet {
		return fmt.Errorf("%w: spin bets need 0 < min_bet <= max_bet", ErrInvalid)
	}
	if s.DefaultBet < s.MinBet || s.DefaultBet > s.MaxBet {
		return fmt.Errorf("%w: spin default_bet outside bet range", ErrInvalid)
	}
	if len(s.FieldValues) == 0 {
		return fmt.Errorf("%w: spin needs at least one field value", ErrInvalid)
	}
	return nil
}

func (lc LevelCurve) validate() error {
	switch lc.Type {
	case CurveLinear:
		if lc.XPPerLevel <= 0 {
			return fmt.Errorf("%w: linear curve needs xp_per_level", ErrInvalid)
		}
	case CurveExponential:
		if lc.BaseXP <= 0 || lc.Growth < 1 {
			return fmt.Errorf("%w: exponential curve needs base_xp > 0 and growth >= 1", ErrInvalid)
		}
	case CurveTable:
		if len(lc.Thresholds) == 0 {
			return fmt.Errorf("%w: table curve needs thresholds", ErrInvalid)
		}
		if !sort.SliceIsSorted(lc.Thresholds, func(i, j int) bool { return lc.Thresholds[i] < lc.Thresholds[j] }) {
			return fmt.Errorf("%w: table thresholds must be ascending", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown level curve %q", ErrInvalid, lc.Type)
	}
	return nil
}

// LargestWindow is the longest interval any tracker entry has to be kept.
func (c *Config) LargestWindow() int {
	largest := 3600
	for _, window := range c.RateLimits.PerUserPerEvent {
		if window.Interval > largest {
			largest = window.Interval
		}
	}
	for _, action := range c.Actions {
		if action.CooldownSeconds > largest {
			largest = action.CooldownSeconds
		}
	}
	return largest
}
