package xp

import (
	"time"

	"engagement-service/internal/settings"
)

type XPGained struct {
	Username      string         `json:"username"`
	UserID        string         `json:"user_id,omitempty"`
	ActionType    string         `json:"action_type"`
	BaseAmount    int64          `json:"base_amount"`
	Amount        int64          `json:"amount"`
	XP            int64          `json:"xp"`
	TotalXPEarned int64          `json:"total_xp_earned"`
	Level         int            `json:"level"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

type LevelUp struct {
	Username     string                `json:"username"`
	OldLevel     int                   `json:"old_level"`
	NewLevel     int                   `json:"new_level"`
	Rewards      *settings.LevelReward `json:"rewards,omitempty"`
	Announcement string                `json:"announcement,omitempty"`
}

type DailyBonus struct {
	Username   string `json:"username"`
	Amount     int64  `json:"amount"`
	StreakDays int    `json:"streak_days"`
}

type StreakMilestone struct {
	Username   string `json:"username"`
	StreakDays int    `json:"streak_days"`
}
