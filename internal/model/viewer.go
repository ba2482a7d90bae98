package model

import (
	"slices"
	"time"
)

// ViewerProfile is the persistent engagement state of one viewer
type ViewerProfile struct {
	ID               uint      `gorm:"primarykey" json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Username         string    `gorm:"uniqueIndex:idx_viewer_username;size:255;not null" json:"username"`
	UserID           string    `gorm:"index:idx_viewer_user_id;size:255" json:"user_id"`
	XP               int64     `gorm:"not null;default:0" json:"xp"`
	Level            int       `gorm:"not null;default:1" json:"level"`
	TotalXPEarned    int64     `gorm:"not null;default:0" json:"total_xp_earned"`
	StreakDays       int       `gorm:"not null;default:0" json:"streak_days"`
	LastActiveDay    string    `gorm:"size:10" json:"last_active_day"`
	WatchTimeMinutes int64     `gorm:"not null;default:0" json:"watch_time_minutes"`
	Badges           []string  `gorm:"serializer:json" json:"badges"`
	NameColor        string    `gorm:"size:32" json:"name_color"`
	OptedOut         bool      `gorm:"not null;default:false" json:"opted_out"`
}

// TableName specifies the table name
func (ViewerProfile) TableName() string {
	return "viewer_profiles"
}

// AddBadge adds badge unless the profile already has it
func (p *ViewerProfile) AddBadge(badge string) bool {
	if badge == "" || slices.Contains(p.Badges, badge) {
		return false
	}
	p.Badges = append(p.Badges, badge)
	return true
}
