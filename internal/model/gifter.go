package model

import (
	"time"
)

// GifterTotal is the all-time gifting total of one viewer
type GifterTotal struct {
	UserID      string    `gorm:"primaryKey;size:255" json:"user_id"`
	UpdatedAt   time.Time `json:"updated_at"`
	DisplayName string    `gorm:"size:255" json:"display_name"`
	AvatarURL   string    `json:"avatar_url"`
	Coins       int64     `gorm:"not null;default:0" json:"coins"`
}

// TableName specifies the table name
func (GifterTotal) TableName() string {
	return "gifter_totals"
}

// Setting is one named configuration blob
type Setting struct {
	Name      string    `gorm:"primaryKey;size:64" json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
	Value     string    `gorm:"type:text;not null" json:"value"`
}

// TableName specifies the table name
func (Setting) TableName() string {
	return "settings"
}
