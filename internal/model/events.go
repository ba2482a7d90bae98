package model

import (
	"time"
)

// XPEvent is one append-only entry of the XP log
type XPEvent struct {
	ID            uint           `gorm:"primarykey" json:"id"`
	CreatedAt     time.Time      `gorm:"index:idx_xp_events_created_at" json:"created_at"`
	EventID       string         `gorm:"uniqueIndex:idx_xp_events_event_id;size:36;not null" json:"event_id"`
	SourceEventID string         `gorm:"index:idx_xp_events_source;size:255" json:"source_event_id,omitempty"`
	UserID        string         `gorm:"size:255" json:"user_id"`
	Username      string         `gorm:"index:idx_xp_events_username;size:255;not null" json:"username"`
	ActionType    string         `gorm:"size:64;not null" json:"action_type"`
	BaseAmount    int64          `gorm:"not null" json:"base_amount"`
	AwardedAmount int64          `gorm:"not null" json:"awarded_amount"`
	Metadata      map[string]any `gorm:"serializer:json" json:"metadata,omitempty"`
}

// TableName specifies the table name
func (XPEvent) TableName() string {
	return "xp_events"
}

// SpinTransaction is the audit record of a committed spin
type SpinTransaction struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	TransactionID string    `gorm:"uniqueIndex:idx_spin_tx_id;size:36;not null" json:"transaction_id"`
	Username      string    `gorm:"index:idx_spin_username;size:255;not null" json:"username"`
	Bet           int64     `gorm:"not null" json:"bet"`
	FieldIndex    int       `gorm:"not null" json:"field_index"`
	FieldValue    int64     `gorm:"not null" json:"field_value"`
	NetChange     int64     `gorm:"not null" json:"net_change"`
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
}

// TableName specifies the table name
func (SpinTransaction) TableName() string {
	return "spin_transactions"
}

// ProcessedEvent marks an ingress event as handled even when it earned no XP
type ProcessedEvent struct {
	SourceEventID string    `gorm:"primaryKey;size:255" json:"source_event_id"`
	Type          string    `gorm:"size:64;not null" json:"type"`
	CreatedAt     time.Time `gorm:"index:idx_processed_events_created_at" json:"created_at"`
}

// TableName specifies the table name
func (ProcessedEvent) TableName() string {
	return "processed_events"
}
