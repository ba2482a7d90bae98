package repository

import (
	"context"
	"time"

	"engagement-service/internal/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EventRepository struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewEventRepository(db *gorm.DB, log *logrus.Logger) *EventRepository {
	return &EventRepository{
		db:  db,
		log: log,
	}
}

// SourceEventExists checks if an ingress event was already handled or turned into XP
func (r *EventRepository) SourceEventExists(ctx context.Context, sourceEventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ProcessedEvent{}).
		Where("source_event_id = ?", sourceEventID).
		Count(&count).Error
	if err != nil || count > 0 {
		return count > 0, err
	}

	err = r.db.WithContext(ctx).
		Model(&model.XPEvent{}).
		Where("source_event_id = ?", sourceEventID).
		Count(&count).Error

	return count > 0, err
}

// MarkProcessed records that an ingress event was handled. Marking twice is a no-op.
func (r *EventRepository) MarkProcessed(ctx context.Context, sourceEventID, eventType string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.ProcessedEvent{
			SourceEventID: sourceEventID,
			Type:          eventType,
			CreatedAt:     time.Now(),
		}).Error
}

// ListByUsername returns the newest XP log entries of a viewer
func (r *EventRepository) ListByUsername(ctx context.Context, username string, limit int) ([]model.XPEvent, error) {
	var events []model.XPEvent
	err := r.db.WithContext(ctx).
		Where("username = ?", username).
		Order("id DESC").
		Limit(limit).
		Find(&events).Error

	return events, err
}

// ListSpins returns the newest spin transactions of a viewer
func (r *EventRepository) ListSpins(ctx context.Context, username string, limit int) ([]model.SpinTransaction, error) {
	var spins []model.SpinTransaction
	err := r.db.WithContext(ctx).
		Where("username = ?", username).
		Order("id DESC").
		Limit(limit).
		Find(&spins).Error

	return spins, err
}
