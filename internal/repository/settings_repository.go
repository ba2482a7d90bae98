package repository

import (
	"context"

	"engagement-service/internal/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingsRepository struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewSettingsRepository(db *gorm.DB, log *logrus.Logger) *SettingsRepository {
	return &SettingsRepository{
		db:  db,
		log: log,
	}
}

func (r *SettingsRepository) GetAll(ctx context.Context) ([]model.Setting, error) {
	var settings []model.Setting
	err := r.db.WithContext(ctx).Find(&settings).Error
	return settings, err
}

// Save upserts one named blob
func (r *SettingsRepository) Save(ctx context.Context, name, value string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&model.Setting{Name: name, Value: value}).Error
}
