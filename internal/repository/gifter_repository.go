package repository

import (
	"context"

	"engagement-service/internal/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GifterRepository struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewGifterRepository(db *gorm.DB, log *logrus.Logger) *GifterRepository {
	return &GifterRepository{
		db:  db,
		log: log,
	}
}

// AddCoinsBatch adds each record's coins onto the stored total
func (r *GifterRepository) AddCoinsBatch(ctx context.Context, totals []model.GifterTotal) error {
	if len(totals) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"coins":        gorm.Expr("gifter_totals.coins + excluded.coins"),
			"display_name": gorm.Expr("excluded.display_name"),
			"avatar_url":   gorm.Expr("excluded.avatar_url"),
			"updated_at":   gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&totals).Error
}

// GetAll retrieves stored totals page by page (for warmup)
func (r *GifterRepository) GetAll(ctx context.Context, limit, offset int) ([]model.GifterTotal, error) {
	var totals []model.GifterTotal
	err := r.db.WithContext(ctx).
		Order("user_id").
		Limit(limit).
		Offset(offset).
		Find(&totals).Error

	return totals, err
}

func (r *GifterRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.GifterTotal{}).Count(&count).Error
	return count, err
}
