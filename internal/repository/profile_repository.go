package repository

import (
	"context"
	"errors"

	"engagement-service/internal/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrNotApplied = errors.New("conditional update not applied")
)

type ProfileRepository struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewProfileRepository(db *gorm.DB, log *logrus.Logger) *ProfileRepository {
	return &ProfileRepository{
		db:  db,
		log: log,
	}
}

// Get returns the profile for username or ErrNotFound
func (r *ProfileRepository) Get(ctx context.Context, username string) (*model.ViewerProfile, error) {
	var profile model.ViewerProfile
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetOrCreate returns the profile for username, creating it on first sight
func (r *ProfileRepository) GetOrCreate(ctx context.Context, username, userID string) (*model.ViewerProfile, error) {
	var profile model.ViewerProfile
	err := r.db.WithContext(ctx).
		Where(model.ViewerProfile{Username: username}).
		Attrs(model.ViewerProfile{UserID: userID, Level: 1, Badges: []string{}}).
		FirstOrCreate(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// Credit adds amount to both the balance and the lifetime total, lets adjust
// derive further fields from the updated profile and appends event, all in one
// transaction. adjust returns the columns it changed.
func (r *ProfileRepository) Credit(
	ctx context.Context,
	username string,
	amount int64,
	event *model.XPEvent,
	adjust func(*model.ViewerProfile) []string,
) (*model.ViewerProfile, error) {
	var profile model.ViewerProfile

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.ViewerProfile{}).
			Where("username = ?", username).
			Updates(map[string]interface{}{
				"xp":              gorm.Expr("xp + ?", amount),
				"total_xp_earned": gorm.Expr("total_xp_earned + ?", amount),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		if err := tx.Where("username = ?", username).First(&profile).Error; err != nil {
			return err
		}

		if adjust != nil {
			if columns := adjust(&profile); len(columns) > 0 {
				if err := tx.Model(&profile).Select(columns).Updates(&profile).Error; err != nil {
					return err
				}
			}
		}

		return tx.Create(event).Error
	})
	if err != nil {
		return nil, err
	}

	return &profile, nil
}

// ApplySpin moves the balance by net only if it stays non-negative and records
// the spin transaction in the same unit of work. It returns ErrNotApplied when
// the guard rejected the update.
func (r *ProfileRepository) ApplySpin(ctx context.Context, username string, net int64, record *model.SpinTransaction) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.ViewerProfile{}).
			Where("username = ? AND xp + ? >= 0", username, net).
			Update("xp", gorm.Expr("xp + ?", net))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotApplied
		}

		var after model.ViewerProfile
		if err := tx.Select("xp").Where("username = ?", username).First(&after).Error; err != nil {
			return err
		}

		record.Username = username
		record.NetChange = net
		record.BalanceAfter = after.XP
		record.BalanceBefore = after.XP - net

		return tx.Create(record).Error
	})
}

// UpdateStreak stores the streak and the day it was last advanced
func (r *ProfileRepository) UpdateStreak(ctx context.Context, username string, streakDays int, day string) error {
	return r.db.WithContext(ctx).
		Model(&model.ViewerProfile{}).
		Where("username = ?", username).
		Updates(map[string]interface{}{
			"streak_days":     streakDays,
			"last_active_day": day,
		}).Error
}

func (r *ProfileRepository) AddWatchTime(ctx context.Context, username string, minutes int64) error {
	return r.db.WithContext(ctx).
		Model(&model.ViewerProfile{}).
		Where("username = ?", username).
		Update("watch_time_minutes", gorm.Expr("watch_time_minutes + ?", minutes)).Error
}

// SetOptOut flips the tracking flag; opting out also clears the streak
func (r *ProfileRepository) SetOptOut(ctx context.Context, username string, optedOut bool) error {
	updates := map[string]interface{}{"opted_out": optedOut}
	if optedOut {
		updates["streak_days"] = 0
	}

	return r.db.WithContext(ctx).
		Model(&model.ViewerProfile{}).
		Where("username = ?", username).
		Updates(updates).Error
}
