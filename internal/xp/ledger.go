package xp

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	"engagement-service/internal/automation"
	"engagement-service/internal/broadcast"
	"engagement-service/internal/model"
	"engagement-service/internal/settings"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const dayLayout = "2006-01-02"

// dayMark is a streak advance that has not been stored yet. It is written by
// the first credit of the day so a failed credit leaves the day unclaimed.
type dayMark struct {
	streak int
	day    string
}

// commit credits amount to profile, logs the award and recomputes the level.
// A non-nil mark is stored in the same transaction. Level-up and currency
// milestone notifications go out after the write.
func (e *Engine) commit(
	ctx context.Context,
	cfg *settings.Config,
	profile *model.ViewerProfile,
	action string,
	base, amount int64,
	d Details,
	mark *dayMark,
	now time.Time,
) (*model.ViewerProfile, error) {
	event := &model.XPEvent{
		CreatedAt:     now,
		EventID:       uuid.NewString(),
		SourceEventID: d.SourceEventID,
		UserID:        profile.UserID,
		Username:      profile.Username,
		ActionType:    action,
		BaseAmount:    base,
		AwardedAmount: amount,
		Metadata:      metadata(d),
	}

	var oldLevel, newLevel int
	updated, err := e.profiles.Credit(ctx, profile.Username, amount, event, func(p *model.ViewerProfile) []string {
		var columns []string
		if mark != nil {
			p.StreakDays = mark.streak
			p.LastActiveDay = mark.day
			columns = append(columns, "streak_days", "last_active_day")
		}

		oldLevel = p.Level
		newLevel = LevelFor(cfg.LevelCurve, p.TotalXPEarned)
		if newLevel == p.Level {
			return columns
		}

		columns = append(columns, "level")
		p.Level = newLevel
		for level := oldLevel + 1; level <= newLevel; level++ {
			reward, ok := cfg.LevelRewards[level]
			if !ok {
				continue
			}
			if reward.NameColor != "" {
				p.NameColor = reward.NameColor
				columns = append(columns, "name_color")
			}
			if p.AddBadge(reward.Title) {
				columns = append(columns, "badges")
			}
		}
		return compact(columns)
	})
	if err != nil {
		return nil, err
	}

	if newLevel > oldLevel {
		e.announceLevelUp(ctx, cfg, updated, oldLevel, newLevel)
	}
	e.checkCurrencyMilestones(ctx, cfg, updated, updated.XP-amount)

	return updated, nil
}

func (e *Engine) announceLevelUp(ctx context.Context, cfg *settings.Config, p *model.ViewerProfile, oldLevel, newLevel int) {
	notice := LevelUp{
		Username: p.Username,
		OldLevel: oldLevel,
		NewLevel: newLevel,
	}
	if reward, ok := cfg.LevelRewards[newLevel]; ok {
		notice.Rewards = &reward
		notice.Announcement = strings.NewReplacer(
			"{username}", p.Username,
			"{level}", strconv.Itoa(newLevel),
		).Replace(reward.Announcement)
	}

	e.broadcaster.Broadcast(broadcast.ChannelLevelUp, notice)
	e.sink.Fire(ctx, automation.EventLevelUp, map[string]any{
		"username":  p.Username,
		"old_level": oldLevel,
		"new_level": newLevel,
	})

	e.log.WithFields(logrus.Fields{
		"username":  p.Username,
		"old_level": oldLevel,
		"new_level": newLevel,
	}).Info("level up")
}

func (e *Engine) checkCurrencyMilestones(ctx context.Context, cfg *settings.Config, p *model.ViewerProfile, before int64) {
	for _, milestone := range cfg.Milestones.Currency {
		if before < milestone && p.XP >= milestone {
			e.sink.Fire(ctx, automation.EventCurrencyMilestone, map[string]any{
				"username":  p.Username,
				"milestone": milestone,
				"xp":        p.XP,
			})
		}
	}
}

// checkDaily works out the streak on the first qualifying event of a calendar
// day and grants the daily bonus together with it. When no bonus is paid the
// returned mark is left for the main award to store.
func (e *Engine) checkDaily(ctx context.Context, cfg *settings.Config, profile *model.ViewerProfile, now time.Time) (*model.ViewerProfile, *dayMark, error) {
	local := now.In(e.loc)
	today := local.Format(dayLayout)
	if profile.LastActiveDay == today {
		return profile, nil, nil
	}

	mark := &dayMark{streak: 1, day: today}
	if profile.LastActiveDay == local.AddDate(0, 0, -1).Format(dayLayout) {
		mark.streak = profile.StreakDays + 1
	}

	bonus, ok := cfg.Actions[settings.ActionDailyBonus]
	if !ok || !bonus.Enabled || bonus.XPAmount <= 0 {
		pending := *profile
		pending.StreakDays = mark.streak
		return &pending, mark, nil
	}

	updated, err := e.commit(ctx, cfg, profile, settings.ActionDailyBonus, bonus.XPAmount, bonus.XPAmount,
		Details{Metadata: map[string]any{"streak_days": mark.streak}}, mark, now)
	if err != nil {
		return nil, nil, err
	}
	e.announceStreak(ctx, cfg, updated.Username, mark.streak)

	e.broadcaster.Broadcast(broadcast.ChannelDailyBonus, DailyBonus{
		Username:   updated.Username,
		Amount:     bonus.XPAmount,
		StreakDays: mark.streak,
	})
	e.sink.Fire(ctx, automation.EventDailyBonus, map[string]any{
		"username":    updated.Username,
		"amount":      bonus.XPAmount,
		"streak_days": mark.streak,
	})

	return updated, nil, nil
}

func (e *Engine) announceStreak(ctx context.Context, cfg *settings.Config, username string, streak int) {
	if !slices.Contains(cfg.Milestones.Streak, streak) {
		return
	}
	e.broadcaster.Broadcast(broadcast.ChannelStreakMilestone, StreakMilestone{Username: username, StreakDays: streak})
	e.sink.Fire(ctx, automation.EventStreakMilestone, map[string]any{
		"username":    username,
		"streak_days": streak,
	})
}

func compact(columns []string) []string {
	slices.Sort(columns)
	return slices.Compact(columns)
}
