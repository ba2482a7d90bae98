package xp

import (
	"context"
	"errors"
	"math"

	"engagement-service/internal/leaderboard"
	"engagement-service/internal/repository"
	"engagement-service/internal/settings"
)

type GiftEvent struct {
	Username      string
	UserID        string
	UniqueID      string
	Nickname      string
	AvatarURL     string
	GiftName      string
	Coins         int64
	RepeatCount   int64
	SourceEventID string
}

// Value is the total coin value of the gift streak, saturating at MaxInt64.
func (g GiftEvent) Value() int64 {
	if g.RepeatCount <= 1 || g.Coins <= 0 {
		return g.Coins
	}
	if g.Coins > math.MaxInt64/g.RepeatCount {
		return math.MaxInt64
	}
	return g.Coins * g.RepeatCount
}

// AwardGift feeds the leaderboard and awards the XP of the tier the gift
// value falls into.
func (e *Engine) AwardGift(ctx context.Context, g GiftEvent) (bool, error) {
	if g.Username == "" {
		return false, ErrInvalidUsername
	}
	value := g.Value()
	if value <= 0 {
		return false, nil
	}

	profile, err := e.profiles.Get(ctx, g.Username)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}
	if profile != nil && profile.OptedOut {
		return false, nil
	}

	displayName := g.Nickname
	if displayName == "" {
		displayName = g.Username
	}
	e.board.AddGift(ctx, leaderboard.Gift{
		UserID:      giftKey(g.UserID, g.Username),
		DisplayName: displayName,
		AltID:       g.UniqueID,
		AvatarURL:   g.AvatarURL,
		Coins:       value,
	})

	action := GiftTier(e.settings.Current().GiftTiers, value)
	if action == "" {
		return false, nil
	}

	quantity := g.RepeatCount
	if quantity < 1 {
		quantity = 1
	}
	return e.AwardXP(ctx, g.Username, action, Details{
		UserID:        g.UserID,
		SourceEventID: g.SourceEventID,
		GiftName:      g.GiftName,
		GiftValue:     value,
		Metadata:      map[string]any{"quantity": quantity},
	})
}

// GiftTier returns the action of the highest tier whose minimum value is
// reached, or "" when value is below every tier.
func GiftTier(tiers []settings.GiftTier, value int64) string {
	action := ""
	for _, tier := range tiers {
		if value >= tier.MinCoins {
			action = tier.Action
		}
	}
	return action
}

func giftKey(userID, username string) string {
	if userID != "" {
		return userID
	}
	return username
}
