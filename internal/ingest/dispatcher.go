// Package ingest maps normalized viewer records onto the engine entry points.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"engagement-service/internal/settings"
	"engagement-service/internal/spin"
	"engagement-service/internal/xp"
	"github.com/sirupsen/logrus"
)

type Awarder interface {
	AwardXP(ctx context.Context, username, action string, d xp.Details) (bool, error)
	AwardGift(ctx context.Context, g xp.GiftEvent) (bool, error)
	RecordWatchTime(ctx context.Context, username, userID string, minutes int64) (bool, error)
	SetOptOut(ctx context.Context, username, userID string, optedOut bool) error
}

type Spinner interface {
	Spin(ctx context.Context, username string, bet int64) (*spin.Result, error)
}

// Journal remembers which ingress events were already handled.
type Journal interface {
	SourceEventExists(ctx context.Context, sourceEventID string) (bool, error)
	MarkProcessed(ctx context.Context, sourceEventID, eventType string) error
}

type Dispatcher struct {
	awarder Awarder
	spinner Spinner
	journal Journal
	log     *logrus.Logger
}

func NewDispatcher(awarder Awarder, spinner Spinner, journal Journal, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		awarder: awarder,
		spinner: spinner,
		journal: journal,
		log:     log,
	}
}

// Dispatch validates rec and hands it to the matching engine call. Rejections
// by gates, limits or spin preconditions are not errors.
func (d *Dispatcher) Dispatch(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	fields := logrus.Fields{
		"type":     rec.Type,
		"username": rec.Username,
		"event_id": rec.EventID,
	}

	if rec.EventID != "" {
		seen, err := d.journal.SourceEventExists(ctx, rec.EventID)
		if err != nil {
			d.log.WithFields(fields).WithError(err).Warn("failed to check duplicate, processing anyway")
		} else if seen {
			d.log.WithFields(fields).Debug("duplicate event skipped")
			return nil
		}
	}

	awarded, err := d.route(ctx, rec)
	if err != nil {
		return err
	}

	// rejected records count too: a gift still reached the leaderboard
	if rec.EventID != "" {
		if err := d.journal.MarkProcessed(ctx, rec.EventID, rec.Type); err != nil {
			d.log.WithFields(fields).WithError(err).Warn("failed to mark event processed")
		}
	}

	d.log.WithFields(fields).WithField("awarded", awarded).Debug("record processed")
	return nil
}

func (d *Dispatcher) route(ctx context.Context, rec Record) (bool, error) {
	details := xp.Details{
		UserID:        rec.UserID,
		SourceEventID: rec.EventID,
	}

	switch rec.Type {
	case TypeChat:
		if cmd, ok := parseCommand(rec.Comment); ok {
			if handled, err := d.command(ctx, rec, cmd); handled {
				return false, err
			}
		}
		return d.awarder.AwardXP(ctx, rec.Username, settings.ActionChatMessage, details)

	case TypeLike:
		if rec.LikeCount > 0 {
			details.Metadata = map[string]any{"like_count": rec.LikeCount}
		}
		return d.awarder.AwardXP(ctx, rec.Username, settings.ActionLike, details)

	case TypeShare:
		return d.awarder.AwardXP(ctx, rec.Username, settings.ActionShare, details)

	case TypeFollow:
		return d.awarder.AwardXP(ctx, rec.Username, settings.ActionFollow, details)

	case TypeGift:
		return d.awarder.AwardGift(ctx, xp.GiftEvent{
			Username:      rec.Username,
			UserID:        rec.UserID,
			UniqueID:      rec.UniqueID,
			Nickname:      rec.Nickname,
			AvatarURL:     rec.ProfilePictureURL,
			GiftName:      rec.GiftName,
			Coins:         rec.Coins,
			RepeatCount:   rec.RepeatCount,
			SourceEventID: rec.EventID,
		})

	case TypeWatchTime:
		return d.awarder.RecordWatchTime(ctx, rec.Username, rec.UserID, rec.Minutes)

	case TypeManualAward, TypeIFTTTAward:
		details.Amount = rec.Amount
		details.Reason = rec.Reason
		action := settings.ActionManualAward
		if rec.Type == TypeIFTTTAward {
			action = settings.ActionIFTTTAward
		}
		return d.awarder.AwardXP(ctx, rec.Username, action, details)

	case TypeSpin:
		return false, d.spin(ctx, rec.Username, rec.Bet)

	case TypeOptOut, TypeOptIn:
		return false, d.awarder.SetOptOut(ctx, rec.Username, rec.UserID, rec.Type == TypeOptOut)

	case TypeJoin:
		d.log.WithField("username", rec.Username).Debug("join ignored")
		return false, nil
	}

	return false, fmt.Errorf("%w: unknown type %q", ErrMalformed, rec.Type)
}

// command runs a chat command. Unknown commands are treated as plain chat.
func (d *Dispatcher) command(ctx context.Context, rec Record, cmd command) (bool, error) {
	switch cmd.name {
	case "spin":
		bet, err := parseBet(cmd.arg)
		if err != nil {
			d.log.WithField("username", rec.Username).WithError(err).Info("spin command ignored")
			return true, nil
		}
		return true, d.spin(ctx, rec.Username, bet)
	case "optout":
		return true, d.awarder.SetOptOut(ctx, rec.Username, rec.UserID, true)
	case "optin":
		return true, d.awarder.SetOptOut(ctx, rec.Username, rec.UserID, false)
	}
	return false, nil
}

func (d *Dispatcher) spin(ctx context.Context, username string, bet int64) error {
	_, err := d.spinner.Spin(ctx, username, bet)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, spin.ErrDisabled),
		errors.Is(err, spin.ErrInvalidBet),
		errors.Is(err, spin.ErrProfileNotFound),
		errors.Is(err, spin.ErrOptedOut),
		errors.Is(err, spin.ErrInsufficientXP),
		errors.Is(err, spin.ErrVoided):
		d.log.WithFields(logrus.Fields{
			"username": username,
			"bet":      bet,
			"reason":   err.Error(),
		}).Info("spin rejected")
		return nil
	}
	return err
}
