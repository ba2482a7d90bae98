// Package spin implements the XP wager. A spin stakes bet XP, draws one field
// uniformly and moves the balance by field value minus bet, never below zero.
package spin

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"engagement-service/internal/broadcast"
	"engagement-service/internal/model"
	"engagement-service/internal/repository"
	"engagement-service/internal/settings"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrDisabled        = errors.New("spin is disabled")
	ErrInvalidBet      = errors.New("bet outside allowed range")
	ErrProfileNotFound = errors.New("profile not found")
	ErrOptedOut        = errors.New("viewer opted out")
	ErrInsufficientXP  = errors.New("insufficient xp for bet")
	ErrVoided          = errors.New("spin voided, balance would go negative")
)

type ProfileStore interface {
	Get(ctx context.Context, username string) (*model.ViewerProfile, error)
	ApplySpin(ctx context.Context, username string, net int64, record *model.SpinTransaction) error
}

type SettingsSource interface {
	Current() *settings.Config
}

type Result struct {
	TransactionID string    `json:"transaction_id"`
	Username      string    `json:"username"`
	Bet           int64     `json:"bet"`
	FieldIndex    int       `json:"field_index"`
	FieldValue    int64     `json:"field_value"`
	NetChange     int64     `json:"net_change"`
	BalanceBefore int64     `json:"balance_before"`
	BalanceAfter  int64     `json:"balance_after"`
	Timestamp     time.Time `json:"timestamp"`
}

type Options struct {
	// Pick returns a uniform index in [0, n). Defaults to math/rand/v2.IntN.
	Pick func(n int) int
	Now  func() time.Time
}

type Engine struct {
	profiles    ProfileStore
	settings    SettingsSource
	broadcaster broadcast.Broadcaster
	log         *logrus.Logger
	pick        func(n int) int
	now         func() time.Time
}

func New(profiles ProfileStore, source SettingsSource, broadcaster broadcast.Broadcaster, opts Options, log *logrus.Logger) *Engine {
	if opts.Pick == nil {
		opts.Pick = rand.IntN
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		profiles:    profiles,
		settings:    source,
		broadcaster: broadcaster,
		log:         log,
		pick:        opts.Pick,
		now:         opts.Now,
	}
}

// Spin wagers bet XP of username. A bet of 0 uses the configured default.
func (e *Engine) Spin(ctx context.Context, username string, bet int64) (*Result, error) {
	cfg := e.settings.Current().Spin
	fields := logrus.Fields{"username": username, "bet": bet}

	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if bet == 0 {
		bet = cfg.DefaultBet
		fields["bet"] = bet
	}
	if bet < cfg.MinBet || bet > cfg.MaxBet {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidBet, bet, cfg.MinBet, cfg.MaxBet)
	}

	profile, err := e.profiles.Get(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		e.log.WithFields(fields).WithError(err).Error("failed to load profile")
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if profile.OptedOut {
		return nil, ErrOptedOut
	}
	if profile.XP < bet {
		return nil, ErrInsufficientXP
	}

	index := e.pick(len(cfg.FieldValues))
	value := cfg.FieldValues[index]
	net := value - bet
	if profile.XP+net < 0 {
		e.log.WithFields(fields).WithField("net", net).Info("spin voided")
		return nil, ErrVoided
	}

	record := &model.SpinTransaction{
		CreatedAt:     e.now(),
		TransactionID: uuid.NewString(),
		Bet:           bet,
		FieldIndex:    index,
		FieldValue:    value,
	}
	if err := e.profiles.ApplySpin(ctx, username, net, record); err != nil {
		if errors.Is(err, repository.ErrNotApplied) {
			// balance moved between the read and the guarded update
			e.log.WithFields(fields).WithField("net", net).Info("spin voided by concurrent change")
			return nil, ErrVoided
		}
		e.log.WithFields(fields).WithError(err).Error("failed to apply spin")
		return nil, fmt.Errorf("failed to apply spin: %w", err)
	}

	result := &Result{
		TransactionID: record.TransactionID,
		Username:      username,
		Bet:           bet,
		FieldIndex:    index,
		FieldValue:    value,
		NetChange:     net,
		BalanceBefore: record.BalanceBefore,
		BalanceAfter:  record.BalanceAfter,
		Timestamp:     record.CreatedAt,
	}
	e.broadcaster.Broadcast(broadcast.ChannelSpinResult, result)

	e.log.WithFields(logrus.Fields{
		"username":      username,
		"bet":           bet,
		"field_value":   value,
		"net":           net,
		"balance_after": result.BalanceAfter,
	}).Info("spin settled")

	return result, nil
}
