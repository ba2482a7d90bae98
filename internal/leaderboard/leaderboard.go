// Package leaderboard aggregates gifted coins into a resettable session
// ranking and a persisted all-time ranking, and pushes throttled snapshots of
// both to display surfaces.
package leaderboard

import (
	"context"
	"sort"
	"sync"
	"time"

	"engagement-service/internal/automation"
	"engagement-service/internal/broadcast"
	"github.com/sirupsen/logrus"
)

const warmupTimeout = 30 * time.Second

type Gift struct {
	UserID      string
	DisplayName string
	AltID       string
	AvatarURL   string
	Coins       int64
}

type Entry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	AltID       string `json:"alt_id,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Coins       int64  `json:"coins"`
}

type Snapshot struct {
	Session []Entry `json:"session"`
	AllTime []Entry `json:"all_time"`
}

type Options struct {
	Size       int
	FlushDelay time.Duration
	Throttle   time.Duration
	Now        func() time.Time
}

type Aggregator struct {
	log         *logrus.Logger
	broadcaster broadcast.Broadcaster
	sink        automation.Sink
	buffer      *WriteBehind
	throttle    *Throttle
	store       GifterStore
	size        int

	mu      sync.RWMutex
	session map[string]*Entry
	allTime map[string]*Entry
	leader  string
}

func New(
	store GifterStore,
	broadcaster broadcast.Broadcaster,
	sink automation.Sink,
	opts Options,
	log *logrus.Logger,
) *Aggregator {
	if opts.Size <= 0 {
		opts.Size = 10
	}
	return &Aggregator{
		log:         log,
		broadcaster: broadcaster,
		sink:        sink,
		buffer:      NewWriteBehind(store, opts.FlushDelay, log),
		throttle:    NewThrottle(opts.Throttle, opts.Now),
		store:       store,
		size:        opts.Size,
		session:     make(map[string]*Entry),
		allTime:     make(map[string]*Entry),
	}
}

// AddGift accumulates coins in both windows and offers a snapshot to the
// throttle. The all-time delta reaches storage later through the write-behind
// buffer.
func (a *Aggregator) AddGift(ctx context.Context, gift Gift) {
	if gift.UserID == "" || gift.Coins <= 0 {
		return
	}

	a.mu.Lock()
	accumulate(a.session, gift)
	accumulate(a.allTime, gift)
	newLeader := a.updateLeader()
	a.mu.Unlock()

	a.buffer.Add(gift.UserID, gift.DisplayName, gift.AvatarURL, gift.Coins)

	if newLeader != nil {
		a.sink.Fire(ctx, automation.EventTopSpender, map[string]any{
			"user_id":      newLeader.UserID,
			"display_name": newLeader.DisplayName,
			"coins":        newLeader.Coins,
		})
	}

	if a.throttle.Allow() {
		a.broadcaster.Broadcast(broadcast.ChannelLeaderboard, a.Snapshot())
	}
}

// ResetSession clears the session window only and announces the cleared
// state unthrottled.
func (a *Aggregator) ResetSession() {
	a.mu.Lock()
	a.session = make(map[string]*Entry)
	a.leader = ""
	a.mu.Unlock()

	a.log.Info("session leaderboard reset")

	snapshot := a.Snapshot()
	a.broadcaster.Broadcast(broadcast.ChannelSessionReset, map[string]any{"session": snapshot.Session})
	a.broadcaster.Broadcast(broadcast.ChannelLeaderboard, snapshot)
}

// Forget removes userID from the session window.
func (a *Aggregator) Forget(userID string) {
	a.mu.Lock()
	delete(a.session, userID)
	if a.leader == userID {
		a.leader = ""
	}
	a.mu.Unlock()
}

func (a *Aggregator) Session() []Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return ranked(a.session, a.size)
}

func (a *Aggregator) AllTime() []Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return ranked(a.allTime, a.size)
}

func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Snapshot{
		Session: ranked(a.session, a.size),
		AllTime: ranked(a.allTime, a.size),
	}
}

// SessionCoins returns the session total of userID.
func (a *Aggregator) SessionCoins(userID string) int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if e, ok := a.session[userID]; ok {
		return e.Coins
	}
	return 0
}

// AllTimeCoins returns the all-time total of userID, including unflushed deltas.
func (a *Aggregator) AllTimeCoins(userID string) int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if e, ok := a.allTime[userID]; ok {
		return e.Coins
	}
	return 0
}

// Flush forces pending all-time deltas to storage.
func (a *Aggregator) Flush(ctx context.Context) error {
	return a.buffer.Flush(ctx)
}

// Close flushes pending deltas; it must run before shutdown.
func (a *Aggregator) Close(ctx context.Context) error {
	return a.buffer.Close(ctx)
}

// Warm loads stored all-time totals page by page.
func (a *Aggregator) Warm(ctx context.Context, batchSize int) error {
	ctx, cancel := context.WithTimeout(ctx, warmupTimeout)
	defer cancel()

	total, err := a.store.Count(ctx)
	if err != nil {
		return err
	}
	if total == 0 {
		a.log.Debug("no all-time gifter totals to load")
		return nil
	}

	var loaded int64
	offset := 0
	for {
		page, err := a.store.GetAll(ctx, batchSize, offset)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}

		a.mu.Lock()
		for _, t := range page {
			e, ok := a.allTime[t.UserID]
			if !ok {
				e = &Entry{UserID: t.UserID}
				a.allTime[t.UserID] = e
			}
			e.Coins += t.Coins
			if e.DisplayName == "" {
				e.DisplayName = t.DisplayName
			}
			if e.AvatarURL == "" {
				e.AvatarURL = t.AvatarURL
			}
			loaded++
		}
		a.mu.Unlock()

		offset += len(page)
		if len(page) < batchSize {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	a.log.WithFields(logrus.Fields{
		"loaded": loaded,
		"total":  total,
	}).Info("all-time leaderboard loaded")
	return nil
}

// updateLeader must be called with mu held. It returns the new session
// leader when the top spot changed hands.
func (a *Aggregator) updateLeader() *Entry {
	var top *Entry
	for _, e := range a.session {
		if top == nil || e.Coins > top.Coins {
			top = e
		}
	}
	if top == nil || top.UserID == a.leader {
		return nil
	}
	if current, ok := a.session[a.leader]; ok && current.Coins >= top.Coins {
		return nil
	}
	a.leader = top.UserID
	copied := *top
	return &copied
}

func accumulate(window map[string]*Entry, gift Gift) {
	e, ok := window[gift.UserID]
	if !ok {
		e = &Entry{UserID: gift.UserID}
		window[gift.UserID] = e
	}
	e.Coins += gift.Coins
	if gift.DisplayName != "" {
		e.DisplayName = gift.DisplayName
	}
	if gift.AltID != "" {
		e.AltID = gift.AltID
	}
	if gift.AvatarURL != "" {
		e.AvatarURL = gift.AvatarURL
	}
}

func ranked(window map[string]*Entry, size int) []Entry {
	entries := make([]Entry, 0, len(window))
	for _, e := range window {
		entries = append(entries, *e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Coins != entries[j].Coins {
			return entries[i].Coins > entries[j].Coins
		}
		return entries[i].UserID < entries[j].UserID
	})

	if len(entries) > size {
		entries = entries[:size]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
