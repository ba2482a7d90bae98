package leaderboard

import (
	"context"
	"sync"
	"time"

	"engagement-service/internal/model"
	"github.com/sirupsen/logrus"
)

const flushTimeout = 10 * time.Second

type GifterStore interface {
	AddCoinsBatch(ctx context.Context, totals []model.GifterTotal) error
	GetAll(ctx context.Context, limit, offset int) ([]model.GifterTotal, error)
	Count(ctx context.Context) (int64, error)
}

// WriteBehind buffers all-time coin deltas and writes them in one batch a
// fixed delay after the first pending delta. A failed batch is merged back and
// retried on the next flush.
//
// The delay is not reset by later deltas. During a steady gift stream this
// writes once per delay instead of waiting for a quiet period that may never
// come, at the cost of more writes than a resetting debounce in bursty
// traffic.
type WriteBehind struct {
	store GifterStore
	delay time.Duration
	log   *logrus.Logger

	mu      sync.Mutex
	pending map[string]*model.GifterTotal
	timer   *time.Timer
	closed  bool
}

func NewWriteBehind(store GifterStore, delay time.Duration, log *logrus.Logger) *WriteBehind {
	return &WriteBehind{
		store:   store,
		delay:   delay,
		log:     log,
		pending: make(map[string]*model.GifterTotal),
	}
}

// Add buffers coins for userID and arms the flush timer if needed.
func (w *WriteBehind) Add(userID, displayName, avatarURL string, coins int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.merge(model.GifterTotal{UserID: userID, DisplayName: displayName, AvatarURL: avatarURL, Coins: coins})
	w.arm()
}

// Pending returns the number of users with unflushed deltas.
func (w *WriteBehind) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Flush writes every pending delta now.
func (w *WriteBehind) Flush(ctx context.Context) error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return nil
	}

	batch := make([]model.GifterTotal, 0, len(w.pending))
	now := time.Now()
	for _, total := range w.pending {
		total.UpdatedAt = now
		batch = append(batch, *total)
	}
	w.pending = make(map[string]*model.GifterTotal)
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()

	if err := w.store.AddCoinsBatch(ctx, batch); err != nil {
		w.log.WithFields(logrus.Fields{
			"error": err,
			"users": len(batch),
		}).Error("failed to flush all-time leaderboard, keeping deltas for retry")

		w.mu.Lock()
		for _, total := range batch {
			w.merge(total)
		}
		w.arm()
		w.mu.Unlock()
		return err
	}

	w.log.WithField("users", len(batch)).Debug("all-time leaderboard flushed")
	return nil
}

// Close stops the timer and flushes what is left.
func (w *WriteBehind) Close(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	return w.Flush(ctx)
}

// merge must be called with mu held.
func (w *WriteBehind) merge(delta model.GifterTotal) {
	current, ok := w.pending[delta.UserID]
	if !ok {
		copied := delta
		w.pending[delta.UserID] = &copied
		return
	}
	current.Coins += delta.Coins
	if delta.DisplayName != "" {
		current.DisplayName = delta.DisplayName
	}
	if delta.AvatarURL != "" {
		current.AvatarURL = delta.AvatarURL
	}
}

// arm must be called with mu held.
func (w *WriteBehind) arm() {
	if w.timer != nil || w.closed {
		return
	}
	w.timer = time.AfterFunc(w.delay, func() {
		_ = w.Flush(context.Background())
	})
}
