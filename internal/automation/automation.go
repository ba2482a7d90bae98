// Package automation forwards named milestone events to the external
// automation engine.
package automation

import (
	"context"
	"sync"
)

const (
	EventXPGained          = "xp_gained"
	EventLevelUp           = "level_up"
	EventDailyBonus        = "daily_bonus"
	EventStreakMilestone   = "streak_milestone"
	EventCurrencyMilestone = "currency_milestone"
	EventTopSpender        = "top_spender"
)

type Sink interface {
	Fire(ctx context.Context, event string, payload map[string]any)
}

type Nop struct{}

func (Nop) Fire(context.Context, string, map[string]any) {}

type Fired struct {
	Event   string
	Payload map[string]any
}

// Recorder keeps fired events in memory.
type Recorder struct {
	mu    sync.Mutex
	fired []Fired
}

func (r *Recorder) Fire(_ context.Context, event string, payload map[string]any) {
	r.mu.Lock()
	r.fired = append(r.fired, Fired{Event: event, Payload: payload})
	r.mu.Unlock()
}

func (r *Recorder) Events(event string) []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []map[string]any
	for _, f := range r.fired {
		if f.Event == event {
			out = append(out, f.Payload)
		}
	}
	return out
}
