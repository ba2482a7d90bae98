package broadcast

import (
	"sync"
	"time"
)

// Channels pushed to display surfaces.
const (
	ChannelXPGained        = "xp_gained"
	ChannelEventStream     = "event_stream"
	ChannelLeaderboard     = "leaderboard_update"
	ChannelLevelUp         = "level_up"
	ChannelDailyBonus      = "daily_bonus"
	ChannelStreakMilestone = "streak_milestone"
	ChannelSpinResult      = "spin_result"
	ChannelSessionReset    = "session_reset"
)

type Message struct {
	Channel   string    `json:"channel"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

type Broadcaster interface {
	Broadcast(channel string, data any)
}

// Nop drops every message.
type Nop struct{}

func (Nop) Broadcast(string, any) {}

// Recorder keeps every message in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Broadcast(channel string, data any) {
	r.mu.Lock()
	r.messages = append(r.messages, Message{Channel: channel, Data: data, Timestamp: time.Now()})
	r.mu.Unlock()
}

// On returns the payloads sent on channel, oldest first.
func (r *Recorder) On(channel string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []any
	for _, m := range r.messages {
		if m.Channel == channel {
			out = append(out, m.Data)
		}
	}
	return out
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}
