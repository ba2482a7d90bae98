package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestHitFixedWindow(t *testing.T) {
	s := New()

	assert.True(t, s.Hit("alice", "chat_message", t0, 30*time.Second, 1))
	assert.False(t, s.Hit("alice", "chat_message", t0.Add(10*time.Second), 30*time.Second, 1))
	assert.False(t, s.Hit("alice", "chat_message", t0.Add(29*time.Second), 30*time.Second, 1))
	assert.True(t, s.Hit("alice", "chat_message", t0.Add(30*time.Second), 30*time.Second, 1))

	// windows are independent per user and action
	assert.True(t, s.Hit("bob", "chat_message", t0, 30*time.Second, 1))
	assert.True(t, s.Hit("alice", "like", t0, 30*time.Second, 1))
}

func TestHitDoesNotSlide(t *testing.T) {
	s := New()
	interval := time.Minute

	// max events at the end of one window, then max again right after it expires
	for i := 0; i < 3; i++ {
		require.True(t, s.Hit("alice", "like", t0.Add(time.Duration(i)*time.Second), interval, 3))
	}
	assert.False(t, s.Hit("alice", "like", t0.Add(59*time.Second), interval, 3))

	for i := 0; i < 3; i++ {
		assert.True(t, s.Hit("alice", "like", t0.Add(60*time.Second+time.Duration(i)*time.Second), interval, 3))
	}
	assert.False(t, s.Hit("alice", "like", t0.Add(63*time.Second), interval, 3))
}

func TestGlobalXPWindowsResetIndependently(t *testing.T) {
	s := New()

	s.AddXP("alice", t0, 100)
	five, hour := s.GlobalXP("alice", t0.Add(time.Minute))
	assert.Equal(t, int64(100), five)
	assert.Equal(t, int64(100), hour)

	s.AddXP("alice", t0.Add(6*time.Minute), 50)
	five, hour = s.GlobalXP("alice", t0.Add(6*time.Minute))
	assert.Equal(t, int64(50), five)
	assert.Equal(t, int64(150), hour)

	five, hour = s.GlobalXP("alice", t0.Add(61*time.Minute))
	assert.Equal(t, int64(0), five)
	assert.Equal(t, int64(0), hour)
}

func TestCooldownMarks(t *testing.T) {
	s := New()

	_, ok := s.LastAward("alice", "share")
	assert.False(t, ok)

	s.MarkAward("alice", "share", t0)
	at, ok := s.LastAward("alice", "share")
	require.True(t, ok)
	assert.Equal(t, t0, at)
}

func TestSweepEvictsStaleEntries(t *testing.T) {
	s := New()

	s.MarkAward("alice", "share", t0)
	s.Hit("alice", "share", t0, time.Minute, 1)
	s.AddXP("alice", t0, 10)
	s.MarkAward("bob", "share", t0.Add(50*time.Minute))
	require.Equal(t, 4, s.Len())

	removed := s.Sweep(t0.Add(90*time.Minute), time.Hour)
	assert.Equal(t, 3, removed)
	assert.Equal(t, 1, s.Len())

	_, ok := s.LastAward("bob", "share")
	assert.True(t, ok)
}

func TestForgetAndReset(t *testing.T) {
	s := New()
	s.MarkAward("alice", "share", t0)
	s.Hit("alice", "like", t0, time.Minute, 1)
	s.AddXP("alice", t0, 10)
	s.MarkAward("bob", "share", t0)

	s.Forget("alice")
	assert.Equal(t, 1, s.Len())

	s.Reset()
	assert.Equal(t, 0, s.Len())
}
