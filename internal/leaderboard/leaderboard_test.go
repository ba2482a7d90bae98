package leaderboard

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"engagement-service/internal/automation"
	"engagement-service/internal/broadcast"
	"engagement-service/internal/model"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryGifterStore struct {
	mu      sync.Mutex
	totals  map[string]model.GifterTotal
	batches int
	failing bool
}

func newMemoryGifterStore() *memoryGifterStore {
	return &memoryGifterStore{totals: make(map[string]model.GifterTotal)}
}

func (s *memoryGifterStore) AddCoinsBatch(_ context.Context, totals []model.GifterTotal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("database unavailable")
	}
	s.batches++
	for _, t := range totals {
		current := s.totals[t.UserID]
		current.UserID = t.UserID
		current.DisplayName = t.DisplayName
		current.Coins += t.Coins
		s.totals[t.UserID] = current
	}
	return nil
}

func (s *memoryGifterStore) GetAll(_ context.Context, limit, offset int) ([]model.GifterTotal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]model.GifterTotal, 0, len(s.totals))
	for _, t := range s.totals {
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UserID < all[j].UserID })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *memoryGifterStore) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.totals)), nil
}

func (s *memoryGifterStore) coins(userID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals[userID].Coins
}

func (s *memoryGifterStore) setFailing(failing bool) {
	s.mu.Lock()
	s.failing = failing
	s.mu.Unlock()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fixture struct {
	agg   *Aggregator
	store *memoryGifterStore
	out   *broadcast.Recorder
	auto  *automation.Recorder
	clock *fakeClock
}

func newFixture(flushDelay time.Duration) *fixture {
	f := &fixture{
		store: newMemoryGifterStore(),
		out:   &broadcast.Recorder{},
		auto:  &automation.Recorder{},
		clock: &fakeClock{now: time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)},
	}
	f.agg = New(f.store, f.out, f.auto, Options{
		Size:       10,
		FlushDelay: flushDelay,
		Throttle:   2 * time.Second,
		Now:        f.clock.Now,
	}, quietLogger())
	return f
}

func TestAddGiftReadYourWrites(t *testing.T) {
	f := newFixture(time.Hour)
	ctx := context.Background()

	f.agg.AddGift(ctx, Gift{UserID: "u1", DisplayName: "Alice", Coins: 100})
	f.agg.AddGift(ctx, Gift{UserID: "u2", DisplayName: "Bob", Coins: 300})
	f.agg.AddGift(ctx, Gift{UserID: "u1", DisplayName: "Alice", Coins: 250})

	assert.Equal(t, int64(350), f.agg.SessionCoins("u1"))
	assert.Equal(t, int64(350), f.agg.AllTimeCoins("u1"))
	assert.Equal(t, int64(0), f.store.coins("u1"), "nothing flushed yet")

	session := f.agg.Session()
	require.Len(t, session, 2)
	assert.Equal(t, "u1", session[0].UserID)
	assert.Equal(t, 1, session[0].Rank)
	assert.Equal(t, "u2", session[1].UserID)

	require.NoError(t, f.agg.Flush(ctx))
	assert.Equal(t, int64(350), f.store.coins("u1"))
	assert.Equal(t, int64(300), f.store.coins("u2"))
	assert.Equal(t, 1, f.store.batches)
}

func TestSnapshotsAreThrottled(t *testing.T) {
	f := newFixture(time.Hour)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		f.agg.AddGift(ctx, Gift{UserID: "u1", Coins: 1})
		f.clock.Advance(150 * time.Millisecond)
	}
	assert.Len(t, f.out.On(broadcast.ChannelLeaderboard), 1)

	f.clock.Advance(2 * time.Second)
	f.agg.AddGift(ctx, Gift{UserID: "u1", Coins: 1})
	assert.Len(t, f.out.On(broadcast.ChannelLeaderboard), 2)
}

func TestResetSessionKeepsAllTime(t *testing.T) {
	f := newFixture(time.Hour)
	ctx := context.Background()

	f.agg.AddGift(ctx, Gift{UserID: "u1", Coins: 500})
	f.agg.ResetSession()

	assert.Empty(t, f.agg.Session())
	assert.Equal(t, int64(500), f.agg.AllTimeCoins("u1"))
	assert.Len(t, f.out.On(broadcast.ChannelSessionReset), 1)

	snapshots := f.out.On(broadcast.ChannelLeaderboard)
	last := snapshots[len(snapshots)-1].(Snapshot)
	assert.Empty(t, last.Session)
	assert.Len(t, last.AllTime, 1)
}

func TestWriteBehindRetriesFailedFlush(t *testing.T) {
	f := newFixture(time.Hour)
	ctx := context.Background()

	f.store.setFailing(true)
	f.agg.AddGift(ctx, Gift{UserID: "u1", Coins: 40})
	require.Error(t, f.agg.Flush(ctx))

	f.agg.AddGift(ctx, Gift{UserID: "u1", Coins: 2})
	f.store.setFailing(false)
	require.NoError(t, f.agg.Close(ctx))

	assert.Equal(t, int64(42), f.store.coins("u1"))
	assert.Equal(t, 0, f.agg.buffer.Pending())
}

func TestWriteBehindFlushesAfterDelay(t *testing.T) {
	f := newFixture(20 * time.Millisecond)

	f.agg.AddGift(context.Background(), Gift{UserID: "u1", Coins: 7})
	f.agg.AddGift(context.Background(), Gift{UserID: "u1", Coins: 3})

	require.Eventually(t, func() bool { return f.store.coins("u1") == 10 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.store.batches)
}

func TestWriteBehindFlushesDuringSteadyStream(t *testing.T) {
	f := newFixture(20 * time.Millisecond)

	// deltas keep arriving faster than the delay, the first flush still happens
	for i := 0; i < 20; i++ {
		f.agg.AddGift(context.Background(), Gift{UserID: "u1", Coins: 1})
		time.Sleep(5 * time.Millisecond)
	}

	assert.Positive(t, f.store.coins("u1"))
}

func TestWarmLoadsAllPages(t *testing.T) {
	f := newFixture(time.Hour)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		f.store.totals[id] = model.GifterTotal{UserID: id, DisplayName: id, Coins: 10}
	}

	require.NoError(t, f.agg.Warm(context.Background(), 2))

	assert.Len(t, f.agg.AllTime(), 5)
	assert.Empty(t, f.agg.Session())

	f.agg.AddGift(context.Background(), Gift{UserID: "c", Coins: 5})
	assert.Equal(t, int64(15), f.agg.AllTimeCoins("c"))
}

func TestTopSpenderFiresOnLeaderChange(t *testing.T) {
	f := newFixture(time.Hour)
	ctx := context.Background()

	f.agg.AddGift(ctx, Gift{UserID: "u1", Coins: 100})
	f.agg.AddGift(ctx, Gift{UserID: "u2", Coins: 50})
	f.agg.AddGift(ctx, Gift{UserID: "u1", Coins: 10})
	f.agg.AddGift(ctx, Gift{UserID: "u2", Coins: 100})

	fired := f.auto.Events(automation.EventTopSpender)
	require.Len(t, fired, 2)
	assert.Equal(t, "u1", fired[0]["user_id"])
	assert.Equal(t, "u2", fired[1]["user_id"])
}

func TestForgetDropsSessionEntry(t *testing.T) {
	f := newFixture(time.Hour)
	f.agg.AddGift(context.Background(), Gift{UserID: "u1", Coins: 100})

	f.agg.Forget("u1")
	assert.Equal(t, int64(0), f.agg.SessionCoins("u1"))
	assert.Equal(t, int64(100), f.agg.AllTimeCoins("u1"))
}
