package xp

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"engagement-service/internal/automation"
	"engagement-service/internal/broadcast"
	"engagement-service/internal/database"
	"engagement-service/internal/leaderboard"
	"engagement-service/internal/model"
	"engagement-service/internal/repository"
	"engagement-service/internal/settings"
	"engagement-service/internal/tracker"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type staticSettings struct {
	cfg *settings.Config
}

func (s staticSettings) Current() *settings.Config { return s.cfg }

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

type fixture struct {
	engine   *Engine
	profiles *repository.ProfileRepository
	events   *repository.EventRepository
	board    *leaderboard.Aggregator
	trackers *tracker.Store
	out      *broadcast.Recorder
	auto     *automation.Recorder
	clock    *fakeClock
	cfg      *settings.Config
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// baseConfig keeps only what a test opts into: no daily bonus, no limits,
// no caps, no streak bonus, chat worth 5 XP without cooldown.
func baseConfig() *settings.Config {
	cfg := settings.Defaults()
	cfg.Actions[settings.ActionChatMessage] = settings.Action{XPAmount: 5, Enabled: true}
	cfg.Actions[settings.ActionDailyBonus] = settings.Action{XPAmount: 100, Enabled: false}
	cfg.RateLimits.PerUserPerEvent = map[string]settings.Window{}
	cfg.RateLimits.GlobalLimits = settings.GlobalLimits{}
	cfg.EventCaps = map[string]int64{}
	cfg.Multipliers.Global = 1
	cfg.Streaks.Enabled = false
	cfg.LevelCurve = settings.LevelCurve{Type: settings.CurveLinear, XPPerLevel: 1000}
	cfg.LevelRewards = map[int]settings.LevelReward{}
	return cfg
}

func newFixture(t *testing.T, mutate func(*settings.Config)) *fixture {
	t.Helper()

	log := quietLogger()
	db, err := database.NewSQLite(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := baseConfig()
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	f := &fixture{
		profiles: repository.NewProfileRepository(db.DB, log),
		events:   repository.NewEventRepository(db.DB, log),
		trackers: tracker.New(),
		out:      &broadcast.Recorder{},
		auto:     &automation.Recorder{},
		clock:    &fakeClock{now: time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)},
		cfg:      cfg,
	}
	f.board = leaderboard.New(repository.NewGifterRepository(db.DB, log), f.out, f.auto, leaderboard.Options{
		FlushDelay: time.Hour,
		Throttle:   2 * time.Second,
		Now:        f.clock.Now,
	}, log)
	f.engine = New(f.profiles, staticSettings{cfg}, f.trackers, f.board, f.out, f.auto, Options{
		Now:      f.clock.Now,
		Location: time.UTC,
	}, log)
	return f
}

func (f *fixture) profile(t *testing.T, username string) *model.ViewerProfile {
	t.Helper()
	p, err := f.profiles.Get(context.Background(), username)
	require.NoError(t, err)
	return p
}

func (f *fixture) award(t *testing.T, username, action string) bool {
	t.Helper()
	ok, err := f.engine.AwardXP(context.Background(), username, action, Details{UserID: "id-" + username})
	require.NoError(t, err)
	return ok
}
