package spin

import (
	"context"
	"errors"
	"io"
	"testing"

	"engagement-service/internal/broadcast"
	"engagement-service/internal/database"
	"engagement-service/internal/model"
	"engagement-service/internal/repository"
	"engagement-service/internal/settings"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type staticSettings struct {
	cfg *settings.Config
}

func (s staticSettings) Current() *settings.Config { return s.cfg }

type fixture struct {
	engine   *Engine
	db       *gorm.DB
	profiles *repository.ProfileRepository
	events   *repository.EventRepository
	out      *broadcast.Recorder
	cfg      *settings.Config
	index    int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	db, err := database.NewSQLite(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := settings.Defaults()
	cfg.Spin = settings.Spin{
		Enabled:     true,
		MinBet:      100,
		MaxBet:      10000,
		DefaultBet:  500,
		FieldValues: []int64{10000, -2000, -500, 0},
	}

	f := &fixture{
		db:       db.DB,
		profiles: repository.NewProfileRepository(db.DB, log),
		events:   repository.NewEventRepository(db.DB, log),
		out:      &broadcast.Recorder{},
		cfg:      cfg,
	}
	f.engine = New(f.profiles, staticSettings{cfg}, f.out, Options{
		Pick: func(n int) int { return f.index },
	}, log)
	return f
}

func (f *fixture) viewer(t *testing.T, username string, xp int64) {
	t.Helper()
	_, err := f.profiles.GetOrCreate(context.Background(), username, "id-"+username)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&model.ViewerProfile{}).Where("username = ?", username).Update("xp", xp).Error)
}

func (f *fixture) xp(t *testing.T, username string) int64 {
	t.Helper()
	p, err := f.profiles.Get(context.Background(), username)
	require.NoError(t, err)
	return p.XP
}

func (f *fixture) spins(t *testing.T, username string) []model.SpinTransaction {
	t.Helper()
	spins, err := f.events.ListSpins(context.Background(), username, 10)
	require.NoError(t, err)
	return spins
}

func TestSpinWinAddsFieldMinusBet(t *testing.T) {
	f := newFixture(t)
	f.viewer(t, "alice", 6000)
	f.index = 0

	res, err := f.engine.Spin(context.Background(), "alice", 5000)
	require.NoError(t, err)

	assert.Equal(t, int64(5000), res.NetChange)
	assert.Equal(t, int64(6000), res.BalanceBefore)
	assert.Equal(t, int64(11000), res.BalanceAfter)
	assert.Equal(t, int64(11000), f.xp(t, "alice"))
	assert.NotEmpty(t, res.TransactionID)

	spins := f.spins(t, "alice")
	require.Len(t, spins, 1)
	assert.Equal(t, res.TransactionID, spins[0].TransactionID)
	assert.Equal(t, spins[0].BalanceBefore+spins[0].NetChange, spins[0].BalanceAfter)
	assert.Len(t, f.out.On(broadcast.ChannelSpinResult), 1)
}

func TestSpinLossWithinBalance(t *testing.T) {
	f := newFixture(t)
	f.viewer(t, "alice", 8000)
	f.index = 1

	res, err := f.engine.Spin(context.Background(), "alice", 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(-7000), res.NetChange)
	assert.Equal(t, int64(1000), f.xp(t, "alice"))
}

func TestSpinVoidedWhenBalanceWouldGoNegative(t *testing.T) {
	f := newFixture(t)
	f.viewer(t, "dave", 5000)
	f.index = 1

	// net -7000 against 5000
	res, err := f.engine.Spin(context.Background(), "dave", 5000)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrVoided))
	assert.Equal(t, int64(5000), f.xp(t, "dave"))
	assert.Empty(t, f.spins(t, "dave"))
	assert.Zero(t, f.out.Len())
}

func TestSpinRejectedBalanceUnchanged(t *testing.T) {
	f := newFixture(t)
	f.viewer(t, "erin", 3000)
	f.index = 1

	_, err := f.engine.Spin(context.Background(), "erin", 5000)
	assert.Error(t, err)
	assert.Equal(t, int64(3000), f.xp(t, "erin"))
	assert.Empty(t, f.spins(t, "erin"))
}

func TestSpinBobLosesPartOfBet(t *testing.T) {
	f := newFixture(t)
	f.viewer(t, "bob", 2000)
	f.index = 2

	res, err := f.engine.Spin(context.Background(), "bob", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(-1500), res.NetChange)
	assert.Equal(t, int64(500), res.BalanceAfter)
	assert.Equal(t, int64(500), f.xp(t, "bob"))
}

func TestSpinCarolCannotCoverBet(t *testing.T) {
	f := newFixture(t)
	f.viewer(t, "carol", 100)

	_, err := f.engine.Spin(context.Background(), "carol", 1000)
	assert.True(t, errors.Is(err, ErrInsufficientXP))
	assert.Equal(t, int64(100), f.xp(t, "carol"))
	assert.Empty(t, f.spins(t, "carol"))
}

func TestSpinPreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.viewer(t, "alice", 1000)

	_, err := f.engine.Spin(ctx, "alice", 50)
	assert.True(t, errors.Is(err, ErrInvalidBet))
	_, err = f.engine.Spin(ctx, "alice", 20000)
	assert.True(t, errors.Is(err, ErrInvalidBet))

	_, err = f.engine.Spin(ctx, "nobody", 500)
	assert.True(t, errors.Is(err, ErrProfileNotFound))

	require.NoError(t, f.profiles.SetOptOut(ctx, "alice", true))
	_, err = f.engine.Spin(ctx, "alice", 500)
	assert.True(t, errors.Is(err, ErrOptedOut))

	f.cfg.Spin.Enabled = false
	_, err = f.engine.Spin(ctx, "alice", 500)
	assert.True(t, errors.Is(err, ErrDisabled))

	assert.Equal(t, int64(1000), f.xp(t, "alice"))
}

func TestSpinZeroBetUsesDefault(t *testing.T) {
	f := newFixture(t)
	f.viewer(t, "alice", 1000)
	f.index = 3

	res, err := f.engine.Spin(context.Background(), "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(500), res.Bet)
	assert.Equal(t, int64(-500), res.NetChange)
	assert.Equal(t, int64(500), f.xp(t, "alice"))
}

type racingStore struct {
	profile *model.ViewerProfile
}

func (s *racingStore) Get(context.Context, string) (*model.ViewerProfile, error) {
	return s.profile, nil
}

func (s *racingStore) ApplySpin(context.Context, string, int64, *model.SpinTransaction) error {
	return repository.ErrNotApplied
}

func TestSpinVoidedWhenGuardRejects(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	out := &broadcast.Recorder{}

	engine := New(&racingStore{profile: &model.ViewerProfile{Username: "alice", XP: 1000}},
		staticSettings{settings.Defaults()}, out, Options{Pick: func(int) int { return 0 }}, log)

	_, err := engine.Spin(context.Background(), "alice", 500)
	assert.True(t, errors.Is(err, ErrVoided))
	assert.Zero(t, out.Len())
}
