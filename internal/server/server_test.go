package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"engagement-service/internal/config"
	"engagement-service/internal/leaderboard"
	"engagement-service/internal/model"
	"engagement-service/internal/repository"
	"engagement-service/internal/settings"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBoard struct {
	snapshot leaderboard.Snapshot
	resets   int
}

func (b *fakeBoard) Snapshot() leaderboard.Snapshot { return b.snapshot }

func (b *fakeBoard) ResetSession() {
	b.resets++
	b.snapshot.Session = nil
}

type fakeViewers struct {
	profiles map[string]*model.ViewerProfile
	optOut   map[string]bool
}

func (v *fakeViewers) Profile(_ context.Context, username string) (*model.ViewerProfile, error) {
	p, ok := v.profiles[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (v *fakeViewers) SetOptOut(_ context.Context, username, _ string, optedOut bool) error {
	v.optOut[username] = optedOut
	return nil
}

type fakeHistory struct{}

func (fakeHistory) ListByUsername(_ context.Context, username string, limit int) ([]model.XPEvent, error) {
	return []model.XPEvent{{Username: username, ActionType: settings.ActionChatMessage, AwardedAmount: 5}}, nil
}

func (fakeHistory) ListSpins(context.Context, string, int) ([]model.SpinTransaction, error) {
	return nil, nil
}

type fakeSettings struct {
	cfg     *settings.Config
	updates map[string]string
	err     error
}

func (s *fakeSettings) Current() *settings.Config { return s.cfg }

func (s *fakeSettings) Update(_ context.Context, name string, raw []byte) error {
	if s.err != nil {
		return s.err
	}
	s.updates[name] = string(raw)
	return nil
}

type fixture struct {
	server   *Server
	board    *fakeBoard
	viewers  *fakeViewers
	settings *fakeSettings
}

func newFixture() *fixture {
	log := logrus.New()
	log.SetOutput(io.Discard)

	f := &fixture{
		board: &fakeBoard{snapshot: leaderboard.Snapshot{
			Session: []leaderboard.Entry{{Rank: 1, UserID: "42", DisplayName: "Alice", Coins: 100}},
			AllTime: []leaderboard.Entry{{Rank: 1, UserID: "42", DisplayName: "Alice", Coins: 900}},
		}},
		viewers: &fakeViewers{
			profiles: map[string]*model.ViewerProfile{
				"alice": {Username: "alice", XP: 120, Level: 2, TotalXPEarned: 150},
			},
			optOut: map[string]bool{},
		},
		settings: &fakeSettings{cfg: settings.Defaults(), updates: map[string]string{}},
	}
	f.server = New(config.HTTPConfig{CORSEnabled: true}, Deps{
		WS:       func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) },
		Board:    f.board,
		Viewers:  f.viewers,
		History:  fakeHistory{},
		Settings: f.settings,
	}, log)
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestLeaderboardEndpoint(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/api/leaderboard", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap leaderboard.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Len(t, snap.AllTime, 1)
	assert.Equal(t, int64(900), snap.AllTime[0].Coins)
}

func TestResetEndpoint(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/api/leaderboard/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.board.resets)

	var snap leaderboard.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Empty(t, snap.Session)
	assert.Len(t, snap.AllTime, 1)
}

func TestViewerEndpoint(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/api/viewers/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Profile     model.ViewerProfile `json:"profile"`
		NextLevelXP int64               `json:"next_level_xp"`
		Events      []model.XPEvent     `json:"recent_events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(120), body.Profile.XP)
	// default curve: 100 for level 2, 150 more for level 3
	assert.Equal(t, int64(250), body.NextLevelXP)
	assert.Len(t, body.Events, 1)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/viewers/nobody", "").Code)
}

func TestOptOutEndpoint(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPut, "/api/viewers/alice/opt-out", `{"opted_out": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.viewers.optOut["alice"])

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, "/api/viewers/alice/opt-out", `{}`).Code)
}

func TestSettingsEndpoints(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg settings.Config
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 1.0, cfg.Multipliers.Global)

	rec = f.do(http.MethodPut, "/api/settings/xp_multipliers", `{"global": 2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"global": 2}`, f.settings.updates[settings.BlobMultipliers])

	f.settings.err = fmt.Errorf("%w: global multiplier must be positive", settings.ErrInvalid)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, "/api/settings/xp_multipliers", `{"global": 0}`).Code)

	f.settings.err = errors.New("database locked")
	assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodPut, "/api/settings/xp_multipliers", `{"global": 2}`).Code)
}

func TestWebsocketRouteDelegates(t *testing.T) {
	f := newFixture()
	assert.Equal(t, http.StatusTeapot, f.do(http.MethodGet, "/ws", "").Code)
}
