package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"engagement-service/internal/model"
	"github.com/sirupsen/logrus"
)

type Store interface {
	GetAll(ctx context.Context) ([]model.Setting, error)
	Save(ctx context.Context, name, value string) error
}

// Manager owns the active configuration. Readers get an immutable snapshot.
type Manager struct {
	store   Store
	log     *logrus.Logger
	mu      sync.Mutex
	current atomic.Pointer[Config]
}

func NewManager(store Store, log *logrus.Logger) *Manager {
	m := &Manager{store: store, log: log}
	m.current.Store(Defaults())
	return m
}

// Current returns the active configuration. Callers must not mutate it.
func (m *Manager) Current() *Config {
	return m.current.Load()
}

// Load merges every stored blob over the defaults. A blob that fails to
// decode or validate is skipped and its defaults stay active.
func (m *Manager) Load(ctx context.Context) error {
	stored, err := m.store.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := Defaults()
	for _, s := range stored {
		next, err := clone(cfg)
		if err != nil {
			return err
		}
		if err := next.decodeBlob(s.Name, []byte(s.Value)); err != nil {
			m.log.WithError(err).WithField("name", s.Name).Warn("ignoring stored settings blob")
			continue
		}
		if err := next.Validate(); err != nil {
			m.log.WithError(err).WithField("name", s.Name).Warn("ignoring invalid settings blob")
			continue
		}
		cfg = next
	}

	m.current.Store(cfg)
	m.log.WithField("blobs", len(stored)).Info("settings loaded")
	return nil
}

// Update validates raw as the named blob, persists it and activates it.
func (m *Manager) Update(ctx context.Context, name string, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := clone(m.current.Load())
	if err != nil {
		return err
	}
	if err := next.decodeBlob(name, raw); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}

	merged, err := next.encodeBlob(name)
	if err != nil {
		return err
	}
	if err := m.store.Save(ctx, name, string(merged)); err != nil {
		return fmt.Errorf("failed to save settings %s: %w", name, err)
	}

	m.current.Store(next)
	m.log.WithField("name", name).Info("settings updated")
	return nil
}

// Replace activates cfg without persisting it.
func (m *Manager) Replace(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.current.Store(cfg)
	return nil
}

func (c *Config) section(name string) (any, error) {
	switch name {
	case BlobActions:
		return &c.Actions, nil
	case BlobRateLimits:
		return &c.RateLimits, nil
	case BlobEventCaps:
		return &c.EventCaps, nil
	case BlobMultipliers:
		return &c.Multipliers, nil
	case BlobStreaks:
		return &c.Streaks, nil
	case BlobSpin:
		return &c.Spin, nil
	case BlobLevelCurve:
		return &c.LevelCurve, nil
	case BlobLevelRewards:
		return &c.LevelRewards, nil
	case BlobGiftTiers:
		return &c.GiftTiers, nil
	case BlobMilestones:
		return &c.Milestones, nil
	}
	return nil, fmt.Errorf("%w: unknown settings blob %q", ErrInvalid, name)
}

// decodeBlob applies raw to the named section. Map entries of actions and
// per-event rate limits are patched field by field and a null entry removes
// the key. event_caps, level_curve and level_rewards are replaced whole.
func (c *Config) decodeBlob(name string, raw []byte) error {
	target, err := c.section(name)
	if err != nil {
		return err
	}

	switch name {
	case BlobActions:
		if c.Actions == nil {
			c.Actions = map[string]Action{}
		}
		err = patchEntries(raw, c.Actions)
	case BlobRateLimits:
		err = c.RateLimits.patch(raw)
	case BlobEventCaps:
		c.EventCaps = map[string]int64{}
		err = json.Unmarshal(raw, target)
	case BlobLevelCurve:
		c.LevelCurve = LevelCurve{}
		err = json.Unmarshal(raw, target)
	case BlobLevelRewards:
		c.LevelRewards = map[int]LevelReward{}
		err = json.Unmarshal(raw, target)
	default:
		err = json.Unmarshal(raw, target)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
	}
	return nil
}

// encodeBlob renders the named section as it is stored.
func (c *Config) encodeBlob(name string) ([]byte, error) {
	target, err := c.section(name)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(target)
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings %s: %w", name, err)
	}
	return raw, nil
}

func (r *RateLimits) patch(raw []byte) error {
	var body struct {
		PerUserPerEvent map[string]json.RawMessage `json:"per_user_per_event"`
		GlobalLimits    json.RawMessage            `json:"global_limits"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return err
	}
	if len(body.GlobalLimits) > 0 {
		if err := json.Unmarshal(body.GlobalLimits, &r.GlobalLimits); err != nil {
			return err
		}
	}
	if len(body.PerUserPerEvent) == 0 {
		return nil
	}
	if r.PerUserPerEvent == nil {
		r.PerUserPerEvent = map[string]Window{}
	}
	return patchMap(body.PerUserPerEvent, r.PerUserPerEvent)
}

func patchEntries[V any](raw []byte, dst map[string]V) error {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return err
	}
	return patchMap(entries, dst)
}

func patchMap[V any](entries map[string]json.RawMessage, dst map[string]V) error {
	for key, entry := range entries {
		if string(entry) == "null" {
			delete(dst, key)
			continue
		}
		value := dst[key]
		if err := json.Unmarshal(entry, &value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		dst[key] = value
	}
	return nil
}

func clone(cfg *Config) (*Config, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to copy settings: %w", err)
	}
	var out Config
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to copy settings: %w", err)
	}
	return &out, nil
}
