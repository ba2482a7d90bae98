// Package tracker keeps the per-process, per-viewer counters the engine
// consults before granting XP: legacy cooldowns, fixed rate-limit windows and
// the rolling global XP windows.
package tracker

import (
	"sync"
	"time"
)

const (
	FiveMinutes = 5 * time.Minute
	OneHour     = time.Hour
)

type key struct {
	username string
	action   string
}

type window struct {
	start time.Time
	count int
}

type rolling struct {
	start time.Time
	total int64
}

type globalXP struct {
	fiveMin rolling
	hour    rolling
}

// Store is the tracker state container. The zero value is not usable; call New.
type Store struct {
	mu        sync.Mutex
	cooldowns map[key]time.Time
	windows   map[key]*window
	global    map[string]*globalXP
}

func New() *Store {
	return &Store{
		cooldowns: make(map[key]time.Time),
		windows:   make(map[key]*window),
		global:    make(map[string]*globalXP),
	}
}

// LastAward returns when action last succeeded for username.
func (s *Store) LastAward(username, action string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.cooldowns[key{username, action}]
	return at, ok
}

func (s *Store) MarkAward(username, action string, now time.Time) {
	s.mu.Lock()
	s.cooldowns[key{username, action}] = now
	s.mu.Unlock()
}

// Hit records one event in the fixed window of (username, action) and reports
// whether it is allowed. A window opens on the first event and expires
// interval after its own start; it never slides.
func (s *Store) Hit(username, action string, now time.Time, interval time.Duration, max int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{username, action}
	w, ok := s.windows[k]
	if !ok || now.Sub(w.start) >= interval {
		s.windows[k] = &window{start: now, count: 1}
		return true
	}

	if w.count >= max {
		return false
	}

	w.count++
	return true
}

// GlobalXP returns the XP accumulated in the current 5 minute and 1 hour
// windows, resetting each window whose own duration has elapsed.
func (s *Store) GlobalXP(username string, now time.Time) (fiveMin, hour int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.globalFor(username, now)
	return g.fiveMin.total, g.hour.total
}

// AddXP adds a granted amount to both rolling windows.
func (s *Store) AddXP(username string, now time.Time, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.globalFor(username, now)
	g.fiveMin.total += amount
	g.hour.total += amount
}

func (s *Store) globalFor(username string, now time.Time) *globalXP {
	g, ok := s.global[username]
	if !ok {
		g = &globalXP{
			fiveMin: rolling{start: now},
			hour:    rolling{start: now},
		}
		s.global[username] = g
	}

	if now.Sub(g.fiveMin.start) >= FiveMinutes {
		g.fiveMin = rolling{start: now}
	}
	if now.Sub(g.hour.start) >= OneHour {
		g.hour = rolling{start: now}
	}
	return g
}

// Forget drops every entry of username.
func (s *Store) Forget(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.cooldowns {
		if k.username == username {
			delete(s.cooldowns, k)
		}
	}
	for k := range s.windows {
		if k.username == username {
			delete(s.windows, k)
		}
	}
	delete(s.global, username)
}

// Reset drops all entries.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cooldowns = make(map[key]time.Time)
	s.windows = make(map[key]*window)
	s.global = make(map[string]*globalXP)
}

// Sweep removes entries last touched more than maxAge before now and returns
// how many were removed.
func (s *Store) Sweep(now time.Time, maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, at := range s.cooldowns {
		if now.Sub(at) > maxAge {
			delete(s.cooldowns, k)
			removed++
		}
	}
	for k, w := range s.windows {
		if now.Sub(w.start) > maxAge {
			delete(s.windows, k)
			removed++
		}
	}
	for username, g := range s.global {
		if now.Sub(g.hour.start) > maxAge && now.Sub(g.fiveMin.start) > maxAge {
			delete(s.global, username)
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries across all maps.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.cooldowns) + len(s.windows) + len(s.global)
}
