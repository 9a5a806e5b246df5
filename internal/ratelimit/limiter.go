// Package ratelimit admits or rejects requests per client key.
//
// Window keeps counters in process memory and is only approximate when the
// service runs as several replicas; Redis shares counters between them.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type Config struct {
	Max    int
	Window time.Duration
}

// Disabled reports whether limiting is switched off (either knob at zero).
func (c Config) Disabled() bool { return c.Max <= 0 || c.Window <= 0 }

type entry struct {
	count   int
	resetAt time.Time
}

// sweepEvery bounds how many Allow calls may pass between expired-entry sweeps.
const sweepEvery = 1024

type Window struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	calls   int
}

func NewWindow(cfg Config, now func() time.Time) *Window {
	if now == nil {
		now = time.Now
	}
	return &Window{cfg: cfg, now: now, entries: make(map[string]*entry)}
}

func (w *Window) Allow(_ context.Context, key string) (bool, error) {
	if w.cfg.Disabled() {
		return true, nil
	}
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.calls++
	if w.calls >= sweepEvery {
		w.calls = 0
		w.sweepLocked(now)
	}

	e, ok := w.entries[key]
	if !ok || !now.Before(e.resetAt) {
		w.entries[key] = &entry{count: 1, resetAt: now.Add(w.cfg.Window)}
		return true, nil
	}
	e.count++
	return e.count <= w.cfg.Max, nil
}

func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = make(map[string]*entry)
	w.calls = 0
}

// Len is the number of tracked keys, expired ones included until the next sweep.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

func (w *Window) sweepLocked(now time.Time) {
	for k, e := range w.entries {
		if !now.Before(e.resetAt) {
			delete(w.entries, k)
		}
	}
}
