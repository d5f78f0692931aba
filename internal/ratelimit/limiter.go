// Package ratelimit throttles login attempts per identifier.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Result of recording one attempt.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter records attempts with Check and forgets an identifier with Clear,
// which callers invoke after a successful login.
type Limiter interface {
	Check(ctx context.Context, id string) (Result, error)
	Clear(ctx context.Context, id string) error
}

type Config struct {
	MaxAttempts int
	Window      time.Duration
	Block       time.Duration
}

func DefaultConfig() Config {
	return Config{MaxAttempts: 5, Window: 15 * time.Minute, Block: time.Hour}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.Block <= 0 {
		c.Block = d.Block
	}
	return c
}

type entry struct {
	count        int
	windowStart  time.Time
	blockedUntil time.Time
}

const sweepEvery = 1024

// Memory is a process-local Limiter. Each instance of the service counts on
// its own; use Redis when several instances serve logins.
type Memory struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*entry
	checks  int
	now     func() time.Time
}

func NewMemory(cfg Config) *Memory {
	return &Memory{cfg: cfg.withDefaults(), entries: map[string]*entry{}, now: time.Now}
}

func (m *Memory) Check(_ context.Context, id string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.checks++
	if m.checks%sweepEvery == 0 {
		m.sweep(now)
	}

	e := m.entries[id]
	if e != nil && now.Before(e.blockedUntil) {
		return Result{RetryAfter: e.blockedUntil.Sub(now)}, nil
	}
	if e == nil || !e.blockedUntil.IsZero() || now.Sub(e.windowStart) >= m.cfg.Window {
		e = &entry{windowStart: now}
		m.entries[id] = e
	}
	e.count++
	if e.count > m.cfg.MaxAttempts {
		e.blockedUntil = now.Add(m.cfg.Block)
		return Result{RetryAfter: m.cfg.Block}, nil
	}
	return Result{Allowed: true, Remaining: m.cfg.MaxAttempts - e.count}, nil
}

func (m *Memory) Clear(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

// sweep drops entries whose window and block have both lapsed.
func (m *Memory) sweep(now time.Time) {
	for id, e := range m.entries {
		if now.Sub(e.windowStart) >= m.cfg.Window && !now.Before(e.blockedUntil) {
			delete(m.entries, id)
		}
	}
}
