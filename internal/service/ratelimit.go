package service

import (
	"sync"
	"time"
)

// Rate limit categories. Keys are scoped per category so a burst of link
// requests for one email does not starve unrelated operations.
type RateCategory string

const (
	// RateIssuance throttles magic-link issuance per owner email.
	RateIssuance RateCategory = "issuance"
	// RateConsume throttles login attempts per client IP.
	RateConsume RateCategory = "consume"
	// RateAdmin throttles admin-issued links per acting admin.
	RateAdmin RateCategory = "admin"
)

// RateLimit is a fixed-window budget.
type RateLimit struct {
	Limit  int
	Window time.Duration
}

// DefaultRateLimits returns the budgets applied when none are configured.
func DefaultRateLimits() map[RateCategory]RateLimit {
	return map[RateCategory]RateLimit{
		RateIssuance: {Limit: 3, Window: 15 * time.Minute},
		RateConsume:  {Limit: 10, Window: 5 * time.Minute},
		RateAdmin:    {Limit: 30, Window: time.Hour},
	}
}

type rateWindow struct {
	start time.Time
	count int
}

// Limiter is an in-memory fixed-window rate limiter keyed by
// (category, identity). It can be disabled wholesale so tests that hammer the
// auth endpoints do not trip it.
type Limiter struct {
	mu      sync.Mutex
	enabled bool
	limits  map[RateCategory]RateLimit
	windows map[string]*rateWindow
	now     func() time.Time
}

// NewLimiter creates a limiter with the given budgets. A nil limits map gets
// DefaultRateLimits. The now func is injectable for tests; nil means
// time.Now.
func NewLimiter(enabled bool, limits map[RateCategory]RateLimit, now func() time.Time) *Limiter {
	if limits == nil {
		limits = DefaultRateLimits()
	}
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		enabled: enabled,
		limits:  limits,
		windows: make(map[string]*rateWindow),
		now:     now,
	}
}

// Allow reports whether one more operation fits the budget for
// (category, key), counting it if so. Unknown categories are always allowed.
func (l *Limiter) Allow(category RateCategory, key string) bool {
	if !l.enabled {
		return true
	}
	limit, ok := l.limits[category]
	if !ok || limit.Limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	k := string(category) + ":" + key
	w := l.windows[k]
	if w == nil || now.Sub(w.start) >= limit.Window {
		l.windows[k] = &rateWindow{start: now, count: 1}
		return true
	}
	if w.count >= limit.Limit {
		return false
	}
	w.count++
	return true
}

// Enabled reports whether the limiter is active.
func (l *Limiter) Enabled() bool {
	return l.enabled
}
