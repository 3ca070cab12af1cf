// Package ratelimit throttles MCP tool calls and HTTP run submissions with
// per-key token buckets.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per key. Every bucket refills at the same
// rate and starts full. It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
	now     func() time.Time // injectable clock for testing
}

// NewLimiter creates a limiter refilling perSecond tokens per second with
// room for burst tokens. A zero rate grants the burst once and then nothing.
func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
		now:     time.Now,
	}
}

// perMinute is shorthand for the tool table.
func perMinute(n float64, burst int) *Limiter {
	return NewLimiter(n/60.0, burst)
}

// Allow spends one token from key's bucket and reports whether one was
// available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = b
	}
	now := l.now()
	l.mu.Unlock()

	return b.AllowN(now, 1)
}

// ToolLimiters maps MCP tool names to their limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters returns the limits for the council MCP tools. Starting a
// run is the most expensive call and gets the tightest budget; destructive
// calls sit just above it.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"council_analyze": perMinute(10, 3),
		"council_status":  perMinute(120, 20),
		"council_reset":   perMinute(30, 5),
		"council_catalog": perMinute(60, 10),
		"council_history": perMinute(60, 10),
		"council_report":  perMinute(60, 10),
		"council_delete":  perMinute(30, 5),
		"council_clear":   perMinute(5, 1),
		"council_backup":  perMinute(5, 2),
		"council_restore": perMinute(5, 2),
	}
}

// NewRunLimiter returns the per-client limiter for POST /api/run. It allows
// what council_analyze allows.
func NewRunLimiter() *Limiter {
	return perMinute(10, 3)
}

// CheckLimit spends a token for toolName. Tools without a limiter are never
// limited.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}
	if !limiter.Allow(toolName) {
		return fmt.Errorf("rate limit exceeded for %s, please try again shortly", toolName)
	}
	return nil
}
