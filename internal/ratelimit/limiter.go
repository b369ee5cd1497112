// Package ratelimit provides per-key token bucket rate limiting for canvas
// clicks and MCP tool calls.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/nvandessel/neurodemo/internal/constants"
)

// Tool names guarded by ToolLimiters.
const (
	ToolStimulate = "neuron_stimulate"
	ToolClick     = "neuron_click"
	ToolSnapshot  = "neuron_snapshot"
)

// Snapshot reads never touch the model, so they get a larger budget.
const (
	snapshotRatePerSecond = 60.0
	snapshotBurst         = 120
)

// Limiter keeps one token bucket per key, for example per client host.
// It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int     // bucket capacity and starting balance
	nowFunc func() time.Time
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// take refills the bucket for the time since it was last seen and spends
// one token if one is available.
func (b *bucket) take(now time.Time, rate float64, burst int) bool {
	if elapsed := now.Sub(b.lastSeen).Seconds(); elapsed > 0 {
		b.tokens = min(b.tokens+rate*elapsed, float64(burst))
		b.lastSeen = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// NewLimiter creates a limiter refilling rate tokens per second up to burst.
// New keys start with a full bucket.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		nowFunc: time.Now,
	}
}

// NewClickLimiter creates the per-client limiter for canvas clicks.
func NewClickLimiter() *Limiter {
	return NewLimiter(constants.ClickRatePerSecond, constants.ClickBurst)
}

// Allow reports whether key may act now, spending a token if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastSeen: now}
		l.buckets[key] = b
	}
	return b.take(now, l.rate, l.burst)
}

// Prune drops buckets untouched for longer than idle. A dropped key starts
// again with a full burst. It returns the number of buckets removed.
func (l *Limiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > idle {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// ToolLimiters maps MCP tool names to their limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters creates the default per-tool limiters. Stimulation and
// clicks get the same budget as a browser client.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		ToolStimulate: NewClickLimiter(),
		ToolClick:     NewClickLimiter(),
		ToolSnapshot:  NewLimiter(snapshotRatePerSecond, snapshotBurst),
	}
}

// CheckLimit spends one call of toolName's budget. Tools without a limiter
// are unlimited.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok || limiter.Allow(toolName) {
		return nil
	}
	return fmt.Errorf("rate limit exceeded for %s, please try again shortly", toolName)
}
