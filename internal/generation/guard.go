package generation

import (
	"sync"
	"time"

	"github.com/null-engine/nullengine/internal/domain"
)

// GuardConfig holds failure and rate limits for generation calls.
type GuardConfig struct {
	MaxFailures        int
	Cooldown           time.Duration
	RateLimitPerMinute int // 0 disables rate limiting
}

// Guard disables generation for a cooldown after consecutive failures and
// enforces a per-role rate limit. It is safe for concurrent use.
type Guard struct {
	Config GuardConfig

	mu            sync.Mutex
	failures      int
	disabledUntil time.Time
	rateCounts    map[string]*rateBucket
	now           func() time.Time
}

type rateBucket struct {
	count       int
	windowStart int64
}

// NewGuard creates a Guard with the given limits.
func NewGuard(cfg GuardConfig) *Guard {
	return &Guard{
		Config:     cfg,
		rateCounts: make(map[string]*rateBucket),
		now:        time.Now,
	}
}

// Allow reports whether a call for role may proceed. It returns
// ErrGenerationUnavailable while cooling down or over the rate limit.
func (g *Guard) Allow(role string) error {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if !g.disabledUntil.IsZero() && !now.After(g.disabledUntil) {
		return domain.ErrGenerationUnavailable
	}
	return g.checkRate(role, now.Unix())
}

// checkRate enforces a 60 second window per role. Caller holds mu.
func (g *Guard) checkRate(role string, now int64) error {
	if g.Config.RateLimitPerMinute <= 0 {
		return nil
	}
	bucket, ok := g.rateCounts[role]
	if !ok {
		g.rateCounts[role] = &rateBucket{count: 1, windowStart: now}
		return nil
	}
	if now-bucket.windowStart > 60 {
		bucket.count = 1
		bucket.windowStart = now
		return nil
	}
	if bucket.count >= g.Config.RateLimitPerMinute {
		return domain.ErrGenerationUnavailable
	}
	bucket.count++
	return nil
}

// RecordFailure counts a failed call and starts the cooldown once the
// consecutive failure limit is reached.
func (g *Guard) RecordFailure() {
	if g == nil || g.Config.MaxFailures <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures++
	if g.failures >= g.Config.MaxFailures {
		g.disabledUntil = g.now().Add(g.Config.Cooldown)
	}
}

// RecordSuccess clears the failure streak and any cooldown.
func (g *Guard) RecordSuccess() {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = 0
	g.disabledUntil = time.Time{}
}

// Failures returns the current consecutive failure count.
func (g *Guard) Failures() int {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures
}
