// Package guard holds the small in-process protections the scheduler leans
// on: the timestamp-correction suppression cache and per-job tick flags.
package guard

import (
	"sync"
	"time"
)

// CorrectionTTL is how long a corrected event stays exempt from further
// start-time comparisons.
const CorrectionTTL = 30 * time.Minute

// CorrectionCache remembers events whose start time was just corrected so
// checkpoint sweeps don't re-correct them on every tick while the upstream
// settles.
type CorrectionCache struct {
	mu      sync.Mutex
	expiry  map[int64]time.Time
	ttl     time.Duration
	lastGC  time.Time
	gcEvery time.Duration
}

// NewCorrectionCache creates a cache with the given suppression TTL.
func NewCorrectionCache(ttl time.Duration) *CorrectionCache {
	return &CorrectionCache{
		expiry:  make(map[int64]time.Time),
		ttl:     ttl,
		gcEvery: ttl,
	}
}

// Suppress marks an event as freshly corrected.
func (c *CorrectionCache) Suppress(eventID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expiry[eventID] = time.Now().Add(c.ttl)
}

// Suppressed reports whether the event is still inside its suppression
// window. Expired entries are dropped as they are seen.
func (c *CorrectionCache) Suppressed(eventID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	exp, ok := c.expiry[eventID]
	if !ok {
		c.gcLocked(now)
		return false
	}
	if now.After(exp) {
		delete(c.expiry, eventID)
		return false
	}
	return true
}

// gcLocked sweeps expired entries so the map doesn't grow with every
// corrected event over a long-running process. Callers hold mu.
func (c *CorrectionCache) gcLocked(now time.Time) {
	if now.Sub(c.lastGC) < c.gcEvery {
		return
	}
	for id, exp := range c.expiry {
		if now.After(exp) {
			delete(c.expiry, id)
		}
	}
	c.lastGC = now
}
