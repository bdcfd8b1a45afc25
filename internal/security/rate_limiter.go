// Package security gates incoming multicast traffic before it reaches the
// engine: per-source rate limiting against query storms, and source-address
// validation against off-link spoofed packets. Neither is named by the
// wire/engine design directly, but both are standard defense-in-depth for a
// host-resident responder that listens on an always-on multicast socket.
package security

import (
	"sync"
	"time"
)

type rateLimitEntry struct {
	windowStart    time.Time
	cooldownExpiry time.Time
	lastSeen       time.Time
	queryCount     int
}

// RateLimiter enforces a per-source-IP query budget with a fixed 1-second
// window (started by a source's first query and restarted once it has
// elapsed) and a cooldown once the budget is exceeded, bounding the number of
// tracked sources so a spoofed-source storm can't grow the map unbounded.
type RateLimiter struct {
	threshold  int
	cooldown   time.Duration
	maxEntries int

	mu      sync.Mutex
	sources map[string]*rateLimitEntry
	evicted uint64
}

// NewRateLimiter creates a limiter allowing up to threshold queries/second
// per source, imposing cooldown once exceeded, tracking at most maxEntries
// distinct sources.
func NewRateLimiter(threshold int, cooldown time.Duration, maxEntries int) *RateLimiter {
	return &RateLimiter{
		threshold:  threshold,
		cooldown:   cooldown,
		maxEntries: maxEntries,
		sources:    make(map[string]*rateLimitEntry),
	}
}

// Allow reports whether a query from sourceIP should be processed.
func (rl *RateLimiter) Allow(sourceIP string) bool {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.sources[sourceIP]
	if !exists {
		rl.sources[sourceIP] = &rateLimitEntry{queryCount: 1, windowStart: now, lastSeen: now}
		if len(rl.sources) > rl.maxEntries {
			rl.evict()
		}
		return true
	}

	if !entry.cooldownExpiry.IsZero() {
		if now.Before(entry.cooldownExpiry) {
			entry.lastSeen = now
			return false
		}
		entry.queryCount = 1
		entry.windowStart = now
		entry.cooldownExpiry = time.Time{}
		entry.lastSeen = now
		return true
	}

	if now.Sub(entry.windowStart) > time.Second {
		entry.queryCount = 1
		entry.windowStart = now
	} else {
		entry.queryCount++
	}
	entry.lastSeen = now

	if entry.queryCount > rl.threshold {
		entry.cooldownExpiry = now.Add(rl.cooldown)
		return false
	}
	return true
}

// evict drops the oldest tenth of tracked sources. Caller holds rl.mu.
func (rl *RateLimiter) evict() {
	n := rl.maxEntries / 10
	if n == 0 {
		n = 1
	}
	type aged struct {
		ip   string
		seen time.Time
	}
	all := make([]aged, 0, len(rl.sources))
	for ip, e := range rl.sources {
		all = append(all, aged{ip, e.lastSeen})
	}
	for i := 0; i < n && i < len(all); i++ {
		oldest := i
		for j := i + 1; j < len(all); j++ {
			if all[j].seen.Before(all[oldest].seen) {
				oldest = j
			}
		}
		all[i], all[oldest] = all[oldest], all[i]
	}
	for i := 0; i < n && i < len(all); i++ {
		delete(rl.sources, all[i].ip)
		rl.evicted++
	}
}

// Cleanup drops sources not seen in the last minute, bounding memory growth
// between bursts. Intended to be called periodically (e.g. every 5 minutes).
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	for ip, e := range rl.sources {
		if now.Sub(e.lastSeen) > time.Minute {
			delete(rl.sources, ip)
		}
	}
}
