// Package useragent keeps the per-frame User-Agent overrides requested by
// the overlay's proxy URLs.
package useragent

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/review-background/internal/logging"
)

// DefaultTTL is how long an override survives before the sweeper drops it
const DefaultTTL = time.Hour

// Override is a recorded User-Agent for one frame
type Override struct {
	UserAgent string
	TimeStamp time.Time
}

// Cache maps frame ids to User-Agent overrides.
// Expiry is only enforced by Sweep; Lookup never checks age.
type Cache struct {
	entries map[int]Override
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	log     *zap.Logger
}

// NewCache creates an override cache with the given TTL
func NewCache(ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries: make(map[int]Override),
		ttl:     ttl,
		now:     time.Now,
		log:     logging.OrNop(logger),
	}
}

// WithClock replaces the clock used for stamping and sweeping
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// TTL returns the configured time-to-live
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Record stores an override for the frame, superseding any previous one.
// A zero timestamp is replaced by the current time.
func (c *Cache) Record(frameID int, userAgent string, at time.Time) {
	if at.IsZero() {
		at = c.now()
	}

	c.mu.Lock()
	c.entries[frameID] = Override{UserAgent: userAgent, TimeStamp: at}
	c.mu.Unlock()
}

// Lookup returns the override recorded for the frame
func (c *Cache) Lookup(frameID int) (Override, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	o, ok := c.entries[frameID]
	return o, ok
}

// UserAgentFor returns the overriding User-Agent string for the frame
func (c *Cache) UserAgentFor(frameID int) (string, bool) {
	o, ok := c.Lookup(frameID)
	return o.UserAgent, ok
}

// Len returns the number of recorded overrides
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep drops every override older than the TTL and returns how many were removed
func (c *Cache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for frameID, o := range c.entries {
		if o.TimeStamp.Add(c.ttl).Before(now) {
			delete(c.entries, frameID)
			removed++
		}
	}
	return removed
}

// Run sweeps once immediately and then every TTL until ctx is cancelled
func (c *Cache) Run(ctx context.Context) error {
	c.sweepAndLog()

	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.sweepAndLog()
		}
	}
}

func (c *Cache) sweepAndLog() {
	if removed := c.Sweep(); removed > 0 {
		c.log.Debug("expired user-agent overrides",
			zap.Int("removed", removed),
			zap.Int("remaining", c.Len()))
	}
}
