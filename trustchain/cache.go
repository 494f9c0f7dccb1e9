package trustchain

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/oidf-tools/fedtrust/metrics"
)

const (
	// DefaultCacheTTL is how long validation results, successes and failures alike, are served
	// from cache before the entity is re-validated.
	DefaultCacheTTL = time.Hour
	// DefaultSweepInterval is how often expired entries are evicted in the background.
	DefaultSweepInterval = 10 * time.Minute
)

type cacheEntry struct {
	result    ValidationResult
	expiresAt time.Time
}

// Cache stores validation results keyed by entity identifier. Entries expire after a fixed TTL;
// expired entries are dropped lazily on read and in bulk by Sweep. Safe for concurrent use.
type Cache struct {
	mutex   sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	clock   clockwork.Clock
}

// NewCache constructs a Cache with the given TTL. Zero ttl means DefaultCacheTTL. A nil clock
// means the real clock.
func NewCache(ttl time.Duration, clock clockwork.Clock) *Cache {
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}

	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

// Get returns the cached validation result for the entity, if present and not expired. The
// returned result has its Cached flag set.
func (c *Cache) Get(entityID string) (ValidationResult, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, ok := c.entries[entityID]
	if !ok {
		metrics.RecordCacheMiss()
		return ValidationResult{}, false
	}

	if !c.clock.Now().Before(entry.expiresAt) {
		delete(c.entries, entityID)
		metrics.RecordCacheMiss()
		metrics.UpdateCacheSize(len(c.entries))
		return ValidationResult{}, false
	}

	metrics.RecordCacheHit()
	result := entry.result
	result.Cached = true

	return result, true
}

// Put stores a validation result for the entity. Both valid and invalid results are cached, for
// the same TTL.
func (c *Cache) Put(entityID string, result ValidationResult) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries[entityID] = cacheEntry{
		result:    result,
		expiresAt: c.clock.Now().Add(c.ttl),
	}
	metrics.UpdateCacheSize(len(c.entries))
}

// Len returns the number of entries currently in the cache, including any not yet swept expired
// entries.
func (c *Cache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return len(c.entries)
}

// Clear drops all entries.
func (c *Cache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries = make(map[string]cacheEntry)
	metrics.UpdateCacheSize(0)
}

// Sweep evicts all expired entries.
func (c *Cache) Sweep() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.clock.Now()
	for entityID, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, entityID)
		}
	}
	metrics.UpdateCacheSize(len(c.entries))
}

// StartSweeping runs Sweep every interval until ctx is canceled. Zero interval means
// DefaultSweepInterval. Runs in the calling goroutine; callers are expected to run it in a
// goroutine of their own.
func (c *Cache) StartSweeping(ctx context.Context, interval time.Duration) {
	if interval == 0 {
		interval = DefaultSweepInterval
	}

	ticker := c.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			c.Sweep()
		}
	}
}
