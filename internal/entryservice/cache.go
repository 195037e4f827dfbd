package entryservice

import (
	"sync"

	"github.com/starford/wellbeing/internal/models"
)

// Cache mirrors the stored entries (newest first) and the last error seen by
// the service. It is owned by a Service and refreshed after every mutation.
type Cache struct {
	mu      sync.RWMutex
	entries []models.Entry
	lastErr error
	loaded  bool
}

// Replace swaps in a fresh snapshot and clears the recorded error.
func (c *Cache) Replace(entries []models.Entry) {
	cp := make([]models.Entry, len(entries))
	copy(cp, entries)

	c.mu.Lock()
	c.entries = cp
	c.lastErr = nil
	c.loaded = true
	c.mu.Unlock()
}

// SetError records err as the last failure without touching the snapshot.
func (c *Cache) SetError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// LastError returns the most recent failure, or nil after a successful load.
func (c *Cache) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Loaded reports whether the cache has been filled at least once.
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Snapshot returns a copy of the cached entries.
func (c *Cache) Snapshot() []models.Entry {
	return c.Filter(nil)
}

// Filter returns the cached entries accepted by keep, in cache order.
// A nil keep accepts everything.
func (c *Cache) Filter(keep func(models.Entry) bool) []models.Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Entry, 0, len(c.entries))
	for _, e := range c.entries {
		if keep == nil || keep(e) {
			e.Metrics = e.Metrics.Clone()
			out = append(out, e)
		}
	}
	return out
}
