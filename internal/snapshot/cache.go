package snapshot

import (
	"path/filepath"
	"sort"
)

// Cache maps canonical absolute paths to their last stable snapshot.
//
// A Cache has a single owner and is not safe for concurrent use; the
// monitor's event loop is the only goroutine that touches it.
type Cache struct {
	entries map[string]Snapshot
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]Snapshot)}
}

// Key canonicalizes path into the form used as cache key.
func Key(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Get returns the snapshot for path, if any.
func (c *Cache) Get(path string) (Snapshot, bool) {
	s, ok := c.entries[Key(path)]
	return s, ok
}

// Put stores s for path, replacing and returning any previous snapshot.
func (c *Cache) Put(path string, s Snapshot) (Snapshot, bool) {
	key := Key(path)
	prev, ok := c.entries[key]
	c.entries[key] = s
	return prev, ok
}

// Remove evicts and returns the snapshot for path.
func (c *Cache) Remove(path string) (Snapshot, bool) {
	key := Key(path)
	s, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	return s, ok
}

// Len returns the number of cached snapshots.
func (c *Cache) Len() int { return len(c.entries) }

// Paths returns the cached keys in sorted order.
func (c *Cache) Paths() []string {
	out := make([]string, 0, len(c.entries))
	for p := range c.entries {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
