// SPDX-License-Identifier: MPL-2.0

package command

import "sync"

// Cache maps a fully substituted template to the output it produced.
// Entries are never evicted. The mutex only guards map access.
type Cache struct {
	mu      sync.Mutex
	entries map[string]string
}

func newCache() *Cache {
	return &Cache{entries: make(map[string]string)}
}

// Get returns the cached output for key.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out, ok := c.entries[key]
	return out, ok
}

// Put stores out under key. A key that is already present keeps its first value,
// so a cached key always maps to the same output.
func (c *Cache) Put(key, out string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.entries[key]; ok {
		return prev
	}
	c.entries[key] = out
	return out
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
