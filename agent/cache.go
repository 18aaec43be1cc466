package agent

import "time"

// sweepInterval sweeps the cache for expired entries every N accesses, per
// §4.3's receipt cache and §9's "periodic sweep every N accesses" note.
const sweepInterval = 100

// cacheEntry is one contentId's cached receipt token.
type cacheEntry struct {
	token     string
	expiresAt time.Time
}

// ReceiptCache maps contentId to a cached receipt token with TTL eviction.
// It is not safe for concurrent use by design (§5: the agent client is
// single-owner by convention).
type ReceiptCache struct {
	entries map[string]cacheEntry
	access  int
}

// NewReceiptCache creates an empty receipt cache.
func NewReceiptCache() *ReceiptCache {
	return &ReceiptCache{entries: make(map[string]cacheEntry)}
}

// Get returns the cached token for contentId if present and unexpired;
// otherwise it deletes any stale entry and returns ("", false).
func (c *ReceiptCache) Get(contentID string) (string, bool) {
	c.touch()
	entry, ok := c.entries[contentID]
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, contentID)
		return "", false
	}
	return entry.token, true
}

// Set stores token for contentId with the given TTL.
func (c *ReceiptCache) Set(contentID, token string, ttl time.Duration) {
	c.entries[contentID] = cacheEntry{token: token, expiresAt: time.Now().Add(ttl)}
	c.touch()
}

// Delete evicts contentId's cached entry, used when a cached receipt is
// rejected by the resource server (§4.3 step 2).
func (c *ReceiptCache) Delete(contentID string) {
	delete(c.entries, contentID)
}

// Size returns the number of live entries after sweeping expired ones.
func (c *ReceiptCache) Size() int {
	c.sweep()
	return len(c.entries)
}

// Keys returns the live content ids after sweeping expired ones.
func (c *ReceiptCache) Keys() []string {
	c.sweep()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

func (c *ReceiptCache) touch() {
	c.access++
	if c.access%sweepInterval == 0 {
		c.sweep()
	}
}

func (c *ReceiptCache) sweep() {
	now := time.Now()
	for id, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, id)
		}
	}
}
