package receipt

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// maxCacheEntries bounds the verification cache size; once exceeded, the
// next Put runs a full expired-entry sweep before inserting (§4.4).
const maxCacheEntries = 1000

// DefaultCacheTTL is how long a verified result is trusted without
// re-checking the signature, per §4.4's default verification cache window.
const DefaultCacheTTL = 60 * time.Second

// Cache remembers recent verification results for resource servers keyed
// by receipt token plus expected content id, avoiding repeat signature
// checks for a hot resource
// under load. Adapted from the teacher's SettlementCache: same
// map+expiry+mutex shape, narrowed to a single verify-and-remember
// operation since receipt verification has no in-flight/dedup concern the
// way settlement broadcasts do.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	result VerifyResult
	expiry time.Time
}

// NewCache creates a verification cache with the given TTL. A zero ttl
// defaults to DefaultCacheTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

func tokenKey(token, expectedContentID string) string {
	h := sha256.Sum256([]byte(token + "|" + expectedContentID))
	return hex.EncodeToString(h[:])
}

// Get returns a cached verification result for token+expectedContentID if
// present and not expired.
func (c *Cache) Get(token, expectedContentID string) (VerifyResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := tokenKey(token, expectedContentID)
	entry, ok := c.entries[key]
	if !ok {
		return VerifyResult{}, false
	}
	if time.Now().After(entry.expiry) {
		delete(c.entries, key)
		return VerifyResult{}, false
	}
	return entry.result, true
}

// Put remembers a verification result for token+expectedContentID until
// the cache TTL elapses.
func (c *Cache) Put(token, expectedContentID string, result VerifyResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= maxCacheEntries {
		c.evictExpiredLocked()
	}

	c.entries[tokenKey(token, expectedContentID)] = cacheEntry{
		result: result,
		expiry: time.Now().Add(c.ttl),
	}
}

func (c *Cache) evictExpiredLocked() {
	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.expiry) {
			delete(c.entries, key)
		}
	}
}

// Len reports the current number of cached entries, mostly useful for tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
