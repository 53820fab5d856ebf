package client

import (
	"sync"
	"time"

	"github.com/cespare/xxhash"
	"github.com/brokersql/cas-go/protocol"
)

// CachedResult is the first page of a successful execute, stored under the
// exact SQL text's fingerprint.
type CachedResult struct {
	Columns []protocol.ColumnDescriptor
	Rows    []protocol.Row
	Total   int32
}

type cacheEntry struct {
	value     CachedResult
	expiresAt time.Time
}

// ResponseCache is a time-bounded, fingerprint-keyed mapping from SQL text
// to the first page of its last successful execution. It is advisory: a
// miss never changes observable semantics, and it needs no cross-session
// synchronization because each session owns its own cache. Its Get/Put
// collaborator shape mirrors client/statement_cache.go's cache, but the
// eviction policy is new: TTL-by-insertion-time keyed by an xxhash
// fingerprint of the SQL text rather than LRU-by-statement-name.
type ResponseCache struct {
	ttl   time.Duration
	mu    sync.Mutex
	byKey map[uint64]cacheEntry
}

// NewResponseCache returns a cache with the given TTL. A zero TTL disables
// the cache: Get always misses and Put is a no-op.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	return &ResponseCache{ttl: ttl, byKey: make(map[uint64]cacheEntry)}
}

// Enabled reports whether the cache has a positive TTL.
func (c *ResponseCache) Enabled() bool {
	return c.ttl > 0
}

func fingerprint(sql string) uint64 {
	return xxhash.Sum64String(sql)
}

// Get looks up the cached first page for sql. An expired entry is treated
// as a miss and evicted.
func (c *ResponseCache) Get(sql string) (CachedResult, bool) {
	if !c.Enabled() {
		return CachedResult{}, false
	}
	key := fingerprint(sql)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.byKey[key]
	if !ok {
		return CachedResult{}, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.byKey, key)
		return CachedResult{}, false
	}
	return entry.value, true
}

// Put inserts the first page for sql, keyed by its fingerprint. Insertion
// never replaces a fresher (not-yet-expired) entry for the same key.
func (c *ResponseCache) Put(sql string, value CachedResult) {
	if !c.Enabled() {
		return
	}
	key := fingerprint(sql)

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.byKey[key]; ok && time.Now().Before(existing.expiresAt) {
		return
	}
	c.byKey[key] = cacheEntry{value: value, expiresAt: time.Now().Add(c.ttl)}
}
