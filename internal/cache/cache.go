// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache stores recent source results so repeated queries within a
// freshness window do not reach the network again.
//
// Entries are keyed by a hash of the source name and the normalized query.
// Expired entries are evicted lazily when read. There is no capacity bound.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pdiddy/gtm-research/pkg/types"
)

// DefaultTTL is used when Put is called with a non-positive ttl and the cache
// has no TTL of its own.
const DefaultTTL = 15 * time.Minute

type entry struct {
	items     []types.EvidenceItem
	expiresAt time.Time
}

// Cache is a TTL-bounded evidence store safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New returns an empty cache whose Put uses ttl when no per-call ttl is given.
func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Key returns the content address for (source, query).
func Key(source types.SourceName, query string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	h := sha256.Sum256([]byte(string(source) + "\x00" + norm))
	return hex.EncodeToString(h[:])
}

// Get returns the cached items for (source, query) if present and fresh.
// An expired entry counts as a miss and is removed.
func (c *Cache) Get(source types.SourceName, query string) ([]types.EvidenceItem, bool) {
	key := Key(source, query)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.now().Before(e.expiresAt) {
		c.hits.Add(1)
		return cloneItems(e.items), true
	}
	if ok {
		c.mu.Lock()
		// Another writer may have refreshed the entry since the read.
		if cur, still := c.entries[key]; still && !c.now().Before(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
	}
	c.misses.Add(1)
	return nil, false
}

// Put stores items for (source, query). A non-positive ttl uses the cache default.
// Empty results are stored too so a known-empty query is not retried.
func (c *Cache) Put(source types.SourceName, query string, items []types.EvidenceItem, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	key := Key(source, query)
	c.mu.Lock()
	c.entries[key] = entry{items: cloneItems(items), expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// TTL returns the default time-to-live.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Len returns the number of unexpired entries.
func (c *Cache) Len() int {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, e := range c.entries {
		if now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}

// Stats returns the cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func cloneItems(items []types.EvidenceItem) []types.EvidenceItem {
	if items == nil {
		return []types.EvidenceItem{}
	}
	out := make([]types.EvidenceItem, len(items))
	copy(out, items)
	return out
}
