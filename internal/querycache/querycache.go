// Package querycache caches full RetrievalOutput by (mode, normalized
// query, filters) so repeated or concurrent identical queries skip the
// hybrid pipeline entirely (spec.md §5).
package querycache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/nithin8919/policyretrieval/internal/retrieval"
)

// TTL by mode: qa entries expire after TTLQA; every other mode (policy,
// framework, compliance, deepthink, brainstorm) uses the longer TTLDefault.
const (
	TTLQA      = 10 * time.Minute
	TTLDefault = 30 * time.Minute
)

// DefaultCacheSize bounds the number of distinct cached queries.
const DefaultCacheSize = 1000

func ttlForMode(mode retrieval.Mode) time.Duration {
	if mode == retrieval.ModeQA {
		return TTLQA
	}
	return TTLDefault
}

type entry struct {
	output    *retrieval.RetrievalOutput
	expiresAt time.Time
}

// Loader computes a fresh RetrievalOutput on a cache miss.
type Loader func(ctx context.Context) (*retrieval.RetrievalOutput, error)

// Cache is a mode-aware TTL cache with per-key request coalescing: two
// concurrent Get calls for the same key run the loader once and both
// receive the same result (golang.org/x/sync/singleflight), so a burst of
// identical queries never stampedes the retrieval pipeline.
type Cache struct {
	mu    sync.RWMutex
	data  *lru.Cache[string, entry]
	group singleflight.Group

	hits   int64
	misses int64
}

// New creates a cache holding up to size distinct entries.
func New(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	data, _ := lru.New[string, entry](size)
	return &Cache{data: data}
}

// Key derives the cache key from the mode, normalized query text, and the
// plan's forced filters — two requests that differ only in forced filters
// (e.g. a department scope) must not collide.
func Key(mode retrieval.Mode, normalizedQuery string, filters []retrieval.Filter) string {
	h := sha256.New()
	h.Write([]byte(string(mode)))
	h.Write([]byte{0})
	h.Write([]byte(normalizedQuery))
	for _, f := range filters {
		h.Write([]byte{0})
		h.Write([]byte(f.Key))
		if f.Match != nil {
			h.Write([]byte("=" + *f.Match))
		}
		if f.GTE != nil {
			h.Write([]byte(">=" + *f.GTE))
		}
		if f.LTE != nil {
			h.Write([]byte("<=" + *f.LTE))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a cached, unexpired RetrievalOutput for key if present and
// still consistent-read: once a reader observes an entry, it always sees
// that exact value until it expires — a concurrent Put for the same key
// never mutates a previously returned pointer in place.
func (c *Cache) Get(key string) (*retrieval.RetrievalOutput, bool) {
	c.mu.Lock()
	e, ok := c.data.Get(key)
	if ok && time.Now().After(e.expiresAt) {
		c.data.Remove(key)
		ok = false
	}
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()

	if !ok {
		return nil, false
	}
	return e.output, true
}

// Put stores output under key with mode's TTL.
func (c *Cache) Put(key string, mode retrieval.Mode, output *retrieval.RetrievalOutput) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.Add(key, entry{output: output, expiresAt: time.Now().Add(ttlForMode(mode))})
}

// GetOrLoad returns the cached value for key, or runs loader exactly once
// across all concurrent callers sharing key and caches its result.
func (c *Cache) GetOrLoad(ctx context.Context, key string, mode retrieval.Mode, loader Loader) (*retrieval.RetrievalOutput, error) {
	if output, ok := c.Get(key); ok {
		return withCacheHit(output), nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		if output, ok := c.Get(key); ok {
			return withCacheHit(output), nil
		}
		output, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(key, mode, output)
		return output, nil
	})
	if err != nil {
		return nil, fmt.Errorf("querycache load: %w", err)
	}

	return result.(*retrieval.RetrievalOutput), nil
}

// withCacheHit returns a shallow copy of output with CacheHit set, so a
// reader flagging its own copy never mutates the entry another concurrent
// reader holds.
func withCacheHit(output *retrieval.RetrievalOutput) *retrieval.RetrievalOutput {
	copied := *output
	copied.CacheHit = true
	return &copied
}

// Stats reports cache hit-rate counters for telemetry.
type Stats struct {
	Hits   int64
	Misses int64
}

// Stats returns a snapshot of hit/miss counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Hits: c.hits, Misses: c.misses}
}

// Purge evicts everything, used by tests and admin operations.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.Purge()
}
