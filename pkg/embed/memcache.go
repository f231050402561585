package embed

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// memEntry is a Tier-1 cache line: a vector plus the timestamp it was
// cached at, so freshness can be checked independently of LRU recency.
type memEntry struct {
	vector    []float32
	createdAt time.Time
}

// memCache is the bounded-LRU-with-TTL Tier 1 cache. It follows the
// hashicorp/golang-lru CachedEmbedder pattern, extended with a per-entry
// TTL the plain LRU doesn't have: a present key whose entry has expired is
// never served, and is evicted the moment it's observed stale.
type memCache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, memEntry]
	ttl   time.Duration
}

func newMemCache(maxSize int, ttl time.Duration) *memCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	c, _ := lru.New[string, memEntry](maxSize)
	return &memCache{cache: c, ttl: ttl}
}

// get returns the vector for key if present and fresh. A present-but-
// expired entry is evicted and reported as a miss.
func (m *memCache) get(key string) ([]float32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.cache.Get(key)
	if !ok {
		return nil, false
	}
	if m.ttl > 0 && time.Since(entry.createdAt) > m.ttl {
		m.cache.Remove(key)
		return nil, false
	}
	return entry.vector, true
}

// put inserts or refreshes key. Eviction of the least-recently-used entry
// on a full cache is handled by the underlying LRU.
func (m *memCache) put(key string, vector []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Add(key, memEntry{vector: vector, createdAt: time.Now()})
}

func (m *memCache) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Purge()
}

func (m *memCache) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Len()
}
