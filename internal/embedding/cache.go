package embedding

import (
	"container/list"
	"sync"
)

// CacheStats counts lookups served by an EmbeddingCache.
type CacheStats struct {
	Entries int
	Hits    uint64
	Misses  uint64
}

// EmbeddingCache is a bounded LRU of embeddings keyed by cache key
// (provider fingerprint, dimension, and content hash). A capacity of zero disables it.
type EmbeddingCache struct {
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front is most recently used
	hits     uint64
	misses   uint64
	mu       sync.Mutex
}

type cacheEntry struct {
	key    string
	vector []float32
}

// NewEmbeddingCache creates a cache holding at most capacity embeddings.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	if capacity < 0 {
		capacity = 0
	}
	return &EmbeddingCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the embedding for key and marks it recently used.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).vector, true
}

// Set stores the embedding for key, evicting least recently used entries past capacity.
func (c *EmbeddingCache) Set(key string, vector []float32) {
	if c.capacity == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		elem.Value.(*cacheEntry).vector = vector
		c.order.MoveToFront(elem)
		return
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, vector: vector})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Len returns the number of cached entries.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns the entry count and lookup counters.
func (c *EmbeddingCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: c.order.Len(), Hits: c.hits, Misses: c.misses}
}
