package build

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// ImageCache remembers the content digest of every image that was last
// optimized, keyed by source path. It is shared by the initial image pass and
// by watch-triggered re-runs, so it is safe for concurrent use.
type ImageCache struct {
	entries map[string]*CacheEntry
	mutex   sync.RWMutex

	hits      int64
	misses    int64
	evictions int64
}

// CacheEntry is the marker recorded after a successful optimization.
type CacheEntry struct {
	Key         string
	Hash        string
	ProcessedAt time.Time
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Entries   int
	Hits      int64
	Misses    int64
	Evictions int64
}

// NewImageCache creates an empty cache.
func NewImageCache() *ImageCache {
	return &ImageCache{entries: make(map[string]*CacheEntry)}
}

// CacheKey is the literal string identifying a source path in the cache.
// Populating, checking and evicting all go through it, so a path reported by
// the watcher and the same path found by walking the glob share one entry.
func CacheKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// ContentHash returns the digest stored in cache entries.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Unchanged reports whether path was last processed with the same content.
func (c *ImageCache) Unchanged(path string, hash string) bool {
	c.mutex.RLock()
	entry, ok := c.entries[CacheKey(path)]
	c.mutex.RUnlock()

	if ok && entry.Hash == hash {
		atomic.AddInt64(&c.hits, 1)
		return true
	}
	atomic.AddInt64(&c.misses, 1)
	return false
}

// Record stores hash as the last processed content of path.
func (c *ImageCache) Record(path string, hash string) {
	key := CacheKey(path)
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries[key] = &CacheEntry{
		Key:         key,
		Hash:        hash,
		ProcessedAt: time.Now(),
	}
}

// Get returns a copy of the entry for path.
func (c *ImageCache) Get(path string) (CacheEntry, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	entry, ok := c.entries[CacheKey(path)]
	if !ok {
		return CacheEntry{}, false
	}
	return *entry, true
}

// Evict removes the entry for path and reports whether one existed.
func (c *ImageCache) Evict(path string) bool {
	key := CacheKey(path)
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	atomic.AddInt64(&c.evictions, 1)
	return true
}

// Len returns the number of entries.
func (c *ImageCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

// Clear drops every entry and resets the counters.
func (c *ImageCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries = make(map[string]*CacheEntry)
	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
	atomic.StoreInt64(&c.evictions, 0)
}

// Stats returns the current counters.
func (c *ImageCache) Stats() CacheStats {
	return CacheStats{
		Entries:   c.Len(),
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Evictions: atomic.LoadInt64(&c.evictions),
	}
}
