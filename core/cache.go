package core

import (
	"sync"
	"time"

	"github.com/ebogdum/archivefs/metadata"
)

// CacheEntry represents a cached format info with expiration
type CacheEntry struct {
	Info      metadata.FormatInfo
	ExpiresAt time.Time
}

// IsExpired checks if the cache entry has expired
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// FormatInfoCache keeps recently read format infos so repeated queries skip the record store
type FormatInfoCache struct {
	cache    map[string]*CacheEntry
	mu       sync.RWMutex
	ttl      time.Duration
	maxSize  int
	stopOnce sync.Once
	stopChan chan struct{}
}

// NewFormatInfoCache creates a new cache with the specified TTL and max size
func NewFormatInfoCache(ttl time.Duration, maxSize int) *FormatInfoCache {
	cache := &FormatInfoCache{
		cache:    make(map[string]*CacheEntry),
		ttl:      ttl,
		maxSize:  maxSize,
		stopChan: make(chan struct{}),
	}

	// Start background cleanup goroutine
	go cache.cleanupExpiredEntries()

	return cache
}

// Get retrieves a format info from the cache
func (c *FormatInfoCache) Get(key string) (metadata.FormatInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.cache[key]
	if !exists || entry.IsExpired() {
		return metadata.FormatInfo{}, false
	}
	return entry.Info, true
}

// Set stores a format info in the cache
func (c *FormatInfoCache) Set(key string, info metadata.FormatInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.cache[key]; !exists && len(c.cache) >= c.maxSize {
		c.evictOneEntry()
	}

	c.cache[key] = &CacheEntry{
		Info:      info,
		ExpiresAt: time.Now().Add(c.ttl),
	}
}

// Clear removes every entry
func (c *FormatInfoCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.cache)
}

// Len returns the number of cached entries, expired ones included
func (c *FormatInfoCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Stop ends the background cleanup
func (c *FormatInfoCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

// evictOneEntry removes one entry to make space (caller must hold lock)
func (c *FormatInfoCache) evictOneEntry() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range c.cache {
		if entry.IsExpired() {
			delete(c.cache, key)
			return
		}
		if oldestKey == "" || entry.ExpiresAt.Before(oldest) {
			oldestKey, oldest = key, entry.ExpiresAt
		}
	}
	delete(c.cache, oldestKey)
}

// cleanupExpiredEntries runs periodically to clean up expired cache entries
func (c *FormatInfoCache) cleanupExpiredEntries() {
	ticker := time.NewTicker(time.Minute) // Clean up every minute
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.performCleanup()
		case <-c.stopChan:
			return
		}
	}
}

// performCleanup removes expired entries from the cache
func (c *FormatInfoCache) performCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.cache {
		if now.After(entry.ExpiresAt) {
			delete(c.cache, key)
		}
	}
}
