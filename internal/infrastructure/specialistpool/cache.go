package specialistpool

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
)

// Fingerprint keys a task by session, specialist type and task text.
func Fingerprint(sessionID string, specialistType domain.SpecialistType, task string) string {
	sum := sha256.Sum256([]byte(string(specialistType) + ":" + task))
	return fmt.Sprintf("%s:%s:%s", sessionID, specialistType, hex.EncodeToString(sum[:8]))
}

type cacheEntry struct {
	handle    *Handle
	createdAt time.Time
	ttl       time.Duration
}

// expired uses now >= createdAt+ttl, so a zero ttl never serves a hit.
func (e cacheEntry) expired(now time.Time) bool {
	return !now.Before(e.createdAt.Add(e.ttl))
}

// TaskCache maps fingerprints to task handles with lazy TTL expiry and an
// LRU bound. All operations are serialized by one mutex.
type TaskCache struct {
	mu  sync.Mutex
	lru *simplelru.LRU[string, cacheEntry]
	now func() time.Time
}

func NewTaskCache(capacity int, now func() time.Time) (*TaskCache, error) {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if now == nil {
		now = time.Now
	}
	store, err := simplelru.NewLRU[string, cacheEntry](capacity, nil)
	if err != nil {
		return nil, fmt.Errorf("create task cache: %w", err)
	}
	return &TaskCache{lru: store, now: now}, nil
}

// Get returns the live handle for key. Expired entries are dropped.
func (c *TaskCache) Get(key string) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if entry.expired(c.now()) {
		c.lru.Remove(key)
		return nil, false
	}
	return entry.handle, true
}

// GetOrAdd returns the live handle for key, or stores the one built by create.
// created reports whether create ran.
func (c *TaskCache) GetOrAdd(key string, ttl time.Duration, create func() *Handle) (handle *Handle, created bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if entry, ok := c.lru.Get(key); ok {
		if !entry.expired(now) {
			return entry.handle, false
		}
		c.lru.Remove(key)
	}
	h := create()
	c.lru.Add(key, cacheEntry{handle: h, createdAt: now, ttl: ttl})
	return h, true
}

// RemoveHandle deletes key only while it still points at h.
func (c *TaskCache) RemoveHandle(key string, h *Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.lru.Peek(key); ok && entry.handle == h {
		c.lru.Remove(key)
	}
}

func (c *TaskCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
