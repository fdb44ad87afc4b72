package services

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
)

type cacheEntry struct {
	value   interface{}
	expires time.Time
}

// TTLCache stores computed tables keyed by operation and argument hash.
// Every entry carries its own TTL. InvalidateAll swaps the whole store and starts a new
// generation; values computed under an older generation are never stored.
type TTLCache struct {
	mu         sync.RWMutex
	entries    map[string]cacheEntry
	generation string
	now        func() time.Time
}

// NewTTLCache creates an empty cache
func NewTTLCache() *TTLCache {
	return &TTLCache{
		entries:    make(map[string]cacheEntry),
		generation: uuid.NewString(),
		now:        time.Now,
	}
}

// CacheKey builds the key of an operation called with args
func CacheKey(op string, args ...interface{}) string {
	h := fnv.New64a()
	payload, err := json.Marshal(args)
	if err != nil {
		payload = []byte(fmt.Sprintf("%#v", args))
	}
	h.Write(payload)
	return fmt.Sprintf("%s:%016x", op, h.Sum64())
}

// Get returns a live entry
func (c *TTLCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || !c.now().Before(entry.expires) {
		return nil, false
	}
	return entry.value, true
}

// Set stores value for ttl if generation is still current, reporting whether it was stored
func (c *TTLCache) Set(key string, value interface{}, ttl time.Duration, generation string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return false
	}
	c.entries[key] = cacheEntry{value: value, expires: c.now().Add(ttl)}
	return true
}

// Generation returns the id of the current cache generation
func (c *TTLCache) Generation() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// InvalidateAll drops every entry at once and returns the new generation id
func (c *TTLCache) InvalidateAll() string {
	fresh := make(map[string]cacheEntry)
	gen := uuid.NewString()

	c.mu.Lock()
	c.entries = fresh
	c.generation = gen
	c.mu.Unlock()

	return gen
}

// Len returns the number of stored entries, expired ones included
func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Cached returns the cached value of op(args) or computes and stores it.
// Errors are not cached.
func Cached[T any](c *TTLCache, ttl time.Duration, op string, args []interface{}, compute func() (T, error)) (T, error) {
	key := CacheKey(op, args...)
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	gen := c.Generation()
	value, err := compute()
	if err != nil {
		return value, err
	}
	c.Set(key, value, ttl, gen)
	return value, nil
}
