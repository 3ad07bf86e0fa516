// Package resource holds expensive vendor handles (translators,
// recognizers) behind a keyed get-or-create cache. The cache is the sole
// owner of its entries: they are released only on eviction or cleanup.
// There is no automatic eviction policy; callers bound the key space.
package resource

import (
	"sync"

	"github.com/patlar104/GlobalTranslation/pkg/log"
)

// Closer is any resource that must be released when evicted.
type Closer interface {
	Close() error
}

// Factory constructs a resource for a cache key.
type Factory[T Closer] func() (T, error)

type entry[T Closer] struct {
	ready chan struct{} // closed once construction finished
	value T
	err   error
}

// Cache is a concurrency-safe keyed cache of closeable resources.
// Construction is atomic per key: concurrent GetOrCreate calls for the
// same key run the factory exactly once.
type Cache[T Closer] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]
}

func NewCache[T Closer]() *Cache[T] {
	return &Cache[T]{
		entries: make(map[string]*entry[T]),
	}
}

// GetOrCreate returns the cached resource for key, constructing it via
// factory on first use. A failed construction is not cached, so a later
// call may retry.
func (c *Cache[T]) GetOrCreate(key string, factory Factory[T]) (T, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		c.mu.Unlock()
		<-e.ready
		return e.value, e.err
	}
	e = &entry[T]{ready: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	// The factory runs outside the cache lock so slow constructions for
	// one key never block lookups for other keys. Waiters block on the
	// ready channel instead.
	e.value, e.err = factory()
	close(e.ready)

	if e.err != nil {
		c.mu.Lock()
		if c.entries[key] == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		var zero T
		return zero, e.err
	}
	return e.value, nil
}

// Evict closes and removes every entry whose key matches. Close failures
// are logged and do not stop the sweep.
func (c *Cache[T]) Evict(match func(key string) bool) int {
	c.mu.Lock()
	evicted := make(map[string]*entry[T])
	for key, e := range c.entries {
		if match(key) {
			evicted[key] = e
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()

	for key, e := range evicted {
		closeEntry(key, e)
	}
	return len(evicted)
}

// Cleanup closes every cached resource and empties the cache. Safe to
// call repeatedly; a close failure on one resource does not prevent
// closing the rest.
func (c *Cache[T]) Cleanup() {
	c.mu.Lock()
	evicted := c.entries
	c.entries = make(map[string]*entry[T])
	c.mu.Unlock()

	for key, e := range evicted {
		closeEntry(key, e)
	}
}

// Size returns the number of cached entries.
func (c *Cache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func closeEntry[T Closer](key string, e *entry[T]) {
	<-e.ready
	if e.err != nil {
		return
	}
	if err := e.value.Close(); err != nil {
		log.Warn("Failed to close cached resource %s: %v", key, err)
	}
}
