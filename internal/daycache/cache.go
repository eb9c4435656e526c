// Package daycache provides a key-partitioned read cache for day-scoped
// query results. Each partition is keyed by collection and ISO calendar day;
// a write to one day invalidates exactly that partition and notifies its
// subscribers, leaving every other day's cached value untouched.
package daycache

import (
	"fmt"
	"sync"
	"time"
)

const dayFormat = "2006-01-02"

// Key builds the partition key for a collection and calendar day.
// The day is truncated to its ISO date in the day's own location.
func Key(collection string, day time.Time) string {
	return fmt.Sprintf("%s/by_date/%s", collection, day.Format(dayFormat))
}

// Cache is an in-memory partitioned cache. Values are stored as-is: callers
// that hand out slices should copy on read to keep cached data immutable.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
	subs    map[string][]func()
}

func New[V any]() *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]V),
		subs:    make(map[string][]func()),
	}
}

// Get returns the cached value for the key, if present.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.entries[key]
	return value, ok
}

// Put stores the value for the key, replacing any previous value.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

// Invalidate discards the partition for the key and notifies subscribers.
// Other partitions are not touched. Invalidating an absent key still
// notifies, so a subscriber set up before the first read is not missed.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	subs := make([]func(), len(c.subs[key]))
	copy(subs, c.subs[key])
	c.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

// Subscribe registers fn to run whenever the key's partition is invalidated.
func (c *Cache[V]) Subscribe(key string, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[key] = append(c.subs[key], fn)
}

// Len reports the number of cached partitions (for tests).
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
