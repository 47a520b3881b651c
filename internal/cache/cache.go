package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	// Get retrieves a value from the cache
	Get(key string) (T, bool)

	// Set stores a value in the cache
	Set(key string, data T)

	// Delete removes a key from the cache
	Delete(key string)
}

// Scoped is a TTL cache backed by ristretto that also remembers which keys
// were stored under a scope (for example a user), so that every key of one
// scope can be dropped at once.
type Scoped[T any] struct {
	store *ristretto.Cache[string, T]
	ttl   time.Duration

	mu     sync.Mutex
	scopes map[string]map[string]struct{}
}

var _ Cache[int] = (*Scoped[int])(nil)

// NewScoped creates a cache holding up to maxEntries values, each living for
// ttl. A ttl of zero keeps values until they are evicted or invalidated.
func NewScoped[T any](maxEntries int64, ttl time.Duration) (*Scoped[T], error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", maxEntries)
	}
	store, err := ristretto.NewCache(&ristretto.Config[string, T]{
		NumCounters:        maxEntries * 10, // number of keys to track frequency of
		MaxCost:            maxEntries,
		BufferItems:        64, // number of keys per Get buffer
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}
	return &Scoped[T]{
		store:  store,
		ttl:    ttl,
		scopes: make(map[string]map[string]struct{}),
	}, nil
}

func (c *Scoped[T]) Get(key string) (T, bool) {
	return c.store.Get(key)
}

// Set stores data outside of any scope.
func (c *Scoped[T]) Set(key string, data T) {
	c.put(key, data)
}

// SetScoped stores data and records key under scope.
func (c *Scoped[T]) SetScoped(scope, key string, data T) {
	c.mu.Lock()
	keys, ok := c.scopes[scope]
	if !ok {
		keys = make(map[string]struct{})
		c.scopes[scope] = keys
	}
	keys[key] = struct{}{}
	c.mu.Unlock()

	c.put(key, data)
}

func (c *Scoped[T]) put(key string, data T) {
	if c.ttl > 0 {
		c.store.SetWithTTL(key, data, 1, c.ttl)
	} else {
		c.store.Set(key, data, 1)
	}
	// ristretto applies writes asynchronously; readers expect to see them.
	c.store.Wait()
}

func (c *Scoped[T]) Delete(key string) {
	c.store.Del(key)
}

// Invalidate drops every key recorded under scope and returns how many
// keys were tracked for it.
func (c *Scoped[T]) Invalidate(scope string) int {
	c.mu.Lock()
	keys := c.scopes[scope]
	delete(c.scopes, scope)
	c.mu.Unlock()

	for key := range keys {
		c.store.Del(key)
	}
	c.store.Wait()
	return len(keys)
}

// Close stops ristretto's background goroutines.
func (c *Scoped[T]) Close() {
	c.store.Close()
}
