package cache

import (
	"container/list"
	"sort"
	"sync"
	"time"
)

// ResponseCache maps request fingerprints to decoded payloads with a
// per-entry TTL. Expired entries are dropped lazily on Get and in bulk by
// Sweep. When maxEntries is positive the least recently used entry is
// evicted on overflow; zero leaves the cache unbounded.
type ResponseCache[T any] struct {
	mu         sync.Mutex
	defaultTTL time.Duration
	maxEntries int
	now        func() time.Time
	items      map[string]*list.Element
	lru        *list.List
	// gen advances on Delete and Clear. Loads that started under an older
	// generation must not repopulate the cache.
	gen uint64
}

type entry[T any] struct {
	key       string
	value     T
	storedAt  time.Time
	expiresAt time.Time
}

// Option configures a ResponseCache.
type Option func(*options)

type options struct {
	defaultTTL time.Duration
	maxEntries int
	now        func() time.Time
}

// WithDefaultTTL sets the TTL used when Set receives a non-positive ttl.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.defaultTTL = ttl
		}
	}
}

// WithMaxEntries bounds the cache size with LRU eviction.
func WithMaxEntries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxEntries = n
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// NewResponseCache creates an empty cache.
func NewResponseCache[T any](opts ...Option) *ResponseCache[T] {
	o := options{defaultTTL: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &ResponseCache[T]{
		defaultTTL: o.defaultTTL,
		maxEntries: o.maxEntries,
		now:        o.now,
		items:      make(map[string]*list.Element),
		lru:        list.New(),
	}
}

var (
	_ Cache[int] = (*ResponseCache[int])(nil)
	_ Sweeper    = (*ResponseCache[int])(nil)
	_ Admin      = (*ResponseCache[int])(nil)
)

// Get returns the payload stored under key if it has not expired.
func (c *ResponseCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}

	e := elem.Value.(*entry[T])
	if c.now().After(e.expiresAt) {
		c.removeElement(elem)
		return zero, false
	}

	c.lru.MoveToFront(elem)
	return e.value, true
}

// Set inserts or overwrites the entry for key.
func (c *ResponseCache[T]) Set(key string, value T, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, value, ttl)
}

// Generation returns the current invalidation generation. Pass it to
// SetIfGeneration after a load to drop results that an intervening Delete
// or Clear made stale.
func (c *ResponseCache[T]) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// SetIfGeneration stores value only if no Delete or Clear happened since
// gen was read. It reports whether the value was stored.
func (c *ResponseCache[T]) SetIfGeneration(key string, value T, ttl time.Duration, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.set(key, value, ttl)
	return true
}

func (c *ResponseCache[T]) set(key string, value T, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	now := c.now()
	e := &entry[T]{
		key:       key,
		value:     value,
		storedAt:  now,
		expiresAt: now.Add(ttl),
	}

	if elem, ok := c.items[key]; ok {
		elem.Value = e
		c.lru.MoveToFront(elem)
		return
	}

	c.items[key] = c.lru.PushFront(e)

	if c.maxEntries > 0 && c.lru.Len() > c.maxEntries {
		if oldest := c.lru.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
}

// Delete removes key and reports whether an entry was present. In-flight
// loads are invalidated either way.
func (c *ResponseCache[T]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(elem)
	return true
}

// Clear removes every entry and invalidates in-flight loads.
func (c *ResponseCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.items = make(map[string]*list.Element)
	c.lru.Init()
}

// Sweep removes entries whose expiry lies strictly before now and returns
// how many were removed.
func (c *ResponseCache[T]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for elem := c.lru.Front(); elem != nil; {
		next := elem.Next()
		if elem.Value.(*entry[T]).expiresAt.Before(now) {
			c.removeElement(elem)
			removed++
		}
		elem = next
	}
	return removed
}

// Stats reports the current size and the sorted key set. Expired entries
// that have not been swept yet are included.
func (c *ResponseCache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for k := range c.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return Stats{Size: len(keys), Keys: keys}
}

// Len returns the number of stored entries.
func (c *ResponseCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *ResponseCache[T]) removeElement(elem *list.Element) {
	delete(c.items, elem.Value.(*entry[T]).key)
	c.lru.Remove(elem)
}
