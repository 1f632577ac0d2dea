package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// Cache configuration constants
const (
	DefaultMaxMatcherEntries  = 2000
	DefaultMaxFragmentEntries = 1000
)

// Bounded is an insertion-ordered cache with a soft capacity.
// When the capacity is exceeded the oldest half of the entries is evicted
// in one sweep, so a burst of inserts costs one eviction pass instead of one per insert.
type Bounded[K comparable, V any] struct {
	name    string
	maxSize int

	mu    sync.Mutex
	items map[K]*list.Element
	order *list.List // front = newest

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	onEvict func(evicted, remaining int)
}

type boundedEntry[K comparable, V any] struct {
	key   K
	value V
}

// Stats is a snapshot of cache counters
type Stats struct {
	Name      string
	Size      int
	MaxSize   int
	Hits      int64
	Misses    int64
	Evictions int64
}

// NewBounded creates a bounded cache. maxSize <= 0 falls back to 100.
func NewBounded[K comparable, V any](name string, maxSize int) *Bounded[K, V] {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &Bounded[K, V]{
		name:    name,
		maxSize: maxSize,
		items:   make(map[K]*list.Element),
		order:   list.New(),
	}
}

// OnEvict registers a callback invoked after every eviction sweep
func (c *Bounded[K, V]) OnEvict(fn func(evicted, remaining int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

// Get retrieves a value. Lookups do not change eviction order.
func (c *Bounded[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	elem, ok := c.items[key]
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.hits.Add(1)
	return elem.Value.(*boundedEntry[K, V]).value, true
}

// Put adds or replaces a value, sweeping when the capacity is exceeded
func (c *Bounded[K, V]) Put(key K, value V) {
	c.mu.Lock()
	if elem, ok := c.items[key]; ok {
		elem.Value.(*boundedEntry[K, V]).value = value
		c.mu.Unlock()
		return
	}

	c.items[key] = c.order.PushFront(&boundedEntry[K, V]{key: key, value: value})
	over := c.order.Len() > c.maxSize
	c.mu.Unlock()

	if over {
		c.Sweep()
	}
}

// Sweep evicts the oldest half of the entries if the cache is over capacity.
// Returns the number of evicted entries.
func (c *Bounded[K, V]) Sweep() int {
	c.mu.Lock()
	size := c.order.Len()
	if size <= c.maxSize {
		c.mu.Unlock()
		return 0
	}

	evict := size / 2
	for i := 0; i < evict; i++ {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*boundedEntry[K, V]).key)
	}
	remaining := c.order.Len()
	callback := c.onEvict
	c.mu.Unlock()

	c.evictions.Add(int64(evict))
	if callback != nil {
		callback(evict, remaining)
	}
	return evict
}

// Clear removes all entries
func (c *Bounded[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*list.Element)
	c.order = list.New()
}

// Len returns the current number of entries
func (c *Bounded[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// GetStats returns a snapshot of the cache counters
func (c *Bounded[K, V]) GetStats() Stats {
	return Stats{
		Name:      c.name,
		Size:      c.Len(),
		MaxSize:   c.maxSize,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// HitRate returns hits / (hits + misses), or 0 before the first lookup
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
