package alloc

import (
	"sync"
	"sync/atomic"
)

// DefaultMaxRetained is the default number of released objects a Pool keeps
const DefaultMaxRetained = 500

// Resettable is implemented by pooled records. Reset must clear every field
// so nothing from a previous use leaks into the next one.
type Resettable interface {
	Reset()
}

// Pool is a bounded arena of reusable records. Unlike sync.Pool it has a hard
// retention cap and never drops retained objects behind the caller's back;
// released objects beyond the cap are discarded for the GC.
type Pool[T Resettable] struct {
	newFn       func() T
	maxRetained int

	mu   sync.Mutex
	free []T

	stats atomic.Value // *PoolStats
}

// PoolStats tracks pool usage
type PoolStats struct {
	Allocations int64 // objects created by newFn
	Reuses      int64 // Acquire served from the free list
	Releases    int64 // Release calls that retained the object
	Discards    int64 // Release calls dropped because the pool was full
	Retained    int
	MaxRetained int
}

// NewPool creates a pool; maxRetained <= 0 uses DefaultMaxRetained
func NewPool[T Resettable](newFn func() T, maxRetained int) *Pool[T] {
	if maxRetained <= 0 {
		maxRetained = DefaultMaxRetained
	}
	p := &Pool[T]{
		newFn:       newFn,
		maxRetained: maxRetained,
		free:        make([]T, 0, min(maxRetained, 64)),
	}
	p.stats.Store(&PoolStats{})
	return p
}

// Acquire returns a reset object, reusing a released one when available
func (p *Pool[T]) Acquire() T {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		obj := p.free[n-1]
		var zero T
		p.free[n-1] = zero
		p.free = p.free[:n-1]
		p.mu.Unlock()

		p.updateStats(func(s *PoolStats) { s.Reuses++ })
		return obj
	}
	p.mu.Unlock()

	p.updateStats(func(s *PoolStats) { s.Allocations++ })
	return p.newFn()
}

// Release resets obj and retains it, or discards it when the pool is full.
// Returns false when the object was discarded.
func (p *Pool[T]) Release(obj T) bool {
	obj.Reset()

	p.mu.Lock()
	if len(p.free) >= p.maxRetained {
		p.mu.Unlock()
		p.updateStats(func(s *PoolStats) { s.Discards++ })
		return false
	}
	p.free = append(p.free, obj)
	p.mu.Unlock()

	p.updateStats(func(s *PoolStats) { s.Releases++ })
	return true
}

// Clear drops every retained object
func (p *Pool[T]) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = make([]T, 0, min(p.maxRetained, 64))
}

// Retained returns how many objects are waiting for reuse
func (p *Pool[T]) Retained() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// GetStats returns current pool statistics
func (p *Pool[T]) GetStats() PoolStats {
	s := *p.stats.Load().(*PoolStats)
	s.Retained = p.Retained()
	s.MaxRetained = p.maxRetained
	return s
}

// ResetStats resets all counters to zero
func (p *Pool[T]) ResetStats() {
	p.stats.Store(&PoolStats{})
}

// updateStats replaces the stats snapshot; callers are serialized by the owning loop
func (p *Pool[T]) updateStats(update func(*PoolStats)) {
	current := p.stats.Load().(*PoolStats)
	next := *current
	update(&next)
	p.stats.Store(&next)
}
