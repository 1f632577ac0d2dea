// Package scheduler paces matching work on the host loop.
//
// Work arrives as units (subtree roots). Each tick processes at most
// BatchSize units with the mutation bridge suspended, then posts the next
// tick as a new host task so page events run in between. The scheduler owns
// the matcher and fragment caches and, through the renderer, the annotation
// pool.
package scheduler

import (
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/standardbeagle/lexmark/internal/cache"
	"github.com/standardbeagle/lexmark/internal/debug"
	"github.com/standardbeagle/lexmark/internal/dictionary"
	"github.com/standardbeagle/lexmark/internal/errors"
	"github.com/standardbeagle/lexmark/internal/match"
	"github.com/standardbeagle/lexmark/internal/render"
	"github.com/standardbeagle/lexmark/internal/walker"
)

// Defaults used when Options leave a field zero
const (
	DefaultBatchSize         = 8
	DefaultCleanupInterval   = 30 * time.Second
	DefaultFragmentPrefixLen = 64
)

// Loop is the host task queue. *host.Loop satisfies it.
type Loop interface {
	Post(fn func()) bool
	PostAfter(d time.Duration, fn func()) (cancel func() bool)
}

// Guard brackets the scheduler's writes. The mutation bridge satisfies it.
type Guard interface {
	Suspend()
	Resume()
}

// Tree reports whether a node is still part of the document
type Tree interface {
	Contains(n *html.Node) bool
}

// Observer receives scheduler events; metrics implement it
type Observer interface {
	UnitFinished(u *Unit)
	BatchFinished(units int, elapsed time.Duration)
	CacheEvicted(name string, evicted int)
}

// Options tunes batching and cache bounds
type Options struct {
	BatchSize         int
	TicksPerSecond    float64 // 0 = no pacing beyond yielding
	MaxMatcherCache   int
	MaxFragmentCache  int
	CleanupInterval   time.Duration
	FragmentPrefixLen int
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.MaxMatcherCache <= 0 {
		o.MaxMatcherCache = cache.DefaultMaxMatcherEntries
	}
	if o.MaxFragmentCache <= 0 {
		o.MaxFragmentCache = cache.DefaultMaxFragmentEntries
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = DefaultCleanupInterval
	}
	if o.FragmentPrefixLen <= 0 {
		o.FragmentPrefixLen = DefaultFragmentPrefixLen
	}
	return o
}

// fragmentKey identifies a cached match plan. The prefix and dictionary
// size follow the plan's shape; the generation and full-text hash keep two
// texts with a shared prefix, or two dictionaries of equal size, apart.
type fragmentKey struct {
	prefix     string
	size       int
	generation uint64
	hash       uint64
}

// Stats is a snapshot of scheduler counters
type Stats struct {
	Queued      int
	Submitted   int64
	Incremental int64
	Done        int64
	Failed      int64
	Superseded  int64
	Batches     int64
	Passes      int64
	Leaves      int64
	Annotations int64
	LeafErrors  int64
	Clears      int64

	MatcherCache  cache.Stats
	FragmentCache cache.Stats
}

// Scheduler batches units on the host loop
type Scheduler struct {
	opts     Options
	loop     Loop
	tree     Tree
	walker   *walker.Walker
	renderer *render.Renderer
	guard    Guard
	observer Observer
	limiter  *rate.Limiter

	index     *dictionary.Index
	matchers  *cache.Bounded[string, *match.Matcher]
	fragments *cache.Bounded[fragmentKey, []match.Span]

	queue       []*Unit
	processed   map[*html.Node]bool
	nextID      uint64
	tickPending bool
	stopCleanup func() bool
	closed      bool
	onIdle      func()

	stats Stats
}

// New creates a scheduler. The guard may be set later with SetGuard.
func New(loop Loop, tree Tree, w *walker.Walker, r *render.Renderer, opts Options) *Scheduler {
	opts = opts.withDefaults()
	s := &Scheduler{
		opts:      opts,
		loop:      loop,
		tree:      tree,
		walker:    w,
		renderer:  r,
		guard:     nopGuard{},
		matchers:  cache.NewBounded[string, *match.Matcher]("matchers", opts.MaxMatcherCache),
		fragments: cache.NewBounded[fragmentKey, []match.Span]("fragments", opts.MaxFragmentCache),
		processed: make(map[*html.Node]bool),
	}
	if opts.TicksPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.TicksPerSecond), 1)
	}
	s.matchers.OnEvict(func(evicted, remaining int) { s.evicted("matchers", opts.MaxMatcherCache, evicted, remaining) })
	s.fragments.OnEvict(func(evicted, remaining int) { s.evicted("fragments", opts.MaxFragmentCache, evicted, remaining) })
	return s
}

type nopGuard struct{}

func (nopGuard) Suspend() {}
func (nopGuard) Resume()  {}

// SetGuard installs the write guard
func (s *Scheduler) SetGuard(g Guard) {
	if g == nil {
		g = nopGuard{}
	}
	s.guard = g
}

// SetObserver installs an event observer; nil removes it
func (s *Scheduler) SetObserver(o Observer) {
	s.observer = o
}

// OnIdle installs a callback run whenever the queue drains
func (s *Scheduler) OnIdle(fn func()) {
	s.onIdle = fn
}

// Index returns the dictionary in use
func (s *Scheduler) Index() *dictionary.Index {
	return s.index
}

// SetIndex swaps the dictionary. Cached matchers and plans were derived from
// the previous one and are dropped.
func (s *Scheduler) SetIndex(idx *dictionary.Index) {
	s.index = idx
	s.matchers.Clear()
	s.fragments.Clear()
	debug.LogScheduler("index generation %d installed (%d entries)\n", idx.Generation(), idx.Len())
}

// Enqueue submits one incremental unit per root and returns how many were queued
func (s *Scheduler) Enqueue(roots ...*html.Node) int {
	for _, root := range roots {
		s.Submit(root, false)
	}
	return len(roots)
}

// Submit queues a unit for root. Queued units whose root is root or lies
// under it are superseded, since the new unit covers them.
func (s *Scheduler) Submit(root *html.Node, full bool) *Unit {
	s.nextID++
	u := &Unit{ID: s.nextID, Root: root, Full: full, State: UnitQueued}
	if s.closed {
		u.State = UnitSuperseded
		return u
	}

	kept := s.queue[:0]
	for _, q := range s.queue {
		if covers(root, q.Root) {
			s.supersede(q)
			continue
		}
		kept = append(kept, q)
	}
	clear(s.queue[len(kept):])
	s.queue = append(kept, u)

	s.stats.Submitted++
	if !full {
		s.stats.Incremental++
	}
	s.scheduleTick()
	return u
}

func (s *Scheduler) supersede(u *Unit) {
	u.State = UnitSuperseded
	s.stats.Superseded++
	if s.observer != nil {
		s.observer.UnitFinished(u)
	}
}

// Rebuild starts a fresh pass over root: every queued unit is superseded,
// existing annotations under root are unwrapped, and root's children are
// queued as full units.
func (s *Scheduler) Rebuild(root *html.Node) []*Unit {
	if s.closed {
		return nil
	}
	for _, q := range s.queue {
		s.supersede(q)
	}
	s.queue = nil
	s.processed = make(map[*html.Node]bool)
	s.stats.Passes++

	s.guard.Suspend()
	if _, err := s.renderer.Unwrap(root); err != nil {
		log.Printf("lexmark: rebuild unwrap: %v", err)
	}
	s.guard.Resume()

	var units []*Unit
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		units = append(units, s.Submit(c, true))
	}
	if len(units) == 0 {
		units = append(units, s.Submit(root, true))
	}
	debug.LogScheduler("rebuild queued %d units\n", len(units))
	return units
}

func (s *Scheduler) scheduleTick() {
	if s.tickPending || s.closed || len(s.queue) == 0 {
		return
	}
	s.tickPending = true
	if s.limiter != nil {
		if d := s.limiter.Reserve().Delay(); d > 0 {
			s.loop.PostAfter(d, s.tick)
			return
		}
	}
	if !s.loop.Post(s.tick) {
		s.tickPending = false
	}
}

func (s *Scheduler) tick() {
	s.tickPending = false
	if s.closed || len(s.queue) == 0 {
		return
	}

	n := min(s.opts.BatchSize, len(s.queue))
	batch := make([]*Unit, n)
	copy(batch, s.queue[:n])
	clear(s.queue[:n])
	s.queue = s.queue[n:]

	start := time.Now()
	s.guard.Suspend()
	for _, u := range batch {
		s.process(u)
	}
	// Resume may enqueue roots the page added in the meantime
	s.guard.Resume()
	elapsed := time.Since(start)

	s.stats.Batches++
	if s.observer != nil {
		s.observer.BatchFinished(len(batch), elapsed)
	}
	debug.LogScheduler("batch of %d units in %v, %d queued\n", len(batch), elapsed, len(s.queue))

	if len(s.queue) > 0 {
		s.scheduleTick()
		return
	}
	s.processed = make(map[*html.Node]bool)
	if s.onIdle != nil {
		s.onIdle()
	}
}

func (s *Scheduler) process(u *Unit) {
	u.State = UnitProcessing
	defer func() {
		if r := recover(); r != nil {
			u.Err = errors.NewRenderError("process", "", fmt.Errorf("panic: %v", r))
			u.State = UnitFailed
		}
		s.finish(u)
	}()

	if u.Root == nil || !s.tree.Contains(u.Root) {
		u.Err = errors.NewTraversalError(u.ID, "walk", fmt.Errorf("root is detached"))
		u.State = UnitFailed
		return
	}
	if s.processed[u.Root] {
		u.Skipped = true
		u.State = UnitDone
		return
	}
	s.processed[u.Root] = true

	// collected first: rendering replaces the leaves the walk is reading
	leaves := slices.Collect(s.walker.Leaves(u.Root))
	u.Leaves = len(leaves)
	for _, leaf := range leaves {
		plan := s.plan(leaf.Data)
		if plan.Empty() {
			continue
		}
		n, err := s.renderer.Apply(leaf, plan)
		if err != nil {
			u.LeafErrors++
			log.Printf("lexmark: unit %d: %v", u.ID, err)
			continue
		}
		u.Annotations += n
	}
	u.State = UnitDone
}

func (s *Scheduler) finish(u *Unit) {
	switch u.State {
	case UnitDone:
		s.stats.Done++
	case UnitFailed:
		s.stats.Failed++
		log.Printf("lexmark: unit %d failed: %v", u.ID, u.Err)
	}
	s.stats.Leaves += int64(u.Leaves)
	s.stats.Annotations += int64(u.Annotations)
	s.stats.LeafErrors += int64(u.LeafErrors)
	if s.observer != nil {
		s.observer.UnitFinished(u)
	}
}

// plan returns the match plan for text, from the fragment cache when possible
func (s *Scheduler) plan(text string) match.Result {
	if s.index.Len() == 0 {
		return match.Result{Text: text}
	}
	prefix := text
	if len(prefix) > s.opts.FragmentPrefixLen {
		prefix = prefix[:s.opts.FragmentPrefixLen]
	}
	key := fragmentKey{
		prefix:     prefix,
		size:       s.index.Len(),
		generation: s.index.Generation(),
		hash:       xxhash.Sum64String(text),
	}
	if spans, ok := s.fragments.Get(key); ok {
		return match.Result{Text: text, Spans: spans}
	}
	res := match.Leaf(text, s.index, s.matchers)
	s.fragments.Put(key, res.Spans)
	return res
}

func (s *Scheduler) evicted(name string, limit, evicted, remaining int) {
	debug.LogScheduler("%v; evicted %d\n", errors.NewResourceError(name, remaining+evicted, limit), evicted)
	if s.observer != nil {
		s.observer.CacheEvicted(name, evicted)
	}
}

// Clear empties both caches and the annotation pool. It is the recovery path
// for memory pressure; nothing else is lost, caches refill on demand.
func (s *Scheduler) Clear() {
	s.matchers.Clear()
	s.fragments.Clear()
	s.renderer.Pool().Clear()
	s.stats.Clears++
	debug.LogScheduler("emergency clear\n")
}

// StartCleanup sweeps both caches every CleanupInterval until Close
func (s *Scheduler) StartCleanup() {
	if s.closed || s.stopCleanup != nil {
		return
	}
	var arm func()
	arm = func() {
		s.stopCleanup = s.loop.PostAfter(s.opts.CleanupInterval, func() {
			if s.closed {
				return
			}
			s.Cleanup()
			arm()
		})
	}
	arm()
}

// Cleanup evicts the oldest half of any cache that is over its bound
func (s *Scheduler) Cleanup() int {
	return s.matchers.Sweep() + s.fragments.Sweep()
}

// Pending returns the number of queued units
func (s *Scheduler) Pending() int {
	return len(s.queue)
}

// Close supersedes queued work, stops periodic cleanup and clears caches
func (s *Scheduler) Close() {
	if s.closed {
		return
	}
	for _, q := range s.queue {
		s.supersede(q)
	}
	s.queue = nil
	s.closed = true
	if s.stopCleanup != nil {
		s.stopCleanup()
		s.stopCleanup = nil
	}
	s.Clear()
}

// GetStats returns a snapshot of the counters
func (s *Scheduler) GetStats() Stats {
	st := s.stats
	st.Queued = len(s.queue)
	st.MatcherCache = s.matchers.GetStats()
	st.FragmentCache = s.fragments.GetStats()
	return st
}
