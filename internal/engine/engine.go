// Package engine wires the highlighting components into one object a host
// page drives.
//
// All methods except Rehighlight and Start must run on the host loop.
// Rehighlight fetches the vocabulary on the calling goroutine and posts the
// rebuild to the loop, so it may be called from anywhere (a file watcher,
// a storage callback).
package engine

import (
	"context"
	stderrors "errors"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/html"

	"github.com/standardbeagle/lexmark/internal/alloc"
	"github.com/standardbeagle/lexmark/internal/bridge"
	"github.com/standardbeagle/lexmark/internal/click"
	"github.com/standardbeagle/lexmark/internal/config"
	"github.com/standardbeagle/lexmark/internal/debug"
	"github.com/standardbeagle/lexmark/internal/dictionary"
	"github.com/standardbeagle/lexmark/internal/dom"
	lexerrors "github.com/standardbeagle/lexmark/internal/errors"
	"github.com/standardbeagle/lexmark/internal/host"
	"github.com/standardbeagle/lexmark/internal/metrics"
	"github.com/standardbeagle/lexmark/internal/render"
	"github.com/standardbeagle/lexmark/internal/scheduler"
	"github.com/standardbeagle/lexmark/internal/visibility"
	"github.com/standardbeagle/lexmark/internal/vocab"
	"github.com/standardbeagle/lexmark/internal/walker"
)

var (
	// ErrStarted is returned by a second Start
	ErrStarted = stderrors.New("engine already started")
	// ErrDisposed is returned once the engine or its loop has shut down
	ErrDisposed = stderrors.New("engine disposed")
)

// Env carries the collaborators every component shares. It is built once
// per engine and passed down explicitly.
type Env struct {
	Logger   *log.Logger
	Metrics  *metrics.Collector
	Now      func() time.Time
	Registry prometheus.Registerer // nil leaves Metrics unregistered
}

// Option customizes an engine
type Option func(*Engine)

// WithLogger sets the operator-facing logger
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.env.Logger = l }
}

// WithRegisterer registers the engine's Prometheus collectors on reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.env.Registry = reg }
}

// WithClock replaces time.Now for activation debouncing
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.env.Now = now }
}

// WithGeometry replaces the flow layout estimate used for visibility
func WithGeometry(g visibility.Geometry) Option {
	return func(e *Engine) { e.geometry = g }
}

// WithViewport sets the initial viewport
func WithViewport(r visibility.Rect) Option {
	return func(e *Engine) { e.viewport = &r }
}

// Stats aggregates the counters of every component
type Stats struct {
	Generation       uint64 // dictionary build in use, 0 before the first
	Entries          int
	Live             int // annotations in the document
	Scheduler        scheduler.Stats
	Bridge           bridge.Stats
	Visibility       visibility.Stats
	Pool             alloc.PoolStats
	Activations      int64
	Suppressed       int64
	PressureTriggers int64
}

// Engine annotates one document
type Engine struct {
	cfg      *config.Config
	env      Env
	doc      *dom.Document
	loop     *host.Loop
	provider vocab.Provider
	root     *html.Node

	walker    *walker.Walker
	renderer  *render.Renderer
	scheduler *scheduler.Scheduler
	bridge    *bridge.Bridge
	tracker   *visibility.Tracker
	geometry  visibility.Geometry
	viewport  *visibility.Rect
	router    *click.Router
	pressure  *scheduler.PressureMonitor

	seq      atomic.Uint64 // rehighlight requests issued
	applied  uint64        // newest request installed, loop only
	started  atomic.Bool
	disposed atomic.Bool
	onIdle   func()
	lastPool alloc.PoolStats
}

// New builds a stopped engine over doc. Nothing is observed or rendered
// until Start.
func New(doc *dom.Document, loop *host.Loop, provider vocab.Provider, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	e := &Engine{
		cfg:      cfg,
		doc:      doc,
		loop:     loop,
		provider: provider,
		root:     doc.Body(),
		env: Env{
			Logger:  log.New(os.Stderr, "lexmark: ", log.LstdFlags),
			Metrics: metrics.NewCollector(),
			Now:     time.Now,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.env.Registry != nil {
		if err := e.env.Metrics.Register(e.env.Registry); err != nil {
			return nil, err
		}
	}

	e.walker = walker.New(walker.Options{
		SkipHidden:    cfg.Walker.SkipHidden,
		ExtraSkipTags: cfg.Walker.ExtraSkipTags,
	})
	e.renderer = render.New(doc, render.NewAnnotationPool(cfg.Scheduler.MaxPoolSize))
	e.scheduler = scheduler.New(loop, doc, e.walker, e.renderer, scheduler.Options{
		BatchSize:         cfg.Scheduler.BatchSize,
		TicksPerSecond:    cfg.Scheduler.TicksPerSecond,
		MaxMatcherCache:   cfg.Scheduler.MaxMatcherCache,
		MaxFragmentCache:  cfg.Scheduler.MaxFragmentCache,
		CleanupInterval:   cfg.Scheduler.CleanupInterval(),
		FragmentPrefixLen: cfg.Scheduler.FragmentPrefixLen,
	})
	e.bridge = bridge.New(doc, e.scheduler)
	e.scheduler.SetGuard(e.bridge)
	e.scheduler.SetObserver(e.env.Metrics)
	e.scheduler.OnIdle(e.idle)

	if e.geometry == nil {
		e.geometry = visibility.NewFlowGeometry(e.root, cfg.Visibility.CharsPerLine, cfg.Visibility.LineHeightPx)
	}
	vp := visibility.Rect{Top: 0, Height: cfg.Visibility.ViewportHeight}
	if e.viewport != nil {
		vp = *e.viewport
	}
	e.tracker = visibility.NewTracker(loop, e.geometry, e.renderer, vp, cfg.Visibility.MarginPx, cfg.Visibility.Debounce())
	e.renderer.SetHooks(render.Hooks{
		Created: e.tracker.Register,
		Removed: e.tracker.Unregister,
	})
	e.bridge.OnRemoved(func(n *html.Node) { e.renderer.Prune(n) })
	e.bridge.OnAdded(func(n *html.Node) { e.renderer.Adopt(n) })

	e.router = click.NewRouter(doc, e.renderer.Registry(), cfg.Click.Debounce())
	e.router.SetClock(e.env.Now)

	e.pressure = scheduler.NewPressureMonitor(cfg.Pressure.MaxHeapMB, cfg.Pressure.PollInterval(), func() {
		e.loop.Post(e.Pressure)
	})
	return e, nil
}

// Start fetches the vocabulary, then on the loop subscribes to tree changes,
// attaches the click router and queues the initial full scan.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	seq, idx, err := e.fetch(ctx)
	if err != nil {
		e.started.Store(false)
		return err
	}

	e.pressure.Start(ctx)
	if !e.loop.Post(func() {
		if e.disposed.Load() {
			return
		}
		e.bridge.Start()
		e.router.Attach(e.root)
		e.scheduler.StartCleanup()
		e.install(seq, idx)
	}) {
		e.pressure.Stop()
		return ErrDisposed
	}
	e.env.Logger.Printf("started with %d entries", idx.Len())
	return nil
}

// Rehighlight rebuilds every annotation from the provider's latest snapshot.
// When several requests overlap, only the newest one is installed.
func (e *Engine) Rehighlight(ctx context.Context) error {
	if e.disposed.Load() {
		return ErrDisposed
	}
	seq, idx, err := e.fetch(ctx)
	if err != nil {
		return err
	}
	if !e.loop.Post(func() { e.install(seq, idx) }) {
		return ErrDisposed
	}
	return nil
}

func (e *Engine) fetch(ctx context.Context) (uint64, *dictionary.Index, error) {
	seq := e.seq.Add(1)
	entries, err := vocab.Load(ctx, e.provider)
	if err != nil {
		if !lexerrors.IsDataError(err) {
			return 0, nil, err
		}
		e.env.Logger.Printf("vocabulary: skipped malformed entries: %v", err)
	}
	idx := dictionary.Build(entries, e.cfg.Dictionary.MaxEntries)
	debug.LogEngine("fetched %d entries (%d dropped by cap) for request %d\n", idx.Len(), idx.Dropped(), seq)
	return seq, idx, nil
}

func (e *Engine) install(seq uint64, idx *dictionary.Index) {
	if e.disposed.Load() || !e.bridge.Running() || seq < e.applied {
		debug.LogEngine("request %d dropped (applied %d)\n", seq, e.applied)
		return
	}
	e.applied = seq
	e.scheduler.SetIndex(idx)
	e.env.Metrics.Rehighlight()
	units := e.scheduler.Rebuild(e.root)
	debug.LogEngine("rebuild %d: generation %d, %d units\n", seq, idx.Generation(), len(units))
}

func (e *Engine) idle() {
	e.env.Metrics.SetLiveAnnotations(e.renderer.Registry().Len())
	ps := e.renderer.Pool().GetStats()
	e.env.Metrics.PoolDelta(ps.Reuses-e.lastPool.Reuses, ps.Discards-e.lastPool.Discards)
	e.lastPool = ps
	if e.onIdle != nil {
		e.onIdle()
	}
}

// OnIdle installs a callback run each time queued work drains
func (e *Engine) OnIdle(fn func()) {
	e.onIdle = fn
}

// OnAnnotationActivated sets the callback for debounced annotation clicks
func (e *Engine) OnAnnotationActivated(fn func(click.Payload)) {
	e.router.OnActivated(fn)
}

// ViewportChanged reports a scroll or resize; classification follows after
// the visibility debounce
func (e *Engine) ViewportChanged(r visibility.Rect) {
	e.tracker.ViewportChanged(r)
}

// Pressure drops caches and pooled records. Live annotations are untouched.
func (e *Engine) Pressure() {
	if e.disposed.Load() {
		return
	}
	e.scheduler.Clear()
	e.env.Logger.Printf("memory pressure: caches and pool cleared")
}

// Document returns the annotated document
func (e *Engine) Document() *dom.Document {
	return e.doc
}

// Stats returns a snapshot of every component's counters
func (e *Engine) Stats() Stats {
	activations, suppressed := e.router.Stats()
	idx := e.scheduler.Index()
	return Stats{
		Generation:       idx.Generation(),
		Entries:          idx.Len(),
		Live:             e.renderer.Registry().Len(),
		Scheduler:        e.scheduler.GetStats(),
		Bridge:           e.bridge.GetStats(),
		Visibility:       e.tracker.GetStats(),
		Pool:             e.renderer.Pool().GetStats(),
		Activations:      activations,
		Suppressed:       suppressed,
		PressureTriggers: e.pressure.Triggers(),
	}
}

// Shutdown stops observing, listening and every timer, leaving the
// annotations in place. Used by hosts that keep the annotated output.
func (e *Engine) Shutdown() {
	if !e.disposed.CompareAndSwap(false, true) {
		return
	}
	e.pressure.Stop()
	e.bridge.Stop()
	e.router.Detach()
	e.tracker.Close()
	e.scheduler.Close()
}

// Dispose shuts the engine down and unwraps every annotation back to plain
// text.
func (e *Engine) Dispose() error {
	wasDisposed := e.disposed.Load()
	e.Shutdown()

	n, err := e.renderer.Unwrap(e.root)
	e.renderer.Pool().Clear()
	if !wasDisposed {
		e.env.Logger.Printf("disposed, %d annotations removed", n)
	}
	return err
}
