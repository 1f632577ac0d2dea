// Package visibility downgrades annotations far from the viewport.
//
// Annotations near the visible area render at full fidelity; the rest are
// marked deferred so the page can style them cheaply. Classification is
// recomputed, debounced, whenever the viewport moves or annotations appear.
package visibility

import (
	"time"

	"github.com/standardbeagle/lexmark/internal/debug"
	"github.com/standardbeagle/lexmark/internal/render"
)

// DefaultDebounce is the recompute delay when none is configured
const DefaultDebounce = 100 * time.Millisecond

// Loop schedules delayed tasks on the host loop
type Loop interface {
	PostAfter(d time.Duration, fn func()) (cancel func() bool)
}

// StateSetter applies a state to an annotation. *render.Renderer satisfies it.
type StateSetter interface {
	SetState(a *render.Annotation, s render.State) bool
}

// Stats counts the last classification
type Stats struct {
	Tracked    int
	Visible    int
	Deferred   int
	Recomputes int64
	Changes    int64
}

// Tracker classifies registered annotations against the viewport
type Tracker struct {
	loop     Loop
	geometry Geometry
	setter   StateSetter
	margin   float64
	debounce time.Duration

	viewport Rect
	tracked  map[*render.Annotation]struct{}
	cancel   func() bool
	closed   bool
	stats    Stats
}

// NewTracker creates a tracker. margin extends the viewport on both sides.
func NewTracker(loop Loop, geometry Geometry, setter StateSetter, viewport Rect, margin float64, debounce time.Duration) *Tracker {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Tracker{
		loop:     loop,
		geometry: geometry,
		setter:   setter,
		margin:   margin,
		debounce: debounce,
		viewport: viewport,
		tracked:  make(map[*render.Annotation]struct{}),
	}
}

// Register starts tracking a newly rendered annotation
func (t *Tracker) Register(a *render.Annotation) {
	t.tracked[a] = struct{}{}
	t.schedule()
}

// Unregister stops tracking an annotation about to be released
func (t *Tracker) Unregister(a *render.Annotation) {
	delete(t.tracked, a)
}

// ViewportChanged records a scroll or resize and schedules a recompute
func (t *Tracker) ViewportChanged(r Rect) {
	t.viewport = r
	t.schedule()
}

// Viewport returns the current viewport
func (t *Tracker) Viewport() Rect {
	return t.viewport
}

func (t *Tracker) schedule() {
	if t.closed {
		return
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.cancel = t.loop.PostAfter(t.debounce, func() {
		t.cancel = nil
		t.Recompute()
	})
}

// Recompute classifies every tracked annotation now
func (t *Tracker) Recompute() {
	if t.closed {
		return
	}
	t.geometry.Invalidate()

	low := t.viewport.Top - t.margin
	high := t.viewport.Bottom() + t.margin
	visible, deferred := 0, 0
	for a := range t.tracked {
		state := render.StateDeferred
		if top, bottom, ok := t.geometry.Bounds(a.Node); ok && bottom >= low && top <= high {
			state = render.StateVisible
			visible++
		} else {
			deferred++
		}
		if t.setter.SetState(a, state) {
			t.stats.Changes++
		}
	}

	t.stats.Recomputes++
	t.stats.Tracked = len(t.tracked)
	t.stats.Visible = visible
	t.stats.Deferred = deferred
	debug.Log("VIS", "%d visible, %d deferred\n", visible, deferred)
}

// Close cancels any pending recompute and stops tracking
func (t *Tracker) Close() {
	t.closed = true
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	clear(t.tracked)
}

// GetStats returns the counters of the last recompute
func (t *Tracker) GetStats() Stats {
	return t.stats
}
