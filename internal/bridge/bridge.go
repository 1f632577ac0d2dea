// Package bridge turns content tree mutations into processing units.
//
// The engine's own writes must never come back as work. Every write batch is
// bracketed by Suspend and Resume: Suspend keeps whatever the page queued so
// far and disconnects the observer, so the writes are never recorded;
// Resume reconnects and hands the kept records on as one coalesced batch.
package bridge

import (
	"golang.org/x/net/html"

	"github.com/standardbeagle/lexmark/internal/debug"
	"github.com/standardbeagle/lexmark/internal/dom"
)

// Sink receives the distinct subtree roots of one mutation batch
type Sink interface {
	Enqueue(roots ...*html.Node) int
}

// Stats counts bridge activity
type Stats struct {
	Batches     int64 // record batches handled
	Roots       int64 // roots passed to the sink
	Coalesced   int64 // records kept across a suspension
	Suspensions int64
}

// Bridge observes a document and feeds added subtrees to a sink
type Bridge struct {
	doc      *dom.Document
	observer *dom.Observer
	sink     Sink
	removed  func(*html.Node)
	added    func(*html.Node)

	running bool
	depth   int
	pending []dom.MutationRecord
	stats   Stats
}

// New creates a stopped bridge
func New(doc *dom.Document, sink Sink) *Bridge {
	b := &Bridge{doc: doc, sink: sink}
	b.observer = doc.NewObserver(b.deliver)
	return b
}

// OnRemoved installs a callback for subtrees the page detached
func (b *Bridge) OnRemoved(fn func(*html.Node)) {
	b.removed = fn
}

// OnAdded installs a callback run for each root of a batch before the roots
// are handed to the sink
func (b *Bridge) OnAdded(fn func(*html.Node)) {
	b.added = fn
}

// Start subscribes to the document
func (b *Bridge) Start() {
	if b.running {
		return
	}
	b.running = true
	if b.depth == 0 {
		b.observer.Observe()
	}
}

// Stop unsubscribes and forgets anything pending
func (b *Bridge) Stop() {
	b.running = false
	b.pending = nil
	b.observer.Disconnect()
}

// Running reports whether the bridge is subscribed or suspended
func (b *Bridge) Running() bool {
	return b.running
}

// Suspended reports whether a write batch is in progress
func (b *Bridge) Suspended() bool {
	return b.depth > 0
}

// Suspend stops observing until the matching Resume. Calls nest.
func (b *Bridge) Suspend() {
	b.depth++
	if b.depth > 1 || !b.running {
		return
	}
	b.stats.Suspensions++
	kept := b.observer.TakeRecords()
	b.stats.Coalesced += int64(len(kept))
	b.pending = append(b.pending, kept...)
	b.observer.Disconnect()
}

// Resume ends a write batch. The outermost Resume reconnects the observer and
// processes the records kept at suspension.
func (b *Bridge) Resume() {
	if b.depth == 0 {
		return
	}
	b.depth--
	if b.depth > 0 || !b.running {
		return
	}
	b.observer.Observe()
	if len(b.pending) == 0 {
		return
	}
	recs := b.pending
	b.pending = nil
	b.handle(recs)
}

// GetStats returns a copy of the counters
func (b *Bridge) GetStats() Stats {
	return b.stats
}

func (b *Bridge) deliver(recs []dom.MutationRecord) {
	if b.depth > 0 {
		b.pending = append(b.pending, recs...)
		return
	}
	b.handle(recs)
}

func (b *Bridge) handle(recs []dom.MutationRecord) {
	b.stats.Batches++

	seen := make(map[*html.Node]bool)
	var roots []*html.Node
	for _, rec := range recs {
		for _, n := range rec.Removed {
			if b.removed != nil && !b.doc.Contains(n) {
				b.removed(n)
			}
		}
		for _, n := range rec.Added {
			if seen[n] || !b.doc.Contains(n) {
				continue
			}
			seen[n] = true
			roots = append(roots, n)
		}
	}
	roots = outermost(roots)
	if len(roots) == 0 {
		return
	}

	debug.LogBridge("batch of %d records: %d new roots\n", len(recs), len(roots))
	if b.added != nil {
		for _, n := range roots {
			b.added(n)
		}
	}
	b.Suspend()
	n := b.sink.Enqueue(roots...)
	b.Resume()
	b.stats.Roots += int64(n)
}

// outermost drops roots that sit inside another root of the same batch, so a
// subtree built up after attachment is still one unit
func outermost(roots []*html.Node) []*html.Node {
	if len(roots) < 2 {
		return roots
	}
	set := make(map[*html.Node]bool, len(roots))
	for _, n := range roots {
		set[n] = true
	}
	out := roots[:0]
	for _, n := range roots {
		nested := false
		for p := n.Parent; p != nil; p = p.Parent {
			if set[p] {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, n)
		}
	}
	return out
}
