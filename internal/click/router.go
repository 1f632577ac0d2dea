// Package click surfaces annotation activations from a single delegated
// listener.
package click

import (
	"time"

	"golang.org/x/net/html"

	"github.com/standardbeagle/lexmark/internal/dom"
	"github.com/standardbeagle/lexmark/internal/render"
)

// DefaultDebounce suppresses repeated activations of the same annotation
const DefaultDebounce = 300 * time.Millisecond

// EventType is the event the router listens for
const EventType = "click"

// Payload is handed to the activation callback
type Payload struct {
	Reference    string // annotation id
	Node         *html.Node
	Word         string // matched text as it appears on the page
	Key          string
	Translation  string
	UsageCount   int
	PartOfSpeech string
}

// Lookup resolves an annotation node to its record. *render.Registry satisfies it.
type Lookup interface {
	Get(n *html.Node) (*render.Annotation, bool)
}

// Router listens on one ancestor and routes activations to a callback
type Router struct {
	doc      *dom.Document
	lookup   Lookup
	debounce time.Duration
	now      func() time.Time

	listener dom.ListenerID
	attached *html.Node
	callback func(Payload)

	lastNode *html.Node
	lastAt   time.Time

	activations int64
	suppressed  int64
}

// NewRouter creates a detached router
func NewRouter(doc *dom.Document, lookup Lookup, debounce time.Duration) *Router {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Router{doc: doc, lookup: lookup, debounce: debounce, now: time.Now}
}

// SetClock replaces the time source used for debouncing
func (r *Router) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// OnActivated sets the callback; nil disables delivery
func (r *Router) OnActivated(fn func(Payload)) {
	r.callback = fn
}

// Attach installs the listener on root, replacing any previous one
func (r *Router) Attach(root *html.Node) {
	r.Detach()
	r.attached = root
	r.listener = r.doc.AddListener(root, EventType, r.handle)
}

// Detach removes the listener
func (r *Router) Detach() {
	if r.attached == nil {
		return
	}
	r.doc.RemoveListener(r.listener)
	r.attached = nil
	r.lastNode = nil
}

func (r *Router) handle(ev *dom.Event) {
	node := dom.AnnotationAncestor(ev.Target)
	if node == nil {
		return
	}

	at := r.now()
	if node == r.lastNode && at.Sub(r.lastAt) < r.debounce {
		r.suppressed++
		return
	}
	r.lastNode, r.lastAt = node, at

	p, ok := r.payload(node)
	if !ok {
		return
	}
	r.activations++
	if r.callback != nil {
		r.callback(p)
	}
}

func (r *Router) payload(node *html.Node) (Payload, bool) {
	if a, ok := r.lookup.Get(node); ok {
		return Payload{
			Reference:    a.ID,
			Node:         node,
			Word:         a.Text,
			Key:          a.Entry.Key,
			Translation:  a.Entry.Translation,
			UsageCount:   a.Entry.UsageCount,
			PartOfSpeech: a.Entry.PartOfSpeech,
		}, true
	}
	return Payload{}, false
}

// Stats returns delivered and suppressed activation counts
func (r *Router) Stats() (activations, suppressed int64) {
	return r.activations, r.suppressed
}
