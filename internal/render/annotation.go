package render

import (
	"iter"

	"golang.org/x/net/html"

	"github.com/standardbeagle/lexmark/internal/vocab"
)

// State is the rendering fidelity of a live annotation
type State string

const (
	StateVisible  State = "visible"
	StateDeferred State = "deferred"
)

// Annotation is the engine-side record of one annotation node. Records are
// pooled; Reset clears every field before a record is reused.
type Annotation struct {
	ID    string
	Node  *html.Node
	Text  string // matched text in its original case
	Entry vocab.Entry
	State State
}

// Reset implements alloc.Resettable
func (a *Annotation) Reset() {
	*a = Annotation{}
}

// Registry maps live annotation nodes to their records
type Registry struct {
	byNode map[*html.Node]*Annotation
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{byNode: make(map[*html.Node]*Annotation)}
}

func (r *Registry) add(a *Annotation) {
	r.byNode[a.Node] = a
}

func (r *Registry) remove(n *html.Node) (*Annotation, bool) {
	a, ok := r.byNode[n]
	if ok {
		delete(r.byNode, n)
	}
	return a, ok
}

// Get returns the record for an annotation node
func (r *Registry) Get(n *html.Node) (*Annotation, bool) {
	a, ok := r.byNode[n]
	return a, ok
}

// Len returns the number of live annotations
func (r *Registry) Len() int {
	return len(r.byNode)
}

// All yields every live annotation in no particular order
func (r *Registry) All() iter.Seq[*Annotation] {
	return func(yield func(*Annotation) bool) {
		for _, a := range r.byNode {
			if !yield(a) {
				return
			}
		}
	}
}
