// Package dom is the live content tree the engine annotates.
//
// A Document wraps an x/net/html node tree and owns every structural write
// to it, so that each write can be reported to connected observers the way
// a browser reports DOM mutations. Documents are not safe for concurrent
// use: the page and the engine both touch them from the host loop only.
package dom

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	// ErrNotChild is returned when a node is not a child of the given parent
	ErrNotChild = errors.New("node is not a child of parent")
	// ErrHasParent is returned when inserting a node that is still attached
	ErrHasParent = errors.New("node already has a parent")
	// ErrNotText is returned by SetText for non-text nodes
	ErrNotText = errors.New("node is not a text node")
)

// Poster queues a task on the host loop. *host.Loop satisfies it.
type Poster interface {
	Post(fn func()) bool
}

// MutationRecord describes one child-list change under Target, or one text
// change of Target itself when both node lists are empty.
type MutationRecord struct {
	Target  *html.Node
	Added   []*html.Node
	Removed []*html.Node
}

// Document is a content tree plus the observers and listeners attached to it
type Document struct {
	root      *html.Node
	poster    Poster
	observers []*Observer
	events    eventTable
}

// NewDocument wraps an existing tree. Observer deliveries are posted to poster.
func NewDocument(root *html.Node, poster Poster) *Document {
	return &Document{
		root:   root,
		poster: poster,
		events: newEventTable(),
	}
}

// Parse reads an HTML document
func Parse(r io.Reader, poster Poster) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return NewDocument(root, poster), nil
}

// ParseString is Parse for in-memory markup
func ParseString(s string, poster Poster) (*Document, error) {
	return Parse(strings.NewReader(s), poster)
}

// Root returns the document node
func (d *Document) Root() *html.Node {
	return d.root
}

// Body returns the <body> element, or the root when there is none
func (d *Document) Body() *html.Node {
	if body := FindElement(d.root, atom.Body); body != nil {
		return body
	}
	return d.root
}

// Render serializes the whole tree
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// String renders the tree, ignoring write errors
func (d *Document) String() string {
	var sb strings.Builder
	_ = html.Render(&sb, d.root)
	return sb.String()
}

// Contains reports whether n is attached under the document root
func (d *Document) Contains(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

// AppendChild adds child as the last child of parent
func (d *Document) AppendChild(parent, child *html.Node) error {
	if child.Parent != nil {
		return ErrHasParent
	}
	parent.AppendChild(child)
	d.record(MutationRecord{Target: parent, Added: []*html.Node{child}})
	return nil
}

// InsertBefore adds child before ref; a nil ref appends
func (d *Document) InsertBefore(parent, child, ref *html.Node) error {
	if child.Parent != nil {
		return ErrHasParent
	}
	if ref != nil && ref.Parent != parent {
		return ErrNotChild
	}
	parent.InsertBefore(child, ref)
	d.record(MutationRecord{Target: parent, Added: []*html.Node{child}})
	return nil
}

// RemoveChild detaches child from parent
func (d *Document) RemoveChild(parent, child *html.Node) error {
	if child.Parent != parent {
		return ErrNotChild
	}
	parent.RemoveChild(child)
	d.record(MutationRecord{Target: parent, Removed: []*html.Node{child}})
	return nil
}

// ReplaceChild swaps old for the replacement nodes in a single step and
// reports it as a single record. Replacements must be detached.
func (d *Document) ReplaceChild(parent, old *html.Node, replacements ...*html.Node) error {
	if old.Parent != parent {
		return ErrNotChild
	}
	for _, n := range replacements {
		if n.Parent != nil || n.PrevSibling != nil || n.NextSibling != nil {
			return ErrHasParent
		}
	}

	prev, next := old.PrevSibling, old.NextSibling
	old.Parent, old.PrevSibling, old.NextSibling = nil, nil, nil

	if len(replacements) == 0 {
		link(parent, prev, next)
	} else {
		for _, n := range replacements {
			n.Parent = parent
		}
		for i := 1; i < len(replacements); i++ {
			replacements[i-1].NextSibling = replacements[i]
			replacements[i].PrevSibling = replacements[i-1]
		}
		first, last := replacements[0], replacements[len(replacements)-1]
		link(parent, prev, first)
		link(parent, last, next)
	}

	d.record(MutationRecord{Target: parent, Added: replacements, Removed: []*html.Node{old}})
	return nil
}

// link joins a and b as adjacent children of parent; either may be nil
func link(parent, a, b *html.Node) {
	if a != nil {
		a.NextSibling = b
	} else {
		parent.FirstChild = b
	}
	if b != nil {
		b.PrevSibling = a
	} else {
		parent.LastChild = a
	}
}

// SetText replaces the data of a text node
func (d *Document) SetText(n *html.Node, text string) error {
	if n.Type != html.TextNode {
		return ErrNotText
	}
	if n.Data == text {
		return nil
	}
	n.Data = text
	d.record(MutationRecord{Target: n})
	return nil
}

func (d *Document) record(rec MutationRecord) {
	for _, o := range d.observers {
		o.enqueue(rec)
	}
}
