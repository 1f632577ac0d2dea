// Package render turns match plans into annotation nodes in the content tree
// and back into plain text.
package render

import (
	stderrors "errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/standardbeagle/lexmark/internal/alloc"
	"github.com/standardbeagle/lexmark/internal/debug"
	"github.com/standardbeagle/lexmark/internal/dom"
	"github.com/standardbeagle/lexmark/internal/errors"
	"github.com/standardbeagle/lexmark/internal/match"
	"github.com/standardbeagle/lexmark/internal/vocab"
)

var (
	// ErrDetached is returned when a leaf no longer has a parent
	ErrDetached = stderrors.New("leaf is detached from the tree")
	// ErrStale is returned when a leaf's text changed after it was matched
	ErrStale = stderrors.New("leaf text changed since matching")
)

// Tree is the subset of *dom.Document the renderer writes through
type Tree interface {
	ReplaceChild(parent, old *html.Node, replacements ...*html.Node) error
	RemoveChild(parent, child *html.Node) error
	SetText(n *html.Node, text string) error
}

// Hooks observe annotation lifecycle; either may be nil
type Hooks struct {
	Created func(*Annotation)
	Removed func(*Annotation)
}

// Renderer applies match plans to leaves. It must only write while the
// mutation bridge is suspended; the scheduler guarantees that.
type Renderer struct {
	tree     Tree
	pool     *alloc.Pool[*Annotation]
	registry *Registry
	hooks    Hooks
	newID    func() string
}

// New creates a renderer drawing annotation records from pool
func New(tree Tree, pool *alloc.Pool[*Annotation]) *Renderer {
	return &Renderer{
		tree:     tree,
		pool:     pool,
		registry: NewRegistry(),
		newID:    uuid.NewString,
	}
}

// NewAnnotationPool creates the pool the renderer draws records from
func NewAnnotationPool(maxRetained int) *alloc.Pool[*Annotation] {
	return alloc.NewPool(func() *Annotation { return &Annotation{} }, maxRetained)
}

// SetHooks installs lifecycle hooks
func (r *Renderer) SetHooks(h Hooks) {
	r.hooks = h
}

// Pool returns the annotation record pool
func (r *Renderer) Pool() *alloc.Pool[*Annotation] {
	return r.pool
}

// Registry returns the live annotation registry
func (r *Renderer) Registry() *Registry {
	return r.registry
}

// Apply replaces leaf with alternating text runs and annotation elements in a
// single swap. A plan without spans leaves the leaf untouched. On error the
// leaf is unmodified and every acquired record is returned to the pool.
func (r *Renderer) Apply(leaf *html.Node, plan match.Result) (int, error) {
	if plan.Empty() {
		return 0, nil
	}
	if leaf.Type != html.TextNode || leaf.Parent == nil {
		return 0, errors.NewRenderError("apply", plan.Text, ErrDetached)
	}
	if leaf.Data != plan.Text {
		return 0, errors.NewRenderError("apply", plan.Text, ErrStale)
	}

	segs := plan.Segments()
	nodes := make([]*html.Node, 0, len(segs))
	created := make([]*Annotation, 0, len(plan.Spans))
	for _, seg := range segs {
		if seg.Match == nil {
			nodes = append(nodes, dom.Text(seg.Text))
			continue
		}
		a := r.pool.Acquire()
		a.ID = r.newID()
		a.Text = seg.Text
		a.Entry = seg.Match.Entry
		a.State = StateVisible
		a.Node = annotationNode(a)
		nodes = append(nodes, a.Node)
		created = append(created, a)
	}

	if err := r.tree.ReplaceChild(leaf.Parent, leaf, nodes...); err != nil {
		for _, a := range created {
			r.pool.Release(a)
		}
		return 0, errors.NewRenderError("apply", plan.Text, err)
	}

	for _, a := range created {
		r.registry.add(a)
		if r.hooks.Created != nil {
			r.hooks.Created(a)
		}
	}
	debug.LogRender("applied %d annotations to %q\n", len(created), truncate(plan.Text))
	return len(created), nil
}

func annotationNode(a *Annotation) *html.Node {
	n := dom.Element(atom.Span,
		"class", dom.AnnotationClass+" "+dom.AnnotationClass+"-"+string(a.Entry.Category),
		dom.AttrID, a.ID,
		dom.AttrKey, a.Entry.Key,
		dom.AttrTranslation, a.Entry.Translation,
		dom.AttrCount, strconv.Itoa(a.Entry.UsageCount),
	)
	if a.Entry.PartOfSpeech != "" {
		dom.SetAttr(n, dom.AttrPOS, a.Entry.PartOfSpeech)
	}
	dom.SetAttr(n, dom.AttrState, string(a.State))
	n.AppendChild(dom.Text(a.Text))
	return n
}

// SetState updates an annotation's fidelity and mirrors it onto its node
func (r *Renderer) SetState(a *Annotation, s State) bool {
	if a.State == s {
		return false
	}
	a.State = s
	dom.SetAttr(a.Node, dom.AttrState, string(s))
	return true
}

// Unwrap replaces every annotation under root (root included) with its plain
// text and merges the text runs that the swap left adjacent. It returns the
// number of annotations removed.
func (r *Renderer) Unwrap(root *html.Node) (int, error) {
	var found []*html.Node
	collectAnnotations(root, &found)

	var errs []error
	parents := make(map[*html.Node]bool)
	var order []*html.Node
	removed := 0
	for _, n := range found {
		parent := n.Parent
		if parent == nil {
			r.forget(n)
			continue
		}
		if err := r.tree.ReplaceChild(parent, n, dom.Text(dom.TextContent(n))); err != nil {
			errs = append(errs, errors.NewRenderError("unwrap", dom.TextContent(n), err))
			continue
		}
		r.forget(n)
		removed++
		if !parents[parent] {
			parents[parent] = true
			order = append(order, parent)
		}
	}

	for _, p := range order {
		if err := r.mergeText(p); err != nil {
			errs = append(errs, errors.NewRenderError("merge", "", err))
		}
	}
	return removed, errors.NewMultiError(errs)
}

// Prune drops the records of annotations under a subtree the page removed.
// The tree is not touched.
func (r *Renderer) Prune(root *html.Node) int {
	var found []*html.Node
	collectAnnotations(root, &found)
	n := 0
	for _, node := range found {
		if r.forget(node) {
			n++
		}
	}
	return n
}

// Adopt registers annotations under root that the registry does not know,
// rebuilding each record from the node's data attributes. Content the page
// detached (and Prune forgot) comes back through here when it is re-attached.
func (r *Renderer) Adopt(root *html.Node) int {
	var found []*html.Node
	collectAnnotations(root, &found)
	n := 0
	for _, node := range found {
		if _, ok := r.registry.Get(node); ok {
			continue
		}
		a := r.pool.Acquire()
		readAnnotation(a, node)
		r.registry.add(a)
		if r.hooks.Created != nil {
			r.hooks.Created(a)
		}
		n++
	}
	if n > 0 {
		debug.LogRender("adopted %d annotations\n", n)
	}
	return n
}

func readAnnotation(a *Annotation, n *html.Node) {
	a.Node = n
	a.ID, _ = dom.Attr(n, dom.AttrID)
	a.Text = dom.TextContent(n)
	a.Entry.Key, _ = dom.Attr(n, dom.AttrKey)
	a.Entry.Translation, _ = dom.Attr(n, dom.AttrTranslation)
	a.Entry.PartOfSpeech, _ = dom.Attr(n, dom.AttrPOS)
	if s, ok := dom.Attr(n, dom.AttrCount); ok {
		a.Entry.UsageCount, _ = strconv.Atoi(s)
	}
	a.Entry.Category = categoryOf(n, a.Entry.Key)
	a.State = StateVisible
	if s, _ := dom.Attr(n, dom.AttrState); State(s) == StateDeferred {
		a.State = StateDeferred
	}
}

// categoryOf reads the lexmark-<category> class, falling back to the key shape
func categoryOf(n *html.Node, key string) vocab.Category {
	class, _ := dom.Attr(n, "class")
	for _, f := range strings.Fields(class) {
		if rest, ok := strings.CutPrefix(f, dom.AnnotationClass+"-"); ok && vocab.Category(rest).Valid() {
			return vocab.Category(rest)
		}
	}
	if strings.Contains(key, " ") {
		return vocab.CategoryPhrase
	}
	return vocab.CategoryWord
}

func (r *Renderer) forget(n *html.Node) bool {
	a, ok := r.registry.remove(n)
	if !ok {
		return false
	}
	if r.hooks.Removed != nil {
		r.hooks.Removed(a)
	}
	r.pool.Release(a)
	return true
}

func (r *Renderer) mergeText(parent *html.Node) error {
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.TextNode {
			continue
		}
		for next := c.NextSibling; next != nil && next.Type == html.TextNode; next = c.NextSibling {
			if err := r.tree.SetText(c, c.Data+next.Data); err != nil {
				return err
			}
			if err := r.tree.RemoveChild(parent, next); err != nil {
				return err
			}
		}
	}
	return nil
}

func collectAnnotations(n *html.Node, out *[]*html.Node) {
	if dom.IsAnnotation(n) {
		*out = append(*out, n)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectAnnotations(c, out)
	}
}

func truncate(s string) string {
	if len(s) <= 40 {
		return s
	}
	cut := 40
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
