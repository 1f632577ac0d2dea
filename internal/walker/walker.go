// Package walker enumerates the text leaves of a subtree that are worth
// matching against the dictionary.
package walker

import (
	"iter"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/standardbeagle/lexmark/internal/dom"
)

// defaultSkip lists elements whose text is not rendered as page prose:
// code and styling, form controls, embedded media and document metadata.
var defaultSkip = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Head:     true,
	atom.Title:    true,
	atom.Textarea: true,
	atom.Input:    true,
	atom.Select:   true,
	atom.Option:   true,
	atom.Button:   true,
	atom.Iframe:   true,
	atom.Video:    true,
	atom.Audio:    true,
	atom.Canvas:   true,
	atom.Svg:      true,
	atom.Math:     true,
	atom.Object:   true,
	atom.Embed:    true,
}

// Options configures which elements are skipped
type Options struct {
	// SkipHidden also skips elements hidden by attribute or inline style.
	// It costs an attribute scan per element.
	SkipHidden bool
	// ExtraSkipTags are additional lowercase tag names to skip
	ExtraSkipTags []string
}

// Walker is stateless apart from its options and may be shared
type Walker struct {
	extra      map[string]bool
	skipHidden bool
}

// New creates a walker
func New(opts Options) *Walker {
	w := &Walker{skipHidden: opts.SkipHidden}
	if len(opts.ExtraSkipTags) > 0 {
		w.extra = make(map[string]bool, len(opts.ExtraSkipTags))
		for _, tag := range opts.ExtraSkipTags {
			w.extra[strings.ToLower(strings.TrimSpace(tag))] = true
		}
	}
	return w
}

// Leaves yields, in document order, every text node under root that holds
// more than whitespace. Nothing is yielded when root itself, or any of its
// ancestors, is skippable; this keeps a subtree inserted inside an
// annotation or a <script> from being matched.
//
// The sequence reads the live tree. Callers that mutate leaves must collect
// the sequence first.
func (w *Walker) Leaves(root *html.Node) iter.Seq[*html.Node] {
	return func(yield func(*html.Node) bool) {
		if root == nil || w.excluded(root) {
			return
		}
		w.walk(root, yield)
	}
}

func (w *Walker) walk(n *html.Node, yield func(*html.Node) bool) bool {
	switch n.Type {
	case html.TextNode:
		if strings.TrimSpace(n.Data) == "" {
			return true
		}
		return yield(n)
	case html.ElementNode:
		if w.Skippable(n) {
			return true
		}
	case html.DocumentNode:
	default:
		return true
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !w.walk(c, yield) {
			return false
		}
	}
	return true
}

func (w *Walker) excluded(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && w.Skippable(p) {
			return true
		}
	}
	return false
}

// Skippable reports whether the element n and everything under it is skipped
func (w *Walker) Skippable(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if defaultSkip[n.DataAtom] || w.extra[n.Data] {
		return true
	}
	if dom.IsAnnotation(n) {
		return true
	}
	if v, ok := dom.Attr(n, "contenteditable"); ok && v != "false" {
		return true
	}
	return w.skipHidden && hidden(n)
}

func hidden(n *html.Node) bool {
	if _, ok := dom.Attr(n, "hidden"); ok {
		return true
	}
	if v, ok := dom.Attr(n, "aria-hidden"); ok && v == "true" {
		return true
	}
	style, ok := dom.Attr(n, "style")
	if !ok {
		return false
	}
	for _, decl := range strings.Split(style, ";") {
		prop, val, found := strings.Cut(decl, ":")
		if !found {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		val = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(val), "!important")))
		switch prop {
		case "display":
			if val == "none" {
				return true
			}
		case "visibility":
			if val == "hidden" || val == "collapse" {
				return true
			}
		case "width", "height", "max-width", "max-height":
			if zeroLength(val) {
				return true
			}
		}
	}
	return false
}

func zeroLength(val string) bool {
	val = strings.TrimSpace(val)
	for _, unit := range []string{"px", "em", "rem", "%", "vh", "vw"} {
		if strings.HasSuffix(val, unit) {
			val = strings.TrimSuffix(val, unit)
			break
		}
	}
	return strings.Trim(val, "0.") == "" && val != ""
}
