package visibility

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Rect is a vertical band of the page in CSS pixels
type Rect struct {
	Top    float64
	Height float64
}

// Bottom returns the lower edge
func (r Rect) Bottom() float64 {
	return r.Top + r.Height
}

// Geometry locates nodes on the page
type Geometry interface {
	// Bounds returns the vertical extent of n, or false if n is not laid out
	Bounds(n *html.Node) (top, bottom float64, ok bool)
	// Invalidate discards any layout computed before a tree change
	Invalidate()
}

var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Figure: true, atom.Footer: true, atom.Form: true, atom.H1: true,
	atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Li: true, atom.Main: true, atom.Nav: true,
	atom.Ol: true, atom.P: true, atom.Pre: true, atom.Section: true, atom.Table: true,
	atom.Tr: true, atom.Ul: true,
}

var unrendered = map[atom.Atom]bool{
	atom.Head: true, atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true,
}

type lineSpan struct {
	first, last int
}

// FlowGeometry estimates layout without a rendering engine: text flows in
// document order at CharsPerLine characters per line, and block elements
// start and end on their own lines.
type FlowGeometry struct {
	Root         *html.Node
	CharsPerLine int
	LineHeightPx float64

	lines map[*html.Node]lineSpan
}

// NewFlowGeometry creates an estimate over root
func NewFlowGeometry(root *html.Node, charsPerLine int, lineHeightPx float64) *FlowGeometry {
	if charsPerLine <= 0 {
		charsPerLine = 80
	}
	if lineHeightPx <= 0 {
		lineHeightPx = 20
	}
	return &FlowGeometry{Root: root, CharsPerLine: charsPerLine, LineHeightPx: lineHeightPx}
}

// Invalidate implements Geometry
func (g *FlowGeometry) Invalidate() {
	g.lines = nil
}

// Bounds implements Geometry
func (g *FlowGeometry) Bounds(n *html.Node) (float64, float64, bool) {
	if g.lines == nil {
		g.layout()
	}
	span, ok := g.lines[n]
	if !ok {
		return 0, 0, false
	}
	return float64(span.first) * g.LineHeightPx, float64(span.last+1) * g.LineHeightPx, true
}

func (g *FlowGeometry) layout() {
	g.lines = make(map[*html.Node]lineSpan)
	line, col := 0, 0
	breakLine := func() {
		if col > 0 {
			line++
			col = 0
		}
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		block := false
		if n.Type == html.ElementNode {
			if unrendered[n.DataAtom] {
				return
			}
			block = blockElements[n.DataAtom]
		}
		if block {
			breakLine()
		}
		first := line

		if n.Type == html.TextNode {
			words := strings.Fields(n.Data)
			if len(words) > 0 {
				col += utf8.RuneCountInString(strings.Join(words, " ")) + 1
				line += col / g.CharsPerLine
				col %= g.CharsPerLine
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		last := line
		if col == 0 && last > first {
			last--
		}
		g.lines[n] = lineSpan{first: first, last: last}
		if block {
			breakLine()
		}
	}
	if g.Root != nil {
		walk(g.Root)
	}
}
