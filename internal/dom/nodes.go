package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Annotation markup. Every component recognizes an annotation by AttrID,
// never by class, since page stylesheets may reuse class names.
const (
	AnnotationClass = "lexmark"

	AttrID          = "data-lexmark-id"
	AttrKey         = "data-lexmark-key"
	AttrTranslation = "data-lexmark-translation"
	AttrCount       = "data-lexmark-count"
	AttrPOS         = "data-lexmark-pos"
	AttrState       = "data-lexmark-state"
)

// IsAnnotation reports whether n is an annotation element
func IsAnnotation(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	_, ok := Attr(n, AttrID)
	return ok
}

// AnnotationAncestor returns n itself or its nearest annotation ancestor
func AnnotationAncestor(n *html.Node) *html.Node {
	for p := n; p != nil; p = p.Parent {
		if IsAnnotation(p) {
			return p
		}
	}
	return nil
}

// Attr returns the value of attribute key on n
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or adds attribute key on n. Attribute writes are not
// child-list mutations and are not reported to observers.
func SetAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// FindElement returns the first element with the given atom in document order
func FindElement(root *html.Node, a atom.Atom) *html.Node {
	if root == nil {
		return nil
	}
	if root.Type == html.ElementNode && root.DataAtom == a {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if found := FindElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

// TextContent concatenates every text node under n
func TextContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// Text creates a detached text node
func Text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// Element creates a detached element with the given attributes as key/value pairs
func Element(a atom.Atom, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}
