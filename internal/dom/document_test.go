package dom

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/standardbeagle/lexmark/internal/host"
)

func parse(t *testing.T, src string) (*Document, *host.Loop) {
	t.Helper()
	loop := host.NewLoop()
	t.Cleanup(loop.Close)
	doc, err := ParseString(src, loop)
	require.NoError(t, err)
	return doc, loop
}

func TestDocument_ReplaceChildSplicesInPlace(t *testing.T) {
	doc, _ := parse(t, "<p>a<b>x</b>c</p>")
	p := FindElement(doc.Root(), atom.P)
	b := FindElement(p, atom.B)

	r1, r2 := Text("1"), Element(atom.I)
	require.NoError(t, doc.ReplaceChild(p, b, r1, r2))

	assert.Equal(t, "a1<i></i>c", renderChildren(p))
	assert.Nil(t, b.Parent)
	assert.Equal(t, r2, p.FirstChild.NextSibling.NextSibling)
	assert.Equal(t, p.LastChild.PrevSibling, r2)

	// replacing the first and last child keeps FirstChild/LastChild correct
	require.NoError(t, doc.ReplaceChild(p, p.FirstChild, Text("A")))
	require.NoError(t, doc.ReplaceChild(p, p.LastChild, Text("C")))
	assert.Equal(t, "A1<i></i>C", renderChildren(p))

	// empty replacement removes
	require.NoError(t, doc.ReplaceChild(p, r2))
	assert.Equal(t, "A1C", renderChildren(p))
}

func TestDocument_MutationErrors(t *testing.T) {
	doc, _ := parse(t, "<p>a</p><div></div>")
	p := FindElement(doc.Root(), atom.P)
	div := FindElement(doc.Root(), atom.Div)

	assert.ErrorIs(t, doc.AppendChild(div, p.FirstChild), ErrHasParent)
	assert.ErrorIs(t, doc.RemoveChild(div, p.FirstChild), ErrNotChild)
	assert.ErrorIs(t, doc.ReplaceChild(div, p.FirstChild, Text("x")), ErrNotChild)
	assert.ErrorIs(t, doc.InsertBefore(div, Text("x"), p.FirstChild), ErrNotChild)
	assert.ErrorIs(t, doc.SetText(p, "x"), ErrNotText)
	assert.ErrorIs(t, doc.ReplaceChild(p, p.FirstChild, div), ErrHasParent)
}

func TestObserver_BatchesDeliveryOnLoop(t *testing.T) {
	doc, loop := parse(t, "<div id=root></div>")
	div := FindElement(doc.Root(), atom.Div)

	var batches [][]MutationRecord
	obs := doc.NewObserver(func(recs []MutationRecord) { batches = append(batches, recs) })
	obs.Observe()
	obs.Observe()

	a, b := Text("a"), Element(atom.Span)
	require.NoError(t, doc.AppendChild(div, a))
	require.NoError(t, doc.InsertBefore(div, b, a))
	require.NoError(t, doc.SetText(a, "a2"))
	assert.Empty(t, batches, "delivery waits for the loop")

	loop.Drain()
	require.Len(t, batches, 1)
	recs := batches[0]
	require.Len(t, recs, 3)
	assert.Equal(t, []*html.Node{a}, recs[0].Added)
	assert.Equal(t, []*html.Node{b}, recs[1].Added)
	assert.Equal(t, a, recs[2].Target)
	assert.Empty(t, recs[2].Added)
}

func TestObserver_DisconnectDropsAndTakeRecordsKeeps(t *testing.T) {
	doc, loop := parse(t, "<div></div>")
	div := FindElement(doc.Root(), atom.Div)

	delivered := 0
	obs := doc.NewObserver(func(recs []MutationRecord) { delivered += len(recs) })
	obs.Observe()

	require.NoError(t, doc.AppendChild(div, Text("x")))
	taken := obs.TakeRecords()
	assert.Len(t, taken, 1)

	require.NoError(t, doc.AppendChild(div, Text("y")))
	obs.Disconnect()
	assert.False(t, obs.Connected())
	require.NoError(t, doc.AppendChild(div, Text("z")))

	loop.Drain()
	assert.Zero(t, delivered)

	obs.Observe()
	require.NoError(t, doc.RemoveChild(div, div.FirstChild))
	loop.Drain()
	assert.Equal(t, 1, delivered)
}

func TestDispatch_BubblesAndStops(t *testing.T) {
	doc, _ := parse(t, "<div><p><b>hi</b></p></div>")
	div := FindElement(doc.Root(), atom.Div)
	p := FindElement(div, atom.P)
	b := FindElement(p, atom.B)

	var seen []string
	doc.AddListener(div, "click", func(e *Event) {
		seen = append(seen, "div")
		assert.Equal(t, b.FirstChild, e.Target)
		assert.Equal(t, div, e.CurrentTarget)
	})
	pID := doc.AddListener(p, "click", func(e *Event) { seen = append(seen, "p") })
	doc.AddListener(p, "keydown", func(e *Event) { seen = append(seen, "key") })

	n := doc.Dispatch(&Event{Type: "click", Target: b.FirstChild})
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"p", "div"}, seen)

	assert.True(t, doc.RemoveListener(pID))
	assert.False(t, doc.RemoveListener(pID))
	assert.Equal(t, 2, doc.Listeners())

	seen = nil
	doc.AddListener(b, "click", func(e *Event) {
		seen = append(seen, "b")
		e.StopPropagation()
	})
	doc.Dispatch(&Event{Type: "click", Target: b})
	assert.Equal(t, []string{"b"}, seen)
}

func TestAnnotationMarkers(t *testing.T) {
	doc, _ := parse(t, `<p>x <span data-lexmark-id="1" class="lexmark"><i>hello</i></span></p>`)
	i := FindElement(doc.Root(), atom.I)

	ann := AnnotationAncestor(i.FirstChild)
	require.NotNil(t, ann)
	assert.True(t, IsAnnotation(ann))
	assert.False(t, IsAnnotation(i))
	assert.Nil(t, AnnotationAncestor(FindElement(doc.Root(), atom.P)))

	SetAttr(ann, AttrState, "visible")
	SetAttr(ann, AttrState, "deferred")
	v, ok := Attr(ann, AttrState)
	assert.True(t, ok)
	assert.Equal(t, "deferred", v)

	assert.Equal(t, "x hello", TextContent(doc.Body()))
	assert.True(t, doc.Contains(i))
	assert.False(t, doc.Contains(Text("x")))
}

func renderChildren(n *html.Node) string {
	var out string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			out += c.Data
			continue
		}
		var sb strings.Builder
		_ = html.Render(&sb, c)
		out += sb.String()
	}
	return out
}
