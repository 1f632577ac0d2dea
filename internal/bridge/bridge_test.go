package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/standardbeagle/lexmark/internal/dom"
	"github.com/standardbeagle/lexmark/internal/host"
)

type recordingSink struct {
	batches [][]*html.Node
	during  func()
}

func (s *recordingSink) Enqueue(roots ...*html.Node) int {
	s.batches = append(s.batches, roots)
	if s.during != nil {
		s.during()
	}
	return len(roots)
}

func setup(t *testing.T) (*dom.Document, *host.Loop, *Bridge, *recordingSink, *html.Node) {
	t.Helper()
	loop := host.NewLoop()
	t.Cleanup(loop.Close)
	doc, err := dom.ParseString("<div id=main></div>", loop)
	require.NoError(t, err)
	sink := &recordingSink{}
	b := New(doc, sink)
	return doc, loop, b, sink, dom.FindElement(doc.Root(), atom.Div)
}

func TestBridge_DistinctRootsPerBatch(t *testing.T) {
	doc, loop, b, sink, div := setup(t)
	b.Start()

	p, q := dom.Element(atom.P), dom.Element(atom.P)
	require.NoError(t, doc.AppendChild(div, p))
	require.NoError(t, doc.AppendChild(div, q))
	// moving p records it as added again
	require.NoError(t, doc.RemoveChild(div, p))
	require.NoError(t, doc.AppendChild(div, p))
	loop.Drain()

	require.Len(t, sink.batches, 1)
	assert.Equal(t, []*html.Node{p, q}, sink.batches[0])
	assert.Equal(t, int64(2), b.GetStats().Roots)
}

func TestBridge_DetachedRootsDroppedAndReported(t *testing.T) {
	doc, loop, b, sink, div := setup(t)
	var removed []*html.Node
	b.OnRemoved(func(n *html.Node) { removed = append(removed, n) })
	b.Start()

	p := dom.Element(atom.P)
	require.NoError(t, doc.AppendChild(div, p))
	require.NoError(t, doc.RemoveChild(div, p))
	loop.Drain()

	assert.Empty(t, sink.batches)
	assert.Equal(t, []*html.Node{p}, removed)
}

func TestBridge_OwnWritesAreNotObserved(t *testing.T) {
	doc, loop, b, sink, div := setup(t)
	b.Start()

	b.Suspend()
	b.Suspend()
	require.NoError(t, doc.AppendChild(div, dom.Text("engine write")))
	b.Resume()
	assert.True(t, b.Suspended())
	require.NoError(t, doc.AppendChild(div, dom.Element(atom.Span)))
	b.Resume()
	assert.False(t, b.Suspended())

	loop.Drain()
	assert.Empty(t, sink.batches)
	assert.Equal(t, int64(1), b.GetStats().Suspensions)
}

func TestBridge_CoalescesRecordsAcrossSuspension(t *testing.T) {
	doc, loop, b, sink, div := setup(t)
	b.Start()

	// the page adds content, then the engine starts a write batch before
	// the observer's delivery task runs
	p1, p2 := dom.Element(atom.P), dom.Element(atom.P)
	require.NoError(t, doc.AppendChild(div, p1))
	require.NoError(t, doc.AppendChild(div, p2))

	b.Suspend()
	require.NoError(t, doc.AppendChild(div, dom.Text("engine write")))
	b.Resume()

	require.Len(t, sink.batches, 1)
	assert.Equal(t, []*html.Node{p1, p2}, sink.batches[0])
	assert.Equal(t, int64(2), b.GetStats().Coalesced)

	loop.Drain()
	assert.Len(t, sink.batches, 1, "stale delivery task finds nothing")
}

func TestBridge_EnqueueRunsSuspended(t *testing.T) {
	doc, loop, b, sink, div := setup(t)
	b.Start()

	sink.during = func() {
		assert.True(t, b.Suspended())
		// a sink that writes synchronously must not trigger itself
		_ = doc.AppendChild(div, dom.Element(atom.Span))
	}
	require.NoError(t, doc.AppendChild(div, dom.Element(atom.P)))
	loop.Drain()
	loop.Drain()

	assert.Len(t, sink.batches, 1)
}

func TestBridge_StopDropsPending(t *testing.T) {
	doc, loop, b, sink, div := setup(t)
	b.Start()
	assert.True(t, b.Running())

	require.NoError(t, doc.AppendChild(div, dom.Element(atom.P)))
	b.Suspend()
	b.Stop()
	b.Resume()
	loop.Drain()
	assert.Empty(t, sink.batches)

	require.NoError(t, doc.AppendChild(div, dom.Element(atom.P)))
	loop.Drain()
	assert.Empty(t, sink.batches)
	assert.False(t, b.Running())
}

func TestBridge_SubtreeBuiltAfterAttachIsOneRoot(t *testing.T) {
	doc, loop, b, sink, div := setup(t)
	var added []*html.Node
	b.OnAdded(func(n *html.Node) { added = append(added, n) })
	b.Start()

	section := dom.Element(atom.Section)
	require.NoError(t, doc.AppendChild(div, section))
	inner := dom.Element(atom.P)
	require.NoError(t, doc.AppendChild(section, inner))
	require.NoError(t, doc.AppendChild(inner, dom.Text("late text")))
	loop.Drain()

	require.Len(t, sink.batches, 1)
	assert.Equal(t, []*html.Node{section}, sink.batches[0])
	assert.Equal(t, []*html.Node{section}, added)
	assert.Equal(t, int64(1), b.GetStats().Roots)
}

func TestOutermost(t *testing.T) {
	a, b, c := dom.Element(atom.Div), dom.Element(atom.P), dom.Element(atom.Span)
	a.AppendChild(b)
	b.AppendChild(c)
	other := dom.Element(atom.Ul)

	assert.Equal(t, []*html.Node{a, other}, outermost([]*html.Node{c, a, b, other}))
	assert.Equal(t, []*html.Node{c}, outermost([]*html.Node{c}))
}
