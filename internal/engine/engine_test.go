package engine

import (
	"context"
	"errors"
	"io"
	"log"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/standardbeagle/lexmark/internal/click"
	"github.com/standardbeagle/lexmark/internal/config"
	"github.com/standardbeagle/lexmark/internal/dictionary"
	"github.com/standardbeagle/lexmark/internal/dom"
	"github.com/standardbeagle/lexmark/internal/host"
	"github.com/standardbeagle/lexmark/internal/vocab"
	"github.com/standardbeagle/lexmark/testhelpers"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	e        *Engine
	loop     *host.Loop
	doc      *dom.Document
	provider *vocab.StaticProvider
	original string
}

func quiet() Option {
	return WithLogger(log.New(io.Discard, "", 0))
}

func newHarness(t *testing.T, page string, vb *testhelpers.VocabBuilder, cfg *config.Config, opts ...Option) *harness {
	t.Helper()
	loop := host.NewLoop()
	t.Cleanup(loop.Close)

	doc, err := dom.ParseString(page, loop)
	require.NoError(t, err)

	if cfg == nil {
		cfg = testhelpers.NewTestConfigBuilder(t.TempDir()).Build()
	}
	provider := vb.Provider()
	e, err := New(doc, loop, provider, cfg, append([]Option{quiet()}, opts...)...)
	require.NoError(t, err)

	return &harness{e: e, loop: loop, doc: doc, provider: provider, original: doc.String()}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.e.Start(context.Background()))
	h.loop.Drain()
}

func scenarioVocab() *testhelpers.VocabBuilder {
	return testhelpers.NewVocabBuilder().
		Word("hello", "你好", 5).
		Phrase("take off", "起飞", 3).
		Word("off", "离开", 10).
		Sentence("how are you", "你好吗", 40)
}

func scenarioPage() string {
	return testhelpers.NewPageBuilder().
		Title("hello title").
		Paragraph("Hello there, hello!").
		Paragraph("The plane will take off soon.").
		Script("hello()").
		HTML()
}

func annotationKeys(root *html.Node) []string {
	var keys []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if dom.IsAnnotation(n) {
			k, _ := dom.Attr(n, dom.AttrKey)
			keys = append(keys, k)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return keys
}

func nestedAnnotations(root *html.Node) int {
	nested := 0
	var walk func(*html.Node, bool)
	walk = func(n *html.Node, inside bool) {
		ann := dom.IsAnnotation(n)
		if ann && inside {
			nested++
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inside || ann)
		}
	}
	walk(root, false)
	return nested
}

var idAttr = regexp.MustCompile(`data-lexmark-id="[^"]*"`)

func structure(doc *dom.Document) string {
	return idAttr.ReplaceAllString(doc.String(), `data-lexmark-id=""`)
}

func TestEngine_InitialScan(t *testing.T) {
	h := newHarness(t, scenarioPage(), scenarioVocab(), nil)
	h.start(t)

	assert.Equal(t, []string{"hello", "hello", "take off"}, annotationKeys(h.doc.Root()))
	assert.Contains(t, h.doc.String(), "<script>hello()</script>")
	assert.Contains(t, h.doc.String(), "<title>hello title</title>")

	st := h.e.Stats()
	assert.Equal(t, 3, st.Live)
	assert.Equal(t, 3, st.Entries, "sentences are not indexed")
	assert.NotZero(t, st.Generation)
	assert.Equal(t, int64(0), st.Scheduler.Incremental)
	assert.Equal(t, int64(0), st.Bridge.Roots, "own writes must not come back as work")
}

func TestEngine_IncrementalSubtreeIsOneUnit(t *testing.T) {
	h := newHarness(t, scenarioPage(), scenarioVocab(), nil)
	h.start(t)
	before := h.e.Stats()

	p := dom.Element(atom.P)
	p.AppendChild(dom.Text("hello again"))
	require.NoError(t, h.doc.AppendChild(h.doc.Body(), p))
	h.loop.Drain()

	after := h.e.Stats()
	assert.Equal(t, int64(1), after.Scheduler.Incremental)
	assert.Equal(t, before.Scheduler.Submitted+1, after.Scheduler.Submitted)
	assert.Equal(t, before.Scheduler.Leaves+1, after.Scheduler.Leaves, "only the new subtree is scanned")
	assert.Equal(t, before.Live+1, after.Live)
	assert.Equal(t, int64(1), after.Bridge.Roots)
	require.NotNil(t, p.FirstChild)
	assert.True(t, dom.IsAnnotation(p.FirstChild))
}

func TestEngine_InsertedIntoAnnotationIsIgnored(t *testing.T) {
	h := newHarness(t, scenarioPage(), scenarioVocab(), nil)
	h.start(t)

	ann := dom.FindElement(h.doc.Body(), atom.Span)
	require.NotNil(t, ann)
	require.True(t, dom.IsAnnotation(ann))

	require.NoError(t, h.doc.AppendChild(ann, dom.Text(" hello")))
	h.loop.Drain()

	assert.Zero(t, nestedAnnotations(h.doc.Root()))
}

func TestEngine_RemovedSubtreeIsPruned(t *testing.T) {
	h := newHarness(t, scenarioPage(), scenarioVocab(), nil)
	h.start(t)

	p := dom.FindElement(h.doc.Body(), atom.P)
	require.NoError(t, h.doc.RemoveChild(h.doc.Body(), p))
	h.loop.Drain()

	assert.Equal(t, 1, h.e.Stats().Live)
}

func TestEngine_MovedAnnotationStillActivates(t *testing.T) {
	h := newHarness(t, scenarioPage(), scenarioVocab(), nil)
	var got []click.Payload
	h.e.OnAnnotationActivated(func(p click.Payload) { got = append(got, p) })
	h.start(t)

	p := dom.FindElement(h.doc.Body(), atom.P)
	require.NoError(t, h.doc.RemoveChild(h.doc.Body(), p))
	h.loop.Drain()
	require.Equal(t, 1, h.e.Stats().Live)

	require.NoError(t, h.doc.AppendChild(h.doc.Body(), p))
	h.loop.Drain()
	h.e.tracker.Recompute()

	st := h.e.Stats()
	assert.Equal(t, 3, st.Live)
	assert.Equal(t, 3, st.Visibility.Tracked)
	assert.Len(t, annotationKeys(h.doc.Root()), 3)
	assert.Zero(t, nestedAnnotations(h.doc.Root()))

	ann := dom.FindElement(p, atom.Span)
	require.NotNil(t, ann)
	h.doc.Dispatch(&dom.Event{Type: click.EventType, Target: ann.FirstChild})
	require.Len(t, got, 1)
	assert.Equal(t, "Hello", got[0].Word)
	assert.Equal(t, "你好", got[0].Translation)
	assert.Equal(t, 5, got[0].UsageCount)
}

func TestEngine_SubtreeFilledAfterAttachIsOneUnit(t *testing.T) {
	h := newHarness(t, scenarioPage(), scenarioVocab(), nil)
	h.start(t)
	before := h.e.Stats()

	div := dom.Element(atom.Div)
	require.NoError(t, h.doc.AppendChild(h.doc.Body(), div))
	p := dom.Element(atom.P)
	require.NoError(t, h.doc.AppendChild(div, p))
	require.NoError(t, h.doc.AppendChild(p, dom.Text("hello late")))
	h.loop.Drain()

	after := h.e.Stats()
	assert.Equal(t, int64(1), after.Scheduler.Incremental)
	assert.Equal(t, before.Scheduler.Leaves+1, after.Scheduler.Leaves, "the new leaf is walked once")
	assert.Equal(t, before.Live+1, after.Live)
}

func TestEngine_ActivationDebounced(t *testing.T) {
	now := time.Unix(5000, 0)
	clock := func() time.Time { return now }
	h := newHarness(t, scenarioPage(), scenarioVocab(), nil, WithClock(clock))

	var got []click.Payload
	h.e.OnAnnotationActivated(func(p click.Payload) { got = append(got, p) })
	h.start(t)

	ann := dom.FindElement(h.doc.Body(), atom.Span)
	require.NotNil(t, ann)
	fire := func() { h.doc.Dispatch(&dom.Event{Type: click.EventType, Target: ann.FirstChild}) }

	fire()
	now = now.Add(120 * time.Millisecond)
	fire()
	require.Len(t, got, 1)
	assert.Equal(t, "Hello", got[0].Word)
	assert.Equal(t, "你好", got[0].Translation)
	assert.Equal(t, 5, got[0].UsageCount)

	now = now.Add(400 * time.Millisecond)
	fire()
	assert.Len(t, got, 2)

	st := h.e.Stats()
	assert.Equal(t, int64(2), st.Activations)
	assert.Equal(t, int64(1), st.Suppressed)
}

func TestEngine_RehighlightIsIdempotent(t *testing.T) {
	h := newHarness(t, scenarioPage(), scenarioVocab(), nil)
	h.start(t)
	first := structure(h.doc)

	for i := 0; i < 3; i++ {
		require.NoError(t, h.e.Rehighlight(context.Background()))
		h.loop.Drain()
		assert.Equal(t, first, structure(h.doc))
	}
	assert.Zero(t, nestedAnnotations(h.doc.Root()))
	assert.Equal(t, 3, h.e.Stats().Live)
	assert.Equal(t, int64(4), h.e.Stats().Scheduler.Passes)
}

func TestEngine_RehighlightPicksUpNewVocabulary(t *testing.T) {
	h := newHarness(t, scenarioPage(), scenarioVocab(), nil)
	h.start(t)
	gen := h.e.Stats().Generation

	h.provider.Set(testhelpers.NewVocabBuilder().Word("plane", "飞机", 2).Snapshot())
	require.NoError(t, h.e.Rehighlight(context.Background()))
	h.loop.Drain()

	assert.Equal(t, []string{"plane"}, annotationKeys(h.doc.Root()))
	assert.Greater(t, h.e.Stats().Generation, gen)
	assert.Equal(t, 1, h.e.Stats().Live)
}

func TestEngine_OlderRequestNeverOverwritesNewer(t *testing.T) {
	h := newHarness(t, scenarioPage(), scenarioVocab(), nil)
	h.start(t)

	newer := dictionary.Build([]vocab.Entry{{Key: "plane", Category: vocab.CategoryWord, Translation: "飞机"}}, 0)
	older := dictionary.Build([]vocab.Entry{{Key: "soon", Category: vocab.CategoryWord, Translation: "很快"}}, 0)
	h.e.install(10, newer)
	h.e.install(9, older)
	h.loop.Drain()

	assert.Equal(t, newer.Generation(), h.e.Stats().Generation)
	assert.Equal(t, []string{"plane"}, annotationKeys(h.doc.Root()))
}

func TestEngine_DisposeRestoresDocument(t *testing.T) {
	h := newHarness(t, scenarioPage(), scenarioVocab(), nil)
	h.start(t)
	require.NotEqual(t, h.original, h.doc.String())

	require.NoError(t, h.e.Dispose())
	h.loop.Drain()

	assert.Equal(t, h.original, h.doc.String())
	assert.Zero(t, h.doc.Listeners())
	assert.Zero(t, h.e.Stats().Live)
	assert.Zero(t, h.e.Stats().Pool.Retained)

	// the page keeps changing; nothing reacts
	p := dom.Element(atom.P)
	p.AppendChild(dom.Text("hello"))
	require.NoError(t, h.doc.AppendChild(h.doc.Body(), p))
	h.loop.Drain()
	assert.Empty(t, annotationKeys(h.doc.Root()))

	assert.ErrorIs(t, h.e.Rehighlight(context.Background()), ErrDisposed)
	assert.NoError(t, h.e.Dispose(), "second dispose is a no-op")
}

func TestEngine_TextRoundTrip(t *testing.T) {
	page := testhelpers.NewPageBuilder().
		Paragraph("Take off, then take  off again; OFF we go.").
		RawHTML("<ul><li>hello <b>hello</b> world</li><li>c'est hello-ish</li></ul>").
		HTML()
	h := newHarness(t, page, scenarioVocab(), nil)
	plain := dom.TextContent(h.doc.Body())
	h.start(t)

	assert.NotZero(t, h.e.Stats().Live)
	assert.Equal(t, plain, dom.TextContent(h.doc.Body()), "annotating never changes the text")

	require.NoError(t, h.e.Dispose())
	assert.Equal(t, plain, dom.TextContent(h.doc.Body()))
	assert.Equal(t, h.original, h.doc.String())
}

func TestEngine_BatchesYieldBetweenTicks(t *testing.T) {
	cfg := testhelpers.NewTestConfigBuilder(t.TempDir()).WithBatchSize(2).Build()
	page := testhelpers.NewPageBuilder().Paragraphs(10, "hello world").HTML()
	h := newHarness(t, page, scenarioVocab(), cfg)

	require.NoError(t, h.e.Start(context.Background()))
	ran := h.loop.Drain()

	// attach task, then one task per batch of two
	assert.GreaterOrEqual(t, ran, 6)
	assert.Equal(t, int64(5), h.e.Stats().Scheduler.Batches)
	assert.Equal(t, 10, h.e.Stats().Live)
}

func TestEngine_VisibilityClassification(t *testing.T) {
	cfg := testhelpers.NewTestConfigBuilder(t.TempDir()).WithViewport(100, 0).Build()
	page := testhelpers.NewPageBuilder().Paragraphs(50, "hello world").HTML()
	h := newHarness(t, page, scenarioVocab(), cfg)
	h.start(t)

	h.e.tracker.Recompute()
	vis := h.e.Stats().Visibility
	assert.Equal(t, 50, vis.Tracked)
	assert.Equal(t, 50, vis.Visible+vis.Deferred)
	assert.Greater(t, vis.Deferred, vis.Visible)

	h.e.ViewportChanged(h.e.tracker.Viewport())
	assert.Contains(t, h.doc.String(), `data-lexmark-state="deferred"`)
}

func TestEngine_PressureClearsCachesOnly(t *testing.T) {
	h := newHarness(t, scenarioPage(), scenarioVocab(), nil)
	h.start(t)

	h.e.Pressure()
	st := h.e.Stats()
	assert.Equal(t, int64(1), st.Scheduler.Clears)
	assert.Zero(t, st.Scheduler.MatcherCache.Size)
	assert.Equal(t, 3, st.Live)
}

func TestEngine_StartErrors(t *testing.T) {
	h := newHarness(t, scenarioPage(), scenarioVocab(), nil)
	h.start(t)
	assert.ErrorIs(t, h.e.Start(context.Background()), ErrStarted)

	loop := host.NewLoop()
	defer loop.Close()
	doc, err := dom.ParseString(scenarioPage(), loop)
	require.NoError(t, err)

	boom := errors.New("storage unavailable")
	e, err := New(doc, loop, vocab.ProviderFunc(func(context.Context) (vocab.Snapshot, error) {
		return nil, boom
	}), nil, quiet())
	require.NoError(t, err)
	assert.ErrorIs(t, e.Start(context.Background()), boom)
	assert.Zero(t, loop.Drain())
}

func TestEngine_MalformedEntriesAreSkipped(t *testing.T) {
	vb := scenarioVocab().Raw("broken", map[string]any{"count": "many"})
	h := newHarness(t, scenarioPage(), vb, nil)
	h.start(t)

	assert.Equal(t, 3, h.e.Stats().Entries)
}

func TestEngine_MetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := newHarness(t, scenarioPage(), scenarioVocab(), nil, WithRegisterer(reg))
	h.start(t)

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	joined := strings.Join(names, ",")
	assert.Contains(t, joined, "lexmark_units_total")
	assert.Contains(t, joined, "lexmark_rehighlights_total")
	assert.Contains(t, joined, "lexmark_annotations_live")

	_, err = New(h.doc, h.loop, h.provider, nil, quiet(), WithRegisterer(reg))
	assert.Error(t, err, "collectors register once per registry")
}
