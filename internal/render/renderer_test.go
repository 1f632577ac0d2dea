package render

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/standardbeagle/lexmark/internal/dictionary"
	"github.com/standardbeagle/lexmark/internal/dom"
	lexerrors "github.com/standardbeagle/lexmark/internal/errors"
	"github.com/standardbeagle/lexmark/internal/match"
	"github.com/standardbeagle/lexmark/internal/vocab"
)

func testIndex() *dictionary.Index {
	return dictionary.Build([]vocab.Entry{
		{Key: "hello", Category: vocab.CategoryWord, Translation: "你好", PartOfSpeech: "int.", UsageCount: 5},
		{Key: "take off", Category: vocab.CategoryPhrase, Translation: "起飞", UsageCount: 3},
	}, 10)
}

func setup(t *testing.T, src string) (*dom.Document, *Renderer, *html.Node) {
	t.Helper()
	doc, err := dom.ParseString(src, nil)
	require.NoError(t, err)
	r := New(doc, NewAnnotationPool(10))
	seq := 0
	r.newID = func() string { seq++; return fmt.Sprintf("id-%d", seq) }
	return doc, r, dom.FindElement(doc.Root(), atom.P)
}

func TestApply_ScenarioA(t *testing.T) {
	doc, r, p := setup(t, "<p>Hello there, hello!</p>")
	leaf := p.FirstChild

	n, err := r.Apply(leaf, match.Leaf(leaf.Data, testIndex(), nil))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Nil(t, leaf.Parent)

	got := renderNode(t, p)
	assert.Equal(t, `<p>`+
		`<span class="lexmark lexmark-word" data-lexmark-id="id-1" data-lexmark-key="hello" data-lexmark-translation="你好" data-lexmark-count="5" data-lexmark-pos="int." data-lexmark-state="visible">Hello</span>`+
		` there, `+
		`<span class="lexmark lexmark-word" data-lexmark-id="id-2" data-lexmark-key="hello" data-lexmark-translation="你好" data-lexmark-count="5" data-lexmark-pos="int." data-lexmark-state="visible">hello</span>`+
		`!</p>`, got)

	assert.Equal(t, 2, r.Registry().Len())
	a, ok := r.Registry().Get(p.FirstChild)
	require.True(t, ok)
	assert.Equal(t, "Hello", a.Text)
	assert.Equal(t, "hello", a.Entry.Key)
	assert.Equal(t, "Hello there, hello!", dom.TextContent(doc.Body()))
}

func TestApply_NoMatchLeavesLeafIdentical(t *testing.T) {
	_, r, p := setup(t, "<p>nothing to see</p>")
	leaf := p.FirstChild

	n, err := r.Apply(leaf, match.Leaf(leaf.Data, testIndex(), nil))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Same(t, leaf, p.FirstChild)
	assert.Nil(t, leaf.NextSibling)
}

func TestApply_StaleAndDetached(t *testing.T) {
	_, r, p := setup(t, "<p>hello</p>")
	leaf := p.FirstChild
	plan := match.Leaf("hello", testIndex(), nil)

	leaf.Data = "goodbye"
	_, err := r.Apply(leaf, plan)
	assert.ErrorIs(t, err, ErrStale)
	assert.True(t, lexerrors.IsRenderError(err))

	_, err = r.Apply(dom.Text("hello"), plan)
	assert.ErrorIs(t, err, ErrDetached)
	assert.Zero(t, r.Registry().Len())
}

type failingTree struct{ Tree }

func (failingTree) ReplaceChild(parent, old *html.Node, replacements ...*html.Node) error {
	return errors.New("swap refused")
}

func TestApply_SwapFailureReleasesRecords(t *testing.T) {
	doc, err := dom.ParseString("<p>hello hello</p>", nil)
	require.NoError(t, err)
	pool := NewAnnotationPool(10)
	r := New(failingTree{doc}, pool)
	p := dom.FindElement(doc.Root(), atom.P)
	leaf := p.FirstChild

	_, err = r.Apply(leaf, match.Leaf(leaf.Data, testIndex(), nil))
	require.Error(t, err)
	assert.True(t, lexerrors.IsRenderError(err))
	assert.Same(t, leaf, p.FirstChild)
	assert.Equal(t, 2, pool.Retained())
	assert.Zero(t, r.Registry().Len())
}

func TestUnwrap_RoundTrip(t *testing.T) {
	src := "<p>The plane will take off soon. Hello!</p>"
	doc, r, p := setup(t, src)
	before := renderNode(t, doc.Root())
	leaf := p.FirstChild

	var removed []*Annotation
	r.SetHooks(Hooks{Removed: func(a *Annotation) { removed = append(removed, a) }})

	n, err := r.Apply(leaf, match.Leaf(leaf.Data, testIndex(), nil))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	got, err := r.Unwrap(doc.Root())
	require.NoError(t, err)
	assert.Equal(t, 2, got)
	assert.Len(t, removed, 2)
	assert.Zero(t, r.Registry().Len())

	// text merged back into a single leaf
	require.NotNil(t, p.FirstChild)
	assert.Nil(t, p.FirstChild.NextSibling)
	assert.Equal(t, before, renderNode(t, doc.Root()))
}

func TestUnwrap_ForeignAnnotationsAndRoot(t *testing.T) {
	doc, r, p := setup(t, `<p>a <span data-lexmark-id="x">b</span> c</p>`)
	ann := dom.FindElement(p, atom.Span)

	n, err := r.Unwrap(ann)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "a b c", p.FirstChild.Data)
	assert.Equal(t, "<p>a b c</p>", renderNode(t, p))
	assert.Equal(t, "a b c", dom.TextContent(doc.Body()))
}

func TestRenderer_PoolReuseAndPrune(t *testing.T) {
	doc, r, p := setup(t, "<p>hello</p><div>hello</div>")
	pool := r.pool

	_, err := r.Apply(p.FirstChild, match.Leaf("hello", testIndex(), nil))
	require.NoError(t, err)
	_, err = r.Unwrap(p)
	require.NoError(t, err)
	assert.Equal(t, 1, pool.Retained())

	div := dom.FindElement(doc.Root(), atom.Div)
	var created *Annotation
	r.SetHooks(Hooks{Created: func(a *Annotation) { created = a }})
	_, err = r.Apply(div.FirstChild, match.Leaf("hello", testIndex(), nil))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pool.GetStats().Reuses)
	require.NotNil(t, created)
	assert.Equal(t, StateVisible, created.State)

	assert.True(t, r.SetState(created, StateDeferred))
	assert.False(t, r.SetState(created, StateDeferred))
	v, _ := dom.Attr(created.Node, dom.AttrState)
	assert.Equal(t, "deferred", v)

	require.NoError(t, doc.RemoveChild(div.Parent, div))
	assert.Equal(t, 1, r.Prune(div))
	assert.Zero(t, r.Registry().Len())
	assert.Equal(t, 0, r.Prune(div))
}

func renderNode(t *testing.T, n *html.Node) string {
	t.Helper()
	var sb strings.Builder
	require.NoError(t, html.Render(&sb, n))
	return sb.String()
}

func TestRenderer_AdoptRebuildsPrunedRecords(t *testing.T) {
	doc, r, p := setup(t, "<p>Hello, take off</p>")
	_, err := r.Apply(p.FirstChild, match.Leaf("Hello, take off", testIndex(), nil))
	require.NoError(t, err)
	require.NoError(t, doc.RemoveChild(p.Parent, p))
	require.Equal(t, 2, r.Prune(p))

	var created []*Annotation
	r.SetHooks(Hooks{Created: func(a *Annotation) { created = append(created, a) }})
	assert.Equal(t, 2, r.Adopt(p))
	assert.Equal(t, 0, r.Adopt(p), "known annotations are left alone")
	assert.Equal(t, 2, r.Registry().Len())
	require.Len(t, created, 2)

	hello, ok := r.Registry().Get(dom.FindElement(p, atom.Span))
	require.True(t, ok)
	assert.Equal(t, "id-1", hello.ID)
	assert.Equal(t, "Hello", hello.Text)
	assert.Equal(t, vocab.Entry{Key: "hello", Category: vocab.CategoryWord, Translation: "你好", PartOfSpeech: "int.", UsageCount: 5}, hello.Entry)
	assert.Equal(t, StateVisible, hello.State)

	phrase := created[1]
	assert.Equal(t, vocab.CategoryPhrase, phrase.Entry.Category)
	assert.Equal(t, "起飞", phrase.Entry.Translation)
}

func TestRenderer_AdoptForeignMarkup(t *testing.T) {
	_, r, p := setup(t, `<p><span data-lexmark-id="x" data-lexmark-key="ice cream" data-lexmark-state="deferred">Ice  cream</span></p>`)

	require.Equal(t, 1, r.Adopt(p))
	a, ok := r.Registry().Get(p.FirstChild)
	require.True(t, ok)
	assert.Equal(t, vocab.CategoryPhrase, a.Entry.Category, "inferred from the key without a category class")
	assert.Equal(t, StateDeferred, a.State)
	assert.Zero(t, a.Entry.UsageCount)
}

func TestTruncate_CutsOnRuneBoundary(t *testing.T) {
	assert.Equal(t, "short", truncate("short"))

	s := strings.Repeat("a", 39) + "你好世界"
	got := truncate(s)
	assert.Equal(t, strings.Repeat("a", 39)+"...", got)
	assert.True(t, utf8.ValidString(got))
}
