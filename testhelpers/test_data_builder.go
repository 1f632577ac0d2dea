package testhelpers

import (
	"fmt"
	"html"
	"strings"

	"github.com/standardbeagle/lexmark/internal/vocab"
)

// VocabBuilder assembles vocabulary snapshots in the provider's raw shape
type VocabBuilder struct {
	snap vocab.Snapshot
}

// NewVocabBuilder creates an empty snapshot builder
func NewVocabBuilder() *VocabBuilder {
	return &VocabBuilder{snap: vocab.Snapshot{}}
}

// Word adds a single-word entry
func (b *VocabBuilder) Word(text, translation string, count int) *VocabBuilder {
	return b.add(text, translation, vocab.CategoryWord, count, "")
}

// Phrase adds a multi-word entry
func (b *VocabBuilder) Phrase(text, translation string, count int) *VocabBuilder {
	return b.add(text, translation, vocab.CategoryPhrase, count, "")
}

// Sentence adds an entry the index never matches
func (b *VocabBuilder) Sentence(text, translation string, count int) *VocabBuilder {
	return b.add(text, translation, vocab.CategorySentence, count, "")
}

// WithPOS adds a word with a part-of-speech tag
func (b *VocabBuilder) WithPOS(text, translation, pos string, count int) *VocabBuilder {
	return b.add(text, translation, vocab.CategoryWord, count, pos)
}

// Raw adds an arbitrary, possibly malformed, entry
func (b *VocabBuilder) Raw(text string, fields map[string]any) *VocabBuilder {
	b.snap[text] = fields
	return b
}

func (b *VocabBuilder) add(text, translation string, cat vocab.Category, count int, pos string) *VocabBuilder {
	fields := map[string]any{
		"translation": translation,
		"type":        string(cat),
		"count":       count,
	}
	if pos != "" {
		fields["partOfSpeech"] = pos
	}
	b.snap[text] = fields
	return b
}

// Snapshot returns a copy of the built snapshot
func (b *VocabBuilder) Snapshot() vocab.Snapshot {
	out := make(vocab.Snapshot, len(b.snap))
	for k, v := range b.snap {
		out[k] = v
	}
	return out
}

// Provider returns a static provider over the snapshot
func (b *VocabBuilder) Provider() *vocab.StaticProvider {
	return vocab.NewStaticProvider(b.Snapshot())
}

// PageBuilder assembles HTML documents for engine tests
type PageBuilder struct {
	head strings.Builder
	body strings.Builder
}

// NewPageBuilder creates an empty page
func NewPageBuilder() *PageBuilder {
	return &PageBuilder{}
}

// Title sets the document title
func (p *PageBuilder) Title(s string) *PageBuilder {
	fmt.Fprintf(&p.head, "<title>%s</title>", html.EscapeString(s))
	return p
}

// Paragraph appends an escaped <p>
func (p *PageBuilder) Paragraph(text string) *PageBuilder {
	fmt.Fprintf(&p.body, "<p>%s</p>", html.EscapeString(text))
	return p
}

// Paragraphs appends n numbered paragraphs built from text
func (p *PageBuilder) Paragraphs(n int, text string) *PageBuilder {
	for i := 0; i < n; i++ {
		p.Paragraph(fmt.Sprintf("%d %s", i, text))
	}
	return p
}

// Script appends a script element whose body must never be annotated
func (p *PageBuilder) Script(code string) *PageBuilder {
	fmt.Fprintf(&p.body, "<script>%s</script>", code)
	return p
}

// RawHTML appends markup verbatim
func (p *PageBuilder) RawHTML(s string) *PageBuilder {
	p.body.WriteString(s)
	return p
}

// HTML renders the full document
func (p *PageBuilder) HTML() string {
	return "<!DOCTYPE html><html><head>" + p.head.String() + "</head><body>" + p.body.String() + "</body></html>"
}
