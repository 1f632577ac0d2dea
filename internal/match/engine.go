// Package match finds vocabulary occurrences in a single run of text.
//
// Matching is longest-match-first: entries are tried in dictionary order
// (longest key, then most used) and an occurrence is accepted only if it does
// not overlap anything accepted before it. The result is independent of any
// content tree and has no side effects beyond the optional matcher cache.
package match

import (
	"sort"
	"strings"

	"github.com/standardbeagle/lexmark/internal/dictionary"
	"github.com/standardbeagle/lexmark/internal/vocab"
)

// Span is one accepted occurrence; Start and End are byte offsets into the leaf text
type Span struct {
	Start int
	End   int
	Entry vocab.Entry
}

// Segment is either an unmatched run of text or a matched span
type Segment struct {
	Text  string
	Match *Span // nil for plain text
}

// Result is the ordered, non-overlapping match plan for one leaf
type Result struct {
	Text  string
	Spans []Span
}

// Empty reports whether nothing matched
func (r Result) Empty() bool {
	return len(r.Spans) == 0
}

// Segments interleaves unmatched runs with matched spans, left to right.
// Concatenating every Segment.Text reproduces the input exactly.
func (r Result) Segments() []Segment {
	if len(r.Spans) == 0 {
		if r.Text == "" {
			return nil
		}
		return []Segment{{Text: r.Text}}
	}

	segs := make([]Segment, 0, 2*len(r.Spans)+1)
	pos := 0
	for i := range r.Spans {
		s := &r.Spans[i]
		if s.Start > pos {
			segs = append(segs, Segment{Text: r.Text[pos:s.Start]})
		}
		segs = append(segs, Segment{Text: r.Text[s.Start:s.End], Match: s})
		pos = s.End
	}
	if pos < len(r.Text) {
		segs = append(segs, Segment{Text: r.Text[pos:]})
	}
	return segs
}

// Plain returns the text with every matched span cut out
func (r Result) Plain() string {
	if len(r.Spans) == 0 {
		return r.Text
	}
	var sb strings.Builder
	for _, seg := range r.Segments() {
		if seg.Match == nil {
			sb.WriteString(seg.Text)
		}
	}
	return sb.String()
}

// MatcherCache memoizes compiled matchers per key
type MatcherCache interface {
	Get(key string) (*Matcher, bool)
	Put(key string, m *Matcher)
}

// Leaf matches text against idx. cache may be nil.
func Leaf(text string, idx *dictionary.Index, cache MatcherCache) Result {
	result := Result{Text: text}
	if text == "" || idx.Len() == 0 {
		return result
	}

	for _, pos := range idx.Candidates(text) {
		entry := idx.Entry(pos)
		m := matcherFor(entry.Key, cache)
		if m == nil {
			continue
		}
		for _, loc := range m.FindAll(text) {
			if overlaps(result.Spans, loc[0], loc[1]) {
				continue
			}
			result.Spans = append(result.Spans, Span{Start: loc[0], End: loc[1], Entry: entry})
		}
	}

	sort.Slice(result.Spans, func(i, j int) bool {
		return result.Spans[i].Start < result.Spans[j].Start
	})
	return result
}

func matcherFor(key string, cache MatcherCache) *Matcher {
	if cache != nil {
		if m, ok := cache.Get(key); ok {
			return m
		}
	}
	m, err := Compile(key)
	if err != nil {
		return nil
	}
	if cache != nil {
		cache.Put(key, m)
	}
	return m
}

func overlaps(spans []Span, start, end int) bool {
	for _, s := range spans {
		if start < s.End && s.Start < end {
			return true
		}
	}
	return false
}
