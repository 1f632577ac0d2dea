// Package dictionary builds the read-only, prioritized view of the vocabulary
// that the match engine scans against.
//
// An Index is immutable once built. Rebuilding produces a new Index with a
// higher Generation; anything derived from an older index (compiled matchers,
// cached match plans) must be discarded when the generation changes.
package dictionary

import (
	"sort"
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"github.com/standardbeagle/lexmark/internal/vocab"
)

// DefaultMaxEntries caps the index when no limit is configured
const DefaultMaxEntries = 5000

var generationCounter atomic.Uint64

// Index is a capped snapshot of matchable vocabulary in match order:
// longest key first (in runes), then usage count descending, then key.
type Index struct {
	entries    []vocab.Entry
	byKey      map[string]int
	anchors    map[string][]int // first word of a key → positions in entries
	unanchored []int            // keys with no word runes
	generation uint64
	dropped    int
}

// Build filters entries to matchable categories, keeps the maxEntries most
// used ones and orders them for longest-match-first scanning.
//
// Truncation ranks by (usage count desc, length desc, key asc), so equal
// counts at the cut-off resolve the same way on every build.
func Build(entries []vocab.Entry, maxEntries int) *Index {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	candidates := make([]vocab.Entry, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.Category.Matchable() || e.Key == "" || seen[e.Key] {
			continue
		}
		seen[e.Key] = true
		candidates = append(candidates, e)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.UsageCount != b.UsageCount {
			return a.UsageCount > b.UsageCount
		}
		if la, lb := runeLen(a.Key), runeLen(b.Key); la != lb {
			return la > lb
		}
		return a.Key < b.Key
	})

	dropped := 0
	if len(candidates) > maxEntries {
		dropped = len(candidates) - maxEntries
		candidates = candidates[:maxEntries]
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return matchLess(candidates[i], candidates[j])
	})

	idx := &Index{
		entries:    candidates,
		byKey:      make(map[string]int, len(candidates)),
		anchors:    make(map[string][]int),
		generation: generationCounter.Add(1),
		dropped:    dropped,
	}
	for i, e := range candidates {
		idx.byKey[e.Key] = i
		if anchor := Anchor(e.Key); anchor != "" {
			idx.anchors[anchor] = append(idx.anchors[anchor], i)
		} else {
			idx.unanchored = append(idx.unanchored, i)
		}
	}
	return idx
}

func matchLess(a, b vocab.Entry) bool {
	if la, lb := runeLen(a.Key), runeLen(b.Key); la != lb {
		return la > lb
	}
	if a.UsageCount != b.UsageCount {
		return a.UsageCount > b.UsageCount
	}
	return a.Key < b.Key
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// Len returns the number of entries in the index
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.entries)
}

// Generation identifies this build; every Build returns a larger value
func (idx *Index) Generation() uint64 {
	if idx == nil {
		return 0
	}
	return idx.generation
}

// Dropped returns how many matchable entries truncation removed
func (idx *Index) Dropped() int {
	if idx == nil {
		return 0
	}
	return idx.dropped
}

// Entry returns the entry at position i in match order
func (idx *Index) Entry(i int) vocab.Entry {
	return idx.entries[i]
}

// Entries returns the entries in match order. The slice must not be modified.
func (idx *Index) Entries() []vocab.Entry {
	if idx == nil {
		return nil
	}
	return idx.entries
}

// Lookup finds an entry by normalized key
func (idx *Index) Lookup(key string) (vocab.Entry, bool) {
	if idx == nil {
		return vocab.Entry{}, false
	}
	i, ok := idx.byKey[vocab.Normalize(key)]
	if !ok {
		return vocab.Entry{}, false
	}
	return idx.entries[i], true
}

// Candidates returns the positions (ascending, i.e. match order) of entries
// whose first word occurs in text. Entries that cannot occur are never scanned.
func (idx *Index) Candidates(text string) []int {
	if idx.Len() == 0 {
		return nil
	}

	var out []int
	seen := make(map[string]bool)
	EachToken(strings.ToLower(text), func(tok string) {
		if seen[tok] {
			return
		}
		seen[tok] = true
		out = append(out, idx.anchors[tok]...)
	})
	out = append(out, idx.unanchored...)

	sort.Ints(out)
	return out
}

// IsWordRune reports whether r belongs to a word for boundary purposes.
// Scripts written without spaces (Han, Hiragana, Katakana) never form word
// boundaries with Latin text, so they are not word runes.
func IsWordRune(r rune) bool {
	if r == '_' {
		return true
	}
	if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana) {
		return false
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

// EachToken calls fn for every maximal run of word runes in s
func EachToken(s string, fn func(tok string)) {
	start := -1
	for i, r := range s {
		if IsWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			fn(s[start:i])
			start = -1
		}
	}
	if start >= 0 {
		fn(s[start:])
	}
}

// Anchor returns the first word token of a normalized key, or "" if it has none
func Anchor(key string) string {
	var anchor string
	found := false
	EachToken(key, func(tok string) {
		if !found {
			anchor = tok
			found = true
		}
	})
	return anchor
}
