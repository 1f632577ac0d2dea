package match

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/standardbeagle/lexmark/internal/dictionary"
)

// gap matches the whitespace between the words of a phrase in page text.
// Pages wrap lines and use non-breaking spaces, so any run is accepted.
const gap = `[\s\x{00A0}\x{2000}-\x{200B}\x{3000}]+`

// Matcher finds case-insensitive occurrences of one vocabulary key that sit
// on word boundaries. Compiling is the expensive part, so matchers are cached
// per key by the scheduler.
type Matcher struct {
	key string
	re  *regexp.Regexp

	// A boundary is only required where the key itself starts/ends with a word
	// rune; "c++" must not demand a boundary after its last '+'.
	needStart bool
	needEnd   bool
}

// Compile builds a matcher for a normalized key
func Compile(key string) (*Matcher, error) {
	parts := strings.Split(key, " ")
	quoted := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(p))
	}

	re, err := regexp.Compile(`(?i)` + strings.Join(quoted, gap))
	if err != nil {
		return nil, err
	}

	first, _ := utf8.DecodeRuneInString(key)
	last, _ := utf8.DecodeLastRuneInString(key)
	return &Matcher{
		key:       key,
		re:        re,
		needStart: dictionary.IsWordRune(first),
		needEnd:   dictionary.IsWordRune(last),
	}, nil
}

// Key returns the normalized key this matcher was compiled for
func (m *Matcher) Key() string {
	return m.key
}

// FindAll returns the [start, end) byte ranges of every boundary-respecting
// occurrence, left to right. Occurrences of the same key do not overlap.
func (m *Matcher) FindAll(text string) [][2]int {
	var out [][2]int
	pos := 0
	for pos < len(text) {
		loc := m.re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if end == start {
			break
		}
		if m.onBoundary(text, start, end) {
			out = append(out, [2]int{start, end})
			pos = end
			continue
		}
		// Retry one rune later so an overlapping valid occurrence is not skipped
		_, size := utf8.DecodeRuneInString(text[start:])
		pos = start + size
	}
	return out
}

func (m *Matcher) onBoundary(text string, start, end int) bool {
	if m.needStart && start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if dictionary.IsWordRune(r) {
			return false
		}
	}
	if m.needEnd && end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if dictionary.IsWordRune(r) {
			return false
		}
	}
	return true
}
