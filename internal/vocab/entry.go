package vocab

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	lexerrors "github.com/standardbeagle/lexmark/internal/errors"
)

// Category is the kind of vocabulary item
type Category string

const (
	CategoryWord     Category = "word"
	CategoryPhrase   Category = "phrase"
	CategorySentence Category = "sentence"
)

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	switch c {
	case CategoryWord, CategoryPhrase, CategorySentence:
		return true
	}
	return false
}

// Matchable reports whether entries of this category are annotated in pages
func (c Category) Matchable() bool {
	return c == CategoryWord || c == CategoryPhrase
}

// Entry is one vocabulary item keyed by its normalized text
type Entry struct {
	Key          string // normalized: trimmed, lowercase, single spaces
	Category     Category
	Translation  string
	PartOfSpeech string // optional, e.g. "n.", "v."
	UsageCount   int
}

// Snapshot is the raw, dynamically shaped vocabulary as returned by storage:
// normalized text → {translation, type, partOfSpeech, count}
type Snapshot map[string]map[string]any

// Normalize prepares text for keying and comparison:
//   - trims leading/trailing whitespace
//   - converts to lowercase
//   - collapses any whitespace run into one space
func Normalize(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	text = strings.ToLower(text)

	var b strings.Builder
	b.Grow(len(text))
	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if prevSpace {
				continue
			}
			prevSpace = true
			b.WriteByte(' ')
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// field aliases accepted from storage; the first one present wins
var (
	translationFields = []string{"translation", "meaning"}
	categoryFields    = []string{"type", "category"}
	posFields         = []string{"partOfSpeech", "part_of_speech", "pos"}
	countFields       = []string{"count", "usageCount", "usage_count"}
)

// Coerce validates one raw entry and converts it into the strict Entry shape.
// A missing category is inferred from the key (whitespace → phrase).
func Coerce(rawKey string, raw map[string]any) (Entry, error) {
	key := Normalize(rawKey)
	if key == "" {
		return Entry{}, lexerrors.NewDataError(rawKey, "", errors.New("empty key"))
	}
	if raw == nil {
		return Entry{}, lexerrors.NewDataError(key, "", errors.New("missing entry body"))
	}

	entry := Entry{Key: key}

	tv, field, ok := lookup(raw, translationFields)
	if !ok {
		return Entry{}, lexerrors.NewDataError(key, "translation", errors.New("missing"))
	}
	translation, isString := tv.(string)
	if !isString {
		return Entry{}, lexerrors.NewDataError(key, field, fmt.Errorf("expected string, got %T", tv))
	}
	translation = strings.TrimSpace(translation)
	if translation == "" {
		return Entry{}, lexerrors.NewDataError(key, field, errors.New("empty translation"))
	}
	entry.Translation = translation

	if cv, field, ok := lookup(raw, categoryFields); ok {
		s, isString := cv.(string)
		if !isString {
			return Entry{}, lexerrors.NewDataError(key, field, fmt.Errorf("expected string, got %T", cv))
		}
		cat := Category(strings.ToLower(strings.TrimSpace(s)))
		if !cat.Valid() {
			return Entry{}, lexerrors.NewDataError(key, field, fmt.Errorf("unknown category %q", s))
		}
		entry.Category = cat
	} else if strings.Contains(key, " ") {
		entry.Category = CategoryPhrase
	} else {
		entry.Category = CategoryWord
	}

	if pv, field, ok := lookup(raw, posFields); ok && pv != nil {
		s, isString := pv.(string)
		if !isString {
			return Entry{}, lexerrors.NewDataError(key, field, fmt.Errorf("expected string, got %T", pv))
		}
		entry.PartOfSpeech = strings.TrimSpace(s)
	}

	if nv, field, ok := lookup(raw, countFields); ok && nv != nil {
		n, err := coerceCount(nv)
		if err != nil {
			return Entry{}, lexerrors.NewDataError(key, field, err)
		}
		entry.UsageCount = n
	}

	return entry, nil
}

func lookup(raw map[string]any, names []string) (any, string, bool) {
	for _, name := range names {
		if v, ok := raw[name]; ok {
			return v, name, true
		}
	}
	return nil, "", false
}

// coerceCount accepts the numeric shapes JSON, TOML and hand-written storage produce
func coerceCount(v any) (int, error) {
	var n int64
	switch t := v.(type) {
	case int:
		n = int64(t)
	case int32:
		n = int64(t)
	case int64:
		n = t
	case uint:
		n = int64(t)
	case uint64:
		if t > math.MaxInt32 {
			t = math.MaxInt32
		}
		n = int64(t)
	case float32:
		return coerceCount(float64(t))
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, fmt.Errorf("count is not finite: %v", t)
		}
		n = int64(t)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("count is not a number: %q", t)
		}
		n = parsed
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
	if n < 0 {
		n = 0
	}
	if n > math.MaxInt32 {
		n = math.MaxInt32
	}
	return int(n), nil
}

// FromSnapshot coerces every raw entry. Malformed entries are skipped and
// reported in the returned error (a MultiError of DataErrors, or nil).
// Keys that normalize to the same text collapse to one entry: the higher
// usage count wins, then the lexically smaller translation.
func FromSnapshot(snap Snapshot) ([]Entry, error) {
	rawKeys := make([]string, 0, len(snap))
	for k := range snap {
		rawKeys = append(rawKeys, k)
	}
	sort.Strings(rawKeys)

	byKey := make(map[string]Entry, len(snap))
	var errs []error
	for _, rawKey := range rawKeys {
		entry, err := Coerce(rawKey, snap[rawKey])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if existing, ok := byKey[entry.Key]; ok && !preferred(entry, existing) {
			continue
		}
		byKey[entry.Key] = entry
	}

	entries := make([]Entry, 0, len(byKey))
	for _, e := range byKey {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	return entries, lexerrors.NewMultiError(errs)
}

func preferred(candidate, existing Entry) bool {
	if candidate.UsageCount != existing.UsageCount {
		return candidate.UsageCount > existing.UsageCount
	}
	return candidate.Translation < existing.Translation
}
