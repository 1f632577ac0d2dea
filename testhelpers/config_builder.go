// Package testhelpers provides shared fixtures for lexmark tests
package testhelpers

import (
	"github.com/standardbeagle/lexmark/internal/config"
)

// TestConfigBuilder provides a fluent API for building test configs.
// Defaults are the built-in ones with the project root fixed, so tests never
// depend on the working directory or a developer's ~/.lexmark.kdl.
//
//	cfg := testhelpers.NewTestConfigBuilder(t.TempDir()).
//		WithBatchSize(2).
//		WithSkipHidden().
//		Build()
type TestConfigBuilder struct {
	cfg *config.Config
}

// NewTestConfigBuilder creates a builder rooted at projectRoot
func NewTestConfigBuilder(projectRoot string) *TestConfigBuilder {
	cfg := config.Default()
	cfg.Project = config.Project{Root: projectRoot, Name: "test-project"}
	// A limit inherited from GOMEMLIMIT would start a monitor goroutine
	cfg.Pressure.MaxHeapMB = 0
	return &TestConfigBuilder{cfg: cfg}
}

// WithBatchSize sets the units processed per tick
func (b *TestConfigBuilder) WithBatchSize(n int) *TestConfigBuilder {
	b.cfg.Scheduler.BatchSize = n
	return b
}

// WithTicksPerSecond paces ticks
func (b *TestConfigBuilder) WithTicksPerSecond(tps float64) *TestConfigBuilder {
	b.cfg.Scheduler.TicksPerSecond = tps
	return b
}

// WithCacheLimits sets the matcher and fragment cache bounds
func (b *TestConfigBuilder) WithCacheLimits(matchers, fragments int) *TestConfigBuilder {
	b.cfg.Scheduler.MaxMatcherCache = matchers
	b.cfg.Scheduler.MaxFragmentCache = fragments
	return b
}

// WithPoolSize sets the annotation pool cap
func (b *TestConfigBuilder) WithPoolSize(n int) *TestConfigBuilder {
	b.cfg.Scheduler.MaxPoolSize = n
	return b
}

// WithMaxEntries caps the dictionary
func (b *TestConfigBuilder) WithMaxEntries(n int) *TestConfigBuilder {
	b.cfg.Dictionary.MaxEntries = n
	return b
}

// WithSkipHidden enables the hidden-element walker variant
func (b *TestConfigBuilder) WithSkipHidden() *TestConfigBuilder {
	b.cfg.Walker.SkipHidden = true
	return b
}

// WithSkipTags adds walker skip tags
func (b *TestConfigBuilder) WithSkipTags(tags ...string) *TestConfigBuilder {
	b.cfg.Walker.ExtraSkipTags = append(b.cfg.Walker.ExtraSkipTags, tags...)
	return b
}

// WithViewport sets the viewport height and margin
func (b *TestConfigBuilder) WithViewport(height, margin float64) *TestConfigBuilder {
	b.cfg.Visibility.ViewportHeight = height
	b.cfg.Visibility.MarginPx = margin
	return b
}

// WithClickDebounce sets the activation debounce in milliseconds
func (b *TestConfigBuilder) WithClickDebounce(ms int) *TestConfigBuilder {
	b.cfg.Click.DebounceMs = ms
	return b
}

// WithVocabulary sets the vocabulary file path
func (b *TestConfigBuilder) WithVocabulary(path string) *TestConfigBuilder {
	b.cfg.Vocabulary.Path = path
	return b
}

// Build validates and returns the config; it panics on an invalid one since
// that is a bug in the test itself
func (b *TestConfigBuilder) Build() *config.Config {
	cfg := *b.cfg
	if err := config.ValidateConfig(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}
