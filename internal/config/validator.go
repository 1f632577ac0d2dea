package config

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"

	lexerrors "github.com/standardbeagle/lexmark/internal/errors"
)

// Validator validates configuration and sets smart defaults
type Validator struct{}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults rejects out-of-range values and fills zero values
// that have a sensible derived default.
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	if err := v.validateProject(&cfg.Project); err != nil {
		return lexerrors.NewConfigError("project", cfg.Project.Root, err)
	}
	if cfg.Dictionary.MaxEntries < 0 {
		return lexerrors.NewConfigError("dictionary.max_entries", strconv.Itoa(cfg.Dictionary.MaxEntries),
			errors.New("cannot be negative"))
	}
	if err := v.validateScheduler(&cfg.Scheduler); err != nil {
		return err
	}
	if err := v.validateVisibility(&cfg.Visibility); err != nil {
		return err
	}
	if cfg.Click.DebounceMs < 0 {
		return lexerrors.NewConfigError("click.debounce", strconv.Itoa(cfg.Click.DebounceMs),
			errors.New("cannot be negative"))
	}
	if cfg.Pressure.MaxHeapMB < 0 {
		return lexerrors.NewConfigError("pressure.max_heap_mb", strconv.Itoa(cfg.Pressure.MaxHeapMB),
			errors.New("cannot be negative"))
	}
	for _, tag := range cfg.Walker.ExtraSkipTags {
		if strings.TrimSpace(tag) == "" || strings.ContainsAny(tag, " <>/") {
			return lexerrors.NewConfigError("walker.skip_tags", tag, errors.New("not a tag name"))
		}
	}

	v.setSmartDefaults(cfg)
	return nil
}

func (v *Validator) validateProject(project *Project) error {
	if project.Root == "" {
		return errors.New("project root cannot be empty")
	}
	return nil
}

func (v *Validator) validateScheduler(s *Scheduler) error {
	checks := []struct {
		field string
		value int
	}{
		{"scheduler.batch_size", s.BatchSize},
		{"scheduler.max_matcher_cache", s.MaxMatcherCache},
		{"scheduler.max_fragment_cache", s.MaxFragmentCache},
		{"scheduler.max_pool_size", s.MaxPoolSize},
		{"scheduler.cleanup_interval", s.CleanupIntervalMs},
		{"scheduler.fragment_prefix", s.FragmentPrefixLen},
	}
	for _, c := range checks {
		if c.value < 0 {
			return lexerrors.NewConfigError(c.field, strconv.Itoa(c.value), errors.New("cannot be negative"))
		}
	}
	if s.BatchSize > 1000 {
		return lexerrors.NewConfigError("scheduler.batch_size", strconv.Itoa(s.BatchSize),
			fmt.Errorf("should not exceed 1000 units per tick"))
	}
	if s.TicksPerSecond < 0 {
		return lexerrors.NewConfigError("scheduler.ticks_per_second",
			strconv.FormatFloat(s.TicksPerSecond, 'g', -1, 64), errors.New("cannot be negative"))
	}
	return nil
}

func (v *Validator) validateVisibility(vis *Visibility) error {
	if vis.MarginPx < 0 {
		return lexerrors.NewConfigError("visibility.margin",
			strconv.FormatFloat(vis.MarginPx, 'g', -1, 64), errors.New("cannot be negative"))
	}
	if vis.ViewportHeight < 0 {
		return lexerrors.NewConfigError("visibility.viewport_height",
			strconv.FormatFloat(vis.ViewportHeight, 'g', -1, 64), errors.New("cannot be negative"))
	}
	if vis.DebounceMs < 0 {
		return lexerrors.NewConfigError("visibility.debounce", strconv.Itoa(vis.DebounceMs),
			errors.New("cannot be negative"))
	}
	return nil
}

// setSmartDefaults fills zero values
func (v *Validator) setSmartDefaults(cfg *Config) {
	def := Default()

	if cfg.Dictionary.MaxEntries == 0 {
		cfg.Dictionary.MaxEntries = def.Dictionary.MaxEntries
	}
	if cfg.Scheduler.BatchSize == 0 {
		cfg.Scheduler.BatchSize = def.Scheduler.BatchSize
	}
	if cfg.Scheduler.MaxMatcherCache == 0 {
		cfg.Scheduler.MaxMatcherCache = def.Scheduler.MaxMatcherCache
	}
	if cfg.Scheduler.MaxFragmentCache == 0 {
		cfg.Scheduler.MaxFragmentCache = def.Scheduler.MaxFragmentCache
	}
	if cfg.Scheduler.MaxPoolSize == 0 {
		cfg.Scheduler.MaxPoolSize = def.Scheduler.MaxPoolSize
	}
	if cfg.Scheduler.FragmentPrefixLen == 0 {
		cfg.Scheduler.FragmentPrefixLen = def.Scheduler.FragmentPrefixLen
	}
	if cfg.Visibility.LineHeightPx <= 0 {
		cfg.Visibility.LineHeightPx = def.Visibility.LineHeightPx
	}
	if cfg.Visibility.CharsPerLine <= 0 {
		cfg.Visibility.CharsPerLine = def.Visibility.CharsPerLine
	}
	if cfg.Visibility.ViewportHeight == 0 {
		cfg.Visibility.ViewportHeight = def.Visibility.ViewportHeight
	}
	if cfg.Pressure.PollIntervalMs <= 0 {
		cfg.Pressure.PollIntervalMs = def.Pressure.PollIntervalMs
	}

	// Follow the runtime soft limit when one is set and no explicit cap is given
	if cfg.Pressure.MaxHeapMB == 0 {
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < 1<<62 {
			cfg.Pressure.MaxHeapMB = int(limit / (1024 * 1024) * 9 / 10)
		}
	}
}

// ValidateConfig is a convenience function for quick validation
func ValidateConfig(cfg *Config) error {
	validator := NewValidator()
	return validator.ValidateAndSetDefaults(cfg)
}
