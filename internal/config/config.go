package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// ConfigFileName is looked up in the project directory and the home directory
const ConfigFileName = ".lexmark.kdl"

type Config struct {
	Version    int
	Project    Project
	Dictionary Dictionary
	Scheduler  Scheduler
	Walker     Walker
	Visibility Visibility
	Click      Click
	Pressure   Pressure
	Vocabulary Vocabulary
	Output     Output
}

type Project struct {
	Root string `env:"LEXMARK_ROOT"`
	Name string
}

type Dictionary struct {
	MaxEntries int `env:"LEXMARK_MAX_ENTRIES"` // Entries kept after ranking by usage count
}

type Scheduler struct {
	BatchSize         int     `env:"LEXMARK_BATCH_SIZE"`       // Units processed per host tick
	TicksPerSecond    float64 `env:"LEXMARK_TICKS_PER_SECOND"` // 0 = yield only, no pacing
	MaxMatcherCache   int     `env:"LEXMARK_MAX_MATCHER_CACHE"`
	MaxFragmentCache  int     `env:"LEXMARK_MAX_FRAGMENT_CACHE"`
	MaxPoolSize       int     `env:"LEXMARK_MAX_POOL_SIZE"`
	CleanupIntervalMs int     `env:"LEXMARK_CLEANUP_INTERVAL_MS"`
	FragmentPrefixLen int     // Bytes of leaf text in a fragment cache key
}

type Walker struct {
	SkipHidden    bool     `env:"LEXMARK_SKIP_HIDDEN"`
	ExtraSkipTags []string `env:"LEXMARK_SKIP_TAGS" env-separator:","`
}

type Visibility struct {
	MarginPx       float64 // Distance beyond the viewport still rendered at full fidelity
	ViewportHeight float64
	DebounceMs     int
	LineHeightPx   float64 // Layout estimate used outside a browser
	CharsPerLine   int
}

type Click struct {
	DebounceMs int // Repeated activations of one annotation inside this window are dropped
}

type Pressure struct {
	MaxHeapMB      int `env:"LEXMARK_MAX_HEAP_MB"` // 0 disables the monitor
	PollIntervalMs int
}

type Vocabulary struct {
	Path            string `env:"LEXMARK_VOCABULARY"`
	WatchDebounceMs int
}

type Output struct {
	Dir     string `env:"LEXMARK_OUTPUT_DIR"` // Empty writes next to the input
	Include []string
	Exclude []string
}

// CleanupInterval returns the periodic cache sweep interval
func (s Scheduler) CleanupInterval() time.Duration {
	return time.Duration(s.CleanupIntervalMs) * time.Millisecond
}

// Debounce returns the recompute delay
func (v Visibility) Debounce() time.Duration {
	return time.Duration(v.DebounceMs) * time.Millisecond
}

// Debounce returns the activation debounce window
func (c Click) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// PollInterval returns the heap sampling interval
func (p Pressure) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMs) * time.Millisecond
}

// WatchDebounce returns the vocabulary file debounce
func (v Vocabulary) WatchDebounce() time.Duration {
	return time.Duration(v.WatchDebounceMs) * time.Millisecond
}

// Default returns the built-in configuration
func Default() *Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return &Config{
		Version: 1,
		Project: Project{Root: cwd, Name: filepath.Base(cwd)},
		Dictionary: Dictionary{
			MaxEntries: 5000,
		},
		Scheduler: Scheduler{
			BatchSize:         8,
			TicksPerSecond:    0,
			MaxMatcherCache:   2000,
			MaxFragmentCache:  1000,
			MaxPoolSize:       500,
			CleanupIntervalMs: 30000,
			FragmentPrefixLen: 64,
		},
		Walker: Walker{
			SkipHidden: false,
		},
		Visibility: Visibility{
			MarginPx:       200,
			ViewportHeight: 900,
			DebounceMs:     100,
			LineHeightPx:   20,
			CharsPerLine:   80,
		},
		Click: Click{
			DebounceMs: 300,
		},
		Pressure: Pressure{
			MaxHeapMB:      0,
			PollIntervalMs: 5000,
		},
		Vocabulary: Vocabulary{
			WatchDebounceMs: 200,
		},
		Output: Output{
			Include: []string{},
			Exclude: []string{},
		},
	}
}

func Load(path string) (*Config, error) {
	return LoadWithRoot(path, "")
}

// LoadWithRoot builds the effective configuration: ~/.lexmark.kdl, then the
// project's .lexmark.kdl (or path when given), then LEXMARK_* environment
// variables, then validation.
func LoadWithRoot(path string, rootDir string) (*Config, error) {
	searchDir := "."
	if rootDir != "" {
		searchDir = rootDir
	}

	var baseConfig *Config
	if homeDir, err := os.UserHomeDir(); err == nil {
		if globalCfg, err := LoadKDL(homeDir); err == nil && globalCfg != nil {
			baseConfig = globalCfg
		}
	}

	var projectConfig *Config
	var err error
	if path != "" {
		projectConfig, err = LoadKDLFile(path)
	} else {
		projectConfig, err = LoadKDL(searchDir)
	}
	if err != nil {
		return nil, err
	}

	var cfg *Config
	switch {
	case baseConfig != nil && projectConfig != nil:
		cfg = mergeConfigs(baseConfig, projectConfig)
	case projectConfig != nil:
		cfg = projectConfig
	case baseConfig != nil:
		baseConfig.Project.Root = absOr(searchDir)
		baseConfig.Project.Name = filepath.Base(baseConfig.Project.Root)
		cfg = baseConfig
	default:
		cfg = Default()
		if rootDir != "" {
			cfg.Project.Root = absOr(rootDir)
			cfg.Project.Name = filepath.Base(cfg.Project.Root)
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields tagged with env from LEXMARK_* variables
func ApplyEnv(cfg *Config) error {
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("failed to read environment overrides: %w", err)
	}
	return nil
}

func absOr(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

// mergeConfigs merges a base config with a project config.
// Project config takes precedence, but base exclusions are preserved.
func mergeConfigs(base, project *Config) *Config {
	merged := *project

	if len(base.Output.Exclude) > 0 {
		seen := make(map[string]bool)
		merged.Output.Exclude = make([]string, 0, len(base.Output.Exclude)+len(project.Output.Exclude))
		for _, list := range [][]string{base.Output.Exclude, project.Output.Exclude} {
			for _, pattern := range list {
				if !seen[pattern] {
					seen[pattern] = true
					merged.Output.Exclude = append(merged.Output.Exclude, pattern)
				}
			}
		}
	}

	// Inclusions: project overrides base completely if specified
	if len(project.Output.Include) == 0 && len(base.Output.Include) > 0 {
		merged.Output.Include = base.Output.Include
	}

	// Extra skip tags accumulate like exclusions
	if len(base.Walker.ExtraSkipTags) > 0 && len(project.Walker.ExtraSkipTags) == 0 {
		merged.Walker.ExtraSkipTags = base.Walker.ExtraSkipTags
	}

	if merged.Vocabulary.Path == "" {
		merged.Vocabulary.Path = base.Vocabulary.Path
	}

	return &merged
}
