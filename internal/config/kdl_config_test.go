package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKDL_Defaults(t *testing.T) {
	cfg, err := parseKDL("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	def := Default()
	assert.Equal(t, def.Scheduler, cfg.Scheduler)
	assert.Equal(t, def.Visibility, cfg.Visibility)
	assert.Equal(t, "", cfg.Project.Root, "root is resolved by the loader")
}

func TestParseKDL_AllSections(t *testing.T) {
	content := `
version 1
project {
    root "."
    name "handbook"
}
dictionary {
    max_entries 1200
}
scheduler {
    batch_size 4
    ticks_per_second 30
    max_matcher_cache 50
    max_fragment_cache 60
    max_pool_size 70
    cleanup_interval "2s"
    fragment_prefix 32
}
walker {
    skip_hidden true
    skip_tags "pre" "code"
}
visibility {
    margin 150.5
    viewport_height 720
    debounce "50ms"
    line_height 18
    chars_per_line 100
}
click {
    debounce 500
}
pressure {
    max_heap_mb 256
    poll_interval "1s"
}
vocabulary {
    path "vocab.json"
    debounce 250
}
output {
    dir "out"
    include "**/*.html"
    exclude {
        "**/drafts/**"
        "**/vendor/**"
    }
}
`
	cfg, err := parseKDL(content)
	require.NoError(t, err)

	assert.Equal(t, "handbook", cfg.Project.Name)
	assert.Equal(t, 1200, cfg.Dictionary.MaxEntries)

	assert.Equal(t, 4, cfg.Scheduler.BatchSize)
	assert.Equal(t, 30.0, cfg.Scheduler.TicksPerSecond)
	assert.Equal(t, 50, cfg.Scheduler.MaxMatcherCache)
	assert.Equal(t, 60, cfg.Scheduler.MaxFragmentCache)
	assert.Equal(t, 70, cfg.Scheduler.MaxPoolSize)
	assert.Equal(t, 2000, cfg.Scheduler.CleanupIntervalMs)
	assert.Equal(t, 32, cfg.Scheduler.FragmentPrefixLen)

	assert.True(t, cfg.Walker.SkipHidden)
	assert.Equal(t, []string{"pre", "code"}, cfg.Walker.ExtraSkipTags)

	assert.Equal(t, 150.5, cfg.Visibility.MarginPx)
	assert.Equal(t, 720.0, cfg.Visibility.ViewportHeight)
	assert.Equal(t, 50, cfg.Visibility.DebounceMs)
	assert.Equal(t, 18.0, cfg.Visibility.LineHeightPx)
	assert.Equal(t, 100, cfg.Visibility.CharsPerLine)

	assert.Equal(t, 500, cfg.Click.DebounceMs)
	assert.Equal(t, 256, cfg.Pressure.MaxHeapMB)
	assert.Equal(t, 1000, cfg.Pressure.PollIntervalMs)

	assert.Equal(t, "vocab.json", cfg.Vocabulary.Path)
	assert.Equal(t, 250, cfg.Vocabulary.WatchDebounceMs)

	assert.Equal(t, "out", cfg.Output.Dir)
	assert.Equal(t, []string{"**/*.html"}, cfg.Output.Include)
	assert.Equal(t, []string{"**/drafts/**", "**/vendor/**"}, cfg.Output.Exclude)
}

func TestParseKDL_UnknownNodesIgnored(t *testing.T) {
	cfg, err := parseKDL(`
telemetry { enabled true }
scheduler { unknown 3; batch_size 2 }
vocabulary { watch true; debounce 75 }
`)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Scheduler.BatchSize)
	// the watch command always watches; a leftover watch flag is ignored
	assert.Equal(t, 75, cfg.Vocabulary.WatchDebounceMs)
}

func TestParseKDL_Invalid(t *testing.T) {
	_, err := parseKDL(`scheduler { batch_size `)
	assert.Error(t, err)
}

func TestParseDurationMs(t *testing.T) {
	tests := []struct {
		in   string
		want int
		err  bool
	}{
		{"250ms", 250, false},
		{"2s", 2000, false},
		{"1.5s", 1500, false},
		{"40", 40, false},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDurationMs(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
