package pathutil

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToRelative(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix paths")
	}
	tests := []struct {
		name     string
		absPath  string
		rootDir  string
		expected string
	}{
		{"simple relative path", "/site/docs/guide.html", "/site", "docs/guide.html"},
		{"root level file", "/site/index.html", "/site", "index.html"},
		{"same directory", "/site", "/site", "."},
		{"already relative path", "docs/guide.html", "/site", "docs/guide.html"},
		{"outside root", "/other/page.html", "/site", "/other/page.html"},
		{"sibling sharing a prefix", "/site-old/page.html", "/site", "/site-old/page.html"},
		{"dot-dot named file stays inside", "/site/..draft.html", "/site", "..draft.html"},
		{"empty root", "/site/index.html", "", "/site/index.html"},
		{"empty path", "", "/site", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToRelative(tt.absPath, tt.rootDir))
		})
	}
}

func TestToRelativeAll(t *testing.T) {
	in := []string{"/site/a.html", "/elsewhere/b.html"}
	out := ToRelativeAll(in, "/site")

	assert.Equal(t, []string{"a.html", "/elsewhere/b.html"}, out)
	assert.Equal(t, "/site/a.html", in[0], "input untouched")
	assert.Empty(t, ToRelativeAll(nil, "/site"))
}

func TestOutputPath(t *testing.T) {
	root := filepath.FromSlash("/site")

	assert.Equal(t, filepath.FromSlash("/site/docs/guide.lexmark.html"),
		OutputPath(filepath.FromSlash("/site/docs/guide.html"), root, ""))
	assert.Equal(t, filepath.FromSlash("/out/docs/guide.html"),
		OutputPath(filepath.FromSlash("/site/docs/guide.html"), root, filepath.FromSlash("/out")))
	assert.Equal(t, filepath.FromSlash("/out/page.htm"),
		OutputPath(filepath.FromSlash("/elsewhere/page.htm"), root, filepath.FromSlash("/out")))
}

func TestIsAnnotatedOutput(t *testing.T) {
	assert.True(t, IsAnnotatedOutput("docs/guide.lexmark.html"))
	assert.False(t, IsAnnotatedOutput("docs/guide.html"))
	assert.False(t, IsAnnotatedOutput("lexmark.html"))
}
