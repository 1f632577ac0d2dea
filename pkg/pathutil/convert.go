// Package pathutil maps page paths between the project root, the command
// line and the output directory.
//
// Pages are resolved to absolute paths while they are processed; reports and
// output locations use paths relative to the project root.
package pathutil

import (
	"path/filepath"
	"strings"
)

// AnnotatedSuffix is inserted before the extension when output is written
// next to its input
const AnnotatedSuffix = ".lexmark"

// ToRelative converts an absolute path to one relative to rootDir. Paths
// outside rootDir, already relative paths and empty inputs come back as given.
func ToRelative(absPath, rootDir string) string {
	if absPath == "" || rootDir == "" || !filepath.IsAbs(absPath) {
		return absPath
	}
	absPath = filepath.Clean(absPath)
	rel, err := filepath.Rel(filepath.Clean(rootDir), absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return absPath
	}
	return rel
}

// ToRelativeAll converts every path; the input slice is not modified
func ToRelativeAll(paths []string, rootDir string) []string {
	if len(paths) == 0 {
		return paths
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = ToRelative(p, rootDir)
	}
	return out
}

// OutputPath returns where the annotated copy of input is written. With an
// empty outDir the copy sits next to input as name.lexmark.ext; otherwise it
// mirrors input's location under rootDir inside outDir.
func OutputPath(input, rootDir, outDir string) string {
	if outDir == "" {
		ext := filepath.Ext(input)
		return strings.TrimSuffix(input, ext) + AnnotatedSuffix + ext
	}
	rel := ToRelative(input, rootDir)
	if filepath.IsAbs(rel) {
		rel = filepath.Base(rel)
	}
	return filepath.Join(outDir, rel)
}

// IsAnnotatedOutput reports whether path looks like a file OutputPath wrote
// next to its input, so a second run does not annotate its own output
func IsAnnotatedOutput(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(strings.TrimSuffix(base, filepath.Ext(base)), AnnotatedSuffix)
}
