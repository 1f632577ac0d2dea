// Package version reports the lexmark release and the build it came from.
package version

import (
	"runtime/debug"
	"sync"
)

var (
	// Version is the current semantic version
	Version = "0.1.0"

	// BuildDate is set during build time (use -ldflags)
	BuildDate = "development"

	// GitCommit is set during build time (use -ldflags)
	GitCommit = "unknown"
)

// Info returns the release version
func Info() string {
	return Version
}

// FullInfo returns the line printed by the version command
func FullInfo() string {
	return "lexmark " + Version + " (build " + BuildID() + ", built " + BuildDate + ")"
}

// Generator is the content of the generator meta tag in annotated pages
func Generator() string {
	return "lexmark " + Version + "+" + BuildID()
}

var buildID = sync.OnceValue(func() string {
	var settings []debug.BuildSetting
	if info, ok := debug.ReadBuildInfo(); ok {
		settings = info.Settings
	}
	return buildIDFrom(GitCommit, settings)
})

// BuildID names the commit the binary was built from: GitCommit when set by
// ldflags, else the VCS revision the go tool recorded
func BuildID() string {
	return buildID()
}

func buildIDFrom(commit string, settings []debug.BuildSetting) string {
	dirty := false
	if commit == "" || commit == "unknown" {
		commit = "unknown"
		for _, s := range settings {
			switch s.Key {
			case "vcs.revision":
				commit = s.Value
			case "vcs.modified":
				dirty = s.Value == "true"
			}
		}
	}
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if dirty {
		commit += "-dirty"
	}
	return commit
}
