package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// LoadKDL loads dir/.lexmark.kdl. A missing file yields (nil, nil).
func LoadKDL(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	cfg, err := LoadKDLFile(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadKDLFile loads an explicit config file. Relative paths inside it resolve
// against the file's directory.
func LoadKDLFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg, err := parseKDL(string(content))
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	if cfg.Project.Root == "" {
		cfg.Project.Root = absOr(base)
	} else if !filepath.IsAbs(cfg.Project.Root) {
		cfg.Project.Root = filepath.Clean(filepath.Join(absOr(base), cfg.Project.Root))
	}
	if cfg.Project.Name == "" {
		cfg.Project.Name = filepath.Base(cfg.Project.Root)
	}
	if p := cfg.Vocabulary.Path; p != "" && !filepath.IsAbs(p) {
		cfg.Vocabulary.Path = filepath.Clean(filepath.Join(cfg.Project.Root, p))
	}
	return cfg, nil
}

// parseKDL reads a config document on top of Default(). Unknown nodes are ignored.
//
//	scheduler { batch_size 8; ticks_per_second 30 }
//	walker { skip_hidden true; skip_tags "pre" "code" }
//	output { exclude "**/vendor/**" }
func parseKDL(content string) (*Config, error) {
	cfg := Default()
	cfg.Project = Project{}

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "version":
			if v, ok := firstIntArg(n); ok {
				cfg.Version = v
			}
		case "project":
			for _, cn := range n.Children {
				assignSimpleString(cn, "root", func(v string) { cfg.Project.Root = v })
				assignSimpleString(cn, "name", func(v string) { cfg.Project.Name = v })
			}
		case "dictionary":
			for _, cn := range n.Children {
				if nodeName(cn) == "max_entries" {
					setInt(cn, &cfg.Dictionary.MaxEntries)
				}
			}
		case "scheduler":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "batch_size":
					setInt(cn, &cfg.Scheduler.BatchSize)
				case "ticks_per_second":
					if v, ok := firstFloatArg(cn); ok {
						cfg.Scheduler.TicksPerSecond = v
					}
				case "max_matcher_cache":
					setInt(cn, &cfg.Scheduler.MaxMatcherCache)
				case "max_fragment_cache":
					setInt(cn, &cfg.Scheduler.MaxFragmentCache)
				case "max_pool_size":
					setInt(cn, &cfg.Scheduler.MaxPoolSize)
				case "cleanup_interval":
					setDurationMs(cn, &cfg.Scheduler.CleanupIntervalMs)
				case "fragment_prefix":
					setInt(cn, &cfg.Scheduler.FragmentPrefixLen)
				}
			}
		case "walker":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "skip_hidden":
					setBool(cn, &cfg.Walker.SkipHidden)
				case "skip_tags":
					cfg.Walker.ExtraSkipTags = collectStringArgs(cn)
				}
			}
		case "visibility":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "margin":
					setFloat(cn, &cfg.Visibility.MarginPx)
				case "viewport_height":
					setFloat(cn, &cfg.Visibility.ViewportHeight)
				case "debounce":
					setDurationMs(cn, &cfg.Visibility.DebounceMs)
				case "line_height":
					setFloat(cn, &cfg.Visibility.LineHeightPx)
				case "chars_per_line":
					setInt(cn, &cfg.Visibility.CharsPerLine)
				}
			}
		case "click":
			for _, cn := range n.Children {
				if nodeName(cn) == "debounce" {
					setDurationMs(cn, &cfg.Click.DebounceMs)
				}
			}
		case "pressure":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_heap_mb":
					setInt(cn, &cfg.Pressure.MaxHeapMB)
				case "poll_interval":
					setDurationMs(cn, &cfg.Pressure.PollIntervalMs)
				}
			}
		case "vocabulary":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "path":
					if s, ok := firstStringArg(cn); ok {
						cfg.Vocabulary.Path = s
					}
				case "debounce":
					setDurationMs(cn, &cfg.Vocabulary.WatchDebounceMs)
				}
			}
		case "output":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "dir":
					if s, ok := firstStringArg(cn); ok {
						cfg.Output.Dir = s
					}
				case "include":
					cfg.Output.Include = collectStringArgs(cn)
				case "exclude":
					cfg.Output.Exclude = collectStringArgs(cn)
				}
			}
		}
	}

	return cfg, nil
}

func setInt(n *document.Node, dst *int) {
	if v, ok := firstIntArg(n); ok {
		*dst = v
	}
}

func setFloat(n *document.Node, dst *float64) {
	if v, ok := firstFloatArg(n); ok {
		*dst = v
	}
}

func setBool(n *document.Node, dst *bool) {
	if v, ok := firstBoolArg(n); ok {
		*dst = v
		return
	}
	if s, ok := firstStringArg(n); ok {
		*dst = parseBool(s)
	}
}

// setDurationMs accepts a bare millisecond count or a string like "250ms", "2s"
func setDurationMs(n *document.Node, dst *int) {
	if v, ok := firstIntArg(n); ok {
		*dst = v
		return
	}
	if s, ok := firstStringArg(n); ok {
		if ms, err := parseDurationMs(s); err == nil {
			*dst = ms
		} else {
			log.Printf("WARNING: invalid duration %q for '%s' in KDL config", s, nodeName(n))
		}
	}
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		log.Printf("WARNING: invalid float value for '%s' in KDL config, expected number but got %T", nodeName(n), n.Arguments[0].Value)
		return 0, false
	}
}

// collectStringArgs reads either inline arguments (skip_tags "pre" "code")
// or a block whose child node names are the values.
func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}

func parseDurationMs(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasSuffix(s, "ms"):
		return strconv.Atoi(strings.TrimSuffix(s, "ms"))
	case strings.HasSuffix(s, "s"):
		sec, err := strconv.ParseFloat(strings.TrimSuffix(s, "s"), 64)
		if err != nil {
			return 0, err
		}
		return int(sec * 1000), nil
	default:
		return strconv.Atoi(s)
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "yes" || s == "1" || s == "on"
}
