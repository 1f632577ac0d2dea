package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime/pprof"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/lexmark/internal/config"
	"github.com/standardbeagle/lexmark/internal/debug"
	"github.com/standardbeagle/lexmark/internal/version"
)

// loadConfigWithOverrides loads configuration and applies CLI flag overrides
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadWithRoot(c.String("config"), c.String("root"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if rootFlag := c.String("root"); rootFlag != "" {
		absRoot, err := filepath.Abs(rootFlag)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root path %q: %w", rootFlag, err)
		}
		cfg.Project.Root = absRoot
	}
	if v := c.String("vocab"); v != "" {
		cfg.Vocabulary.Path = v
	}
	if includeFlags := c.StringSlice("include"); len(includeFlags) > 0 {
		cfg.Output.Include = includeFlags
	}
	if excludeFlags := c.StringSlice("exclude"); len(excludeFlags) > 0 {
		cfg.Output.Exclude = append(cfg.Output.Exclude, excludeFlags...)
	}
	if c.IsSet("skip-hidden") {
		cfg.Walker.SkipHidden = c.Bool("skip-hidden")
	}
	if c.IsSet("max-entries") {
		cfg.Dictionary.MaxEntries = c.Int("max-entries")
	}
	if c.IsSet("batch-size") {
		cfg.Scheduler.BatchSize = c.Int("batch-size")
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// engineLogger returns the logger handed to every engine; -q silences it
func engineLogger(c *cli.Context) *log.Logger {
	if c.Bool("quiet") {
		return log.New(io.Discard, "", 0)
	}
	return log.New(c.App.ErrWriter, "lexmark: ", log.LstdFlags)
}

func newApp() *cli.App {
	var cleanupFuncs []func()

	return &cli.App{
		Name:                   "lexmark",
		Usage:                  "Annotate vocabulary inside HTML pages",
		Version:                version.Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (default: .lexmark.kdl in the root)",
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root directory (overrides config)",
			},
			&cli.StringFlag{
				Name:    "vocab",
				Aliases: []string{"V"},
				Usage:   "Vocabulary file, .toml or .json (overrides config)",
				EnvVars: []string{"LEXMARK_VOCABULARY"},
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "Annotate pages matching glob patterns (e.g., --include 'docs/**/*.html')",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Skip pages matching glob patterns (e.g., --exclude '**/drafts/**')",
			},
			&cli.BoolFlag{
				Name:  "skip-hidden",
				Usage: "Do not annotate elements hidden by attribute or inline style",
			},
			&cli.IntFlag{
				Name:  "max-entries",
				Usage: "Keep only the N most used vocabulary entries",
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Subtrees processed per scheduler tick",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Suppress engine log lines",
			},
			&cli.BoolFlag{
				Name:  "debug-log",
				Usage: "Write component debug output to a file in the temp directory",
			},
			&cli.StringFlag{
				Name:   "profile-cpu",
				Usage:  "Write CPU profile to file",
				Hidden: true,
			},
		},
		Commands: []*cli.Command{
			annotateCommand(),
			matchCommand(),
			watchCommand(),
			{
				Name:  "version",
				Usage: "Show version and build information",
				Action: func(c *cli.Context) error {
					fmt.Fprintln(c.App.Writer, version.FullInfo())
					return nil
				},
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug-log") {
				path, err := debug.InitDebugLogFile()
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.ErrWriter, "debug log: %s\n", path)
				cleanupFuncs = append(cleanupFuncs, func() { _ = debug.CloseDebugLog() })
			} else if debug.IsDebugEnabled() {
				debug.SetDebugOutput(c.App.ErrWriter)
			}

			if cpuProfilePath := c.String("profile-cpu"); cpuProfilePath != "" {
				f, err := os.Create(cpuProfilePath)
				if err != nil {
					return fmt.Errorf("failed to create CPU profile: %w", err)
				}
				if err := pprof.StartCPUProfile(f); err != nil {
					f.Close()
					return fmt.Errorf("failed to start CPU profile: %w", err)
				}
				cleanupFuncs = append(cleanupFuncs, func() {
					pprof.StopCPUProfile()
					f.Close()
				})
			}
			return nil
		},
		After: func(c *cli.Context) error {
			for i := len(cleanupFuncs) - 1; i >= 0; i-- {
				cleanupFuncs[i]()
			}
			cleanupFuncs = nil
			return nil
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}
