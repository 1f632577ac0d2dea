package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/urfave/cli/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/lexmark/internal/config"
	"github.com/standardbeagle/lexmark/internal/dom"
	"github.com/standardbeagle/lexmark/internal/engine"
	lexerrors "github.com/standardbeagle/lexmark/internal/errors"
	"github.com/standardbeagle/lexmark/internal/host"
	"github.com/standardbeagle/lexmark/internal/version"
	"github.com/standardbeagle/lexmark/internal/vocab"
	"github.com/standardbeagle/lexmark/pkg/pathutil"
)

var defaultIncludes = []string{"**/*.html", "**/*.htm"}

func annotateCommand() *cli.Command {
	return &cli.Command{
		Name:      "annotate",
		Aliases:   []string{"a"},
		Usage:     "Write annotated copies of HTML pages",
		ArgsUsage: "[page...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Output directory (default: name.lexmark.html next to each page)",
			},
			&cli.IntFlag{
				Name:    "jobs",
				Aliases: []string{"j"},
				Usage:   "Pages annotated in parallel",
				Value:   4,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Give up on a single page after this long",
				Value: time.Minute,
			},
		},
		Action: annotateAction,
	}
}

// pageResult is the per-page line of the annotate report
type pageResult struct {
	Input       string
	Output      string
	Annotations int
	Leaves      int64
	Elapsed     time.Duration
}

func annotateAction(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	if out := c.String("out"); out != "" {
		cfg.Output.Dir = out
	}

	pages, err := collectPages(cfg, c.Args().Slice())
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return errors.New("no pages to annotate")
	}

	provider, err := snapshotProvider(c.Context, cfg)
	if err != nil {
		return err
	}

	jobs := c.Int("jobs")
	if jobs <= 0 {
		jobs = 1
	}
	results := make([]pageResult, len(pages))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(c.Context)
	g.SetLimit(jobs)
	for i, page := range pages {
		g.Go(func() error {
			res, err := annotatePage(ctx, c, cfg, provider, page, c.Duration("timeout"))
			if err != nil {
				return fmt.Errorf("%s: %w", pathutil.ToRelative(page, cfg.Project.Root), err)
			}
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	total := 0
	for _, r := range results {
		total += r.Annotations
		fmt.Fprintf(c.App.Writer, "%s -> %s: %d annotations in %d leaves (%v)\n",
			pathutil.ToRelative(r.Input, cfg.Project.Root),
			pathutil.ToRelative(r.Output, cfg.Project.Root),
			r.Annotations, r.Leaves, r.Elapsed.Round(time.Millisecond))
	}
	fmt.Fprintf(c.App.Writer, "%d pages, %d annotations\n", len(results), total)
	return nil
}

// collectPages resolves explicit arguments, or globs the project root with
// the configured include/exclude patterns. Output is absolute, sorted and
// free of duplicates and previously written annotated copies.
func collectPages(cfg *config.Config, args []string) ([]string, error) {
	root := cfg.Project.Root
	seen := make(map[string]bool)
	var pages []string
	add := func(p string) {
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		p = filepath.Clean(p)
		if seen[p] || pathutil.IsAnnotatedOutput(p) {
			return
		}
		seen[p] = true
		pages = append(pages, p)
	}

	if len(args) > 0 {
		for _, a := range args {
			info, err := os.Stat(a)
			if err != nil {
				return nil, fmt.Errorf("failed to stat page: %w", err)
			}
			if info.IsDir() {
				return nil, fmt.Errorf("%s is a directory; use --root with --include", a)
			}
			abs, err := filepath.Abs(a)
			if err != nil {
				return nil, err
			}
			add(abs)
		}
		sort.Strings(pages)
		return pages, nil
	}

	includes := cfg.Output.Include
	if len(includes) == 0 {
		includes = defaultIncludes
	}
	fsys := os.DirFS(root)
	for _, pattern := range includes {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if excluded(m, cfg.Output.Exclude) || inOutputDir(m, cfg) {
				continue
			}
			add(filepath.FromSlash(m))
		}
	}
	sort.Strings(pages)
	return pages, nil
}

func excluded(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

// inOutputDir keeps a second run from annotating the first run's output
func inOutputDir(rel string, cfg *config.Config) bool {
	if cfg.Output.Dir == "" {
		return false
	}
	out := cfg.Output.Dir
	if !filepath.IsAbs(out) {
		out = filepath.Join(cfg.Project.Root, out)
	}
	relOut := pathutil.ToRelative(filepath.Clean(out), cfg.Project.Root)
	if filepath.IsAbs(relOut) || relOut == "." {
		return false
	}
	relOut = filepath.ToSlash(relOut)
	return rel == relOut || len(rel) > len(relOut) && rel[:len(relOut)+1] == relOut+"/"
}

// vocabularyPath resolves the configured vocabulary against the project root
func vocabularyPath(cfg *config.Config) (string, error) {
	p := cfg.Vocabulary.Path
	if p == "" {
		return "", errors.New("no vocabulary configured; pass --vocab or set vocabulary.path")
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(cfg.Project.Root, p)
	}
	return p, nil
}

// snapshotProvider reads the vocabulary once so every page engine shares it
func snapshotProvider(ctx context.Context, cfg *config.Config) (vocab.Provider, error) {
	path, err := vocabularyPath(cfg)
	if err != nil {
		return nil, err
	}
	snap, err := vocab.NewFileProvider(path).Snapshot(ctx)
	if err != nil && !lexerrors.IsDataError(err) {
		return nil, err
	}
	return vocab.NewStaticProvider(snap), nil
}

// annotatePage runs one engine to its first idle point on a private loop and
// writes the document out. Annotations are kept; only observation stops.
func annotatePage(ctx context.Context, c *cli.Context, cfg *config.Config, provider vocab.Provider, page string, timeout time.Duration) (pageResult, error) {
	started := time.Now()
	res := pageResult{Input: page, Output: pathutil.OutputPath(page, cfg.Project.Root, cfg.Output.Dir)}

	f, err := os.Open(page)
	if err != nil {
		return res, err
	}
	loop := host.NewLoop()
	defer loop.Close()
	doc, err := dom.Parse(f, loop)
	f.Close()
	if err != nil {
		return res, err
	}

	eng, err := engine.New(doc, loop, provider, cfg, engine.WithLogger(engineLogger(c)))
	if err != nil {
		return res, err
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan struct{})
	var once sync.Once
	eng.OnIdle(func() { once.Do(func() { close(done); cancel() }) })

	if err := eng.Start(runCtx); err != nil {
		return res, err
	}
	if err := loop.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		eng.Shutdown()
		return res, fmt.Errorf("annotation did not finish: %w", err)
	}
	eng.Shutdown()

	select {
	case <-done:
	default:
		if err := ctx.Err(); err != nil {
			return res, err
		}
		return res, errors.New("annotation did not finish")
	}

	stampGenerator(doc)
	if err := writeDocument(res.Output, doc); err != nil {
		return res, err
	}
	stats := eng.Stats()
	res.Annotations = stats.Live
	res.Leaves = stats.Scheduler.Leaves
	res.Elapsed = time.Since(started)
	return res, nil
}

func writeDocument(path string, doc *dom.Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.FileMode(0o644))
	if err != nil {
		return err
	}
	if err := doc.Render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// stampGenerator records the build that produced the output in the page head.
// Only call it once the engine no longer observes the document.
func stampGenerator(doc *dom.Document) {
	head := dom.FindElement(doc.Root(), atom.Head)
	if head == nil {
		return
	}
	content := version.Generator()
	for c := head.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Meta && isGenerator(c) {
			dom.SetAttr(c, "content", content)
			return
		}
	}
	head.AppendChild(&html.Node{
		Type:     html.ElementNode,
		Data:     "meta",
		DataAtom: atom.Meta,
		Attr: []html.Attribute{
			{Key: "name", Val: "generator"},
			{Key: "content", Val: content},
		},
	})
}

func isGenerator(n *html.Node) bool {
	name, _ := dom.Attr(n, "name")
	return name == "generator"
}
