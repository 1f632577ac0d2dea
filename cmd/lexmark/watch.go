package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/lexmark/internal/dom"
	"github.com/standardbeagle/lexmark/internal/engine"
	"github.com/standardbeagle/lexmark/internal/host"
	"github.com/standardbeagle/lexmark/internal/vocab"
	"github.com/standardbeagle/lexmark/pkg/pathutil"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Aliases:   []string{"w"},
		Usage:     "Keep a page annotated while its vocabulary file changes",
		ArgsUsage: "<page>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Output directory (default: name.lexmark.html next to the page)",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address (e.g., :9464)",
			},
		},
		Action: watchAction,
	}
}

func watchAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("usage: lexmark watch <page>")
	}
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	if out := c.String("out"); out != "" {
		cfg.Output.Dir = out
	}
	vocabPath, err := vocabularyPath(cfg)
	if err != nil {
		return err
	}
	page, err := filepath.Abs(c.Args().First())
	if err != nil {
		return err
	}
	output := pathutil.OutputPath(page, cfg.Project.Root, cfg.Output.Dir)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	f, err := os.Open(page)
	if err != nil {
		return err
	}
	loop := host.NewLoop()
	defer loop.Close()
	doc, err := dom.Parse(f, loop)
	f.Close()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	logger := engineLogger(c)
	eng, err := engine.New(doc, loop, vocab.NewFileProvider(vocabPath), cfg,
		engine.WithLogger(logger), engine.WithRegisterer(reg))
	if err != nil {
		return err
	}
	eng.OnIdle(func() {
		if err := writeDocument(output, doc); err != nil {
			logger.Printf("write %s: %v", output, err)
			return
		}
		s := eng.Stats()
		fmt.Fprintf(c.App.Writer, "%s: %d annotations (generation %d)\n",
			pathutil.ToRelative(output, cfg.Project.Root), s.Live, s.Generation)
	})

	if addr := c.String("metrics-addr"); addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("metrics server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	w, err := vocab.NewWatcher(vocabPath, cfg.Vocabulary.WatchDebounce(), func() {
		if err := eng.Rehighlight(ctx); err != nil && !errors.Is(err, engine.ErrDisposed) {
			logger.Printf("rehighlight: %v", err)
		}
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	if err := eng.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(c.App.ErrWriter, "watching %s (Ctrl-C to stop)\n", vocabPath)

	err = loop.Run(ctx)
	eng.Shutdown()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}
