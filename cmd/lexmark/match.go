package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/lexmark/internal/dictionary"
	"github.com/standardbeagle/lexmark/internal/match"
	"github.com/standardbeagle/lexmark/internal/vocab"
)

func matchCommand() *cli.Command {
	return &cli.Command{
		Name:      "match",
		Aliases:   []string{"m"},
		Usage:     "Show which vocabulary a piece of text would annotate",
		ArgsUsage: "<text...> (reads stdin when omitted)",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print spans as JSON",
			},
		},
		Action: matchAction,
	}
}

// spanOutput is one matched span as printed by the match command
type spanOutput struct {
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Text        string `json:"text"`
	Key         string `json:"key"`
	Category    string `json:"category"`
	Translation string `json:"translation"`
	UsageCount  int    `json:"usage_count"`
}

func matchAction(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}

	text := strings.Join(c.Args().Slice(), " ")
	if c.NArg() == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		text = string(b)
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("usage: lexmark match <text>")
	}

	path, err := vocabularyPath(cfg)
	if err != nil {
		return err
	}
	entries, err := vocab.Load(c.Context, vocab.NewFileProvider(path))
	if entries == nil && err != nil {
		return err
	}
	if err != nil && !c.Bool("quiet") {
		fmt.Fprintf(c.App.ErrWriter, "warning: %v\n", err)
	}

	idx := dictionary.Build(entries, cfg.Dictionary.MaxEntries)
	spans := matchSpans(text, idx)
	return printSpans(c.App.Writer, spans, c.Bool("json"))
}

func matchSpans(text string, idx *dictionary.Index) []spanOutput {
	r := match.Leaf(text, idx, nil)
	out := make([]spanOutput, 0, len(r.Spans))
	for _, s := range r.Spans {
		out = append(out, spanOutput{
			Start:       s.Start,
			End:         s.End,
			Text:        text[s.Start:s.End],
			Key:         s.Entry.Key,
			Category:    string(s.Entry.Category),
			Translation: s.Entry.Translation,
			UsageCount:  s.Entry.UsageCount,
		})
	}
	return out
}

func printSpans(w io.Writer, spans []spanOutput, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(spans)
	}
	if len(spans) == 0 {
		fmt.Fprintln(w, "no matches")
		return nil
	}
	for _, s := range spans {
		fmt.Fprintf(w, "%d-%d\t%q\t%s\t%s\n", s.Start, s.End, s.Text, s.Key, s.Translation)
	}
	return nil
}
