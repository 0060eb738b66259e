package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/reelsmith/reelsmith-agent/internal/supplier"
)

var (
	fetchKeywords   string
	fetchOut        string
	fetchPerKeyword int
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [keyword...]",
	Short: "Download stock clips from Pexels",
	Long: `fetch searches Pexels for each keyword and downloads the widest rendition
of every hit. Keywords come from the arguments, or one per line from
--keywords. PEXELS_API_KEY must be set.`,
	RunE: runFetch,
}

func init() {
	f := fetchCmd.Flags()
	f.StringVar(&fetchKeywords, "keywords", "", "file with one keyword per line")
	f.StringVar(&fetchOut, "out", "", "download folder (default <data dir>/clips)")
	f.IntVar(&fetchPerKeyword, "per-keyword", 0, "clips per keyword (default from profile)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}

	keywords := args
	if fetchKeywords != "" {
		fromFile, err := supplier.LoadKeywords(fetchKeywords)
		if err != nil {
			return err
		}
		keywords = append(keywords, fromFile...)
	}
	if len(keywords) == 0 {
		return fmt.Errorf("no keywords given")
	}

	out := fetchOut
	if out == "" {
		out = a.cfg.ClipsDir()
	}
	if err := mkdirs(out); err != nil {
		return err
	}

	content := a.profile.Content
	if fetchPerKeyword > 0 {
		content.PerKeyword = fetchPerKeyword
	}

	client := supplier.NewClient(a.cfg.PexelsBaseURL(), a.cfg.PexelsAPIKey(), content.Timeout, a.logger)
	fetcher := supplier.NewFetcher(client, supplier.Options{
		PerKeyword:  content.PerKeyword,
		Delay:       content.APIDelay,
		Concurrency: content.Concurrency,
	}, a.logger)

	report, err := fetcher.Fetch(cmd.Context(), keywords, out)
	if report != nil {
		w := cmd.OutOrStdout()
		for _, c := range report.Clips {
			fmt.Fprintf(w, "%-40s %dx%d  %s\n", filepath.Base(c.Path), c.Width, c.Height, humanize.Bytes(uint64(c.Size)))
		}
		fmt.Fprintf(w, "%d clips, %s, %d failures\n", len(report.Clips), humanize.Bytes(uint64(report.Bytes)), len(report.Failures))
		if len(report.Failures) > 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "  "+strings.Join(report.Failures, "\n  "))
		}
	}
	return err
}
