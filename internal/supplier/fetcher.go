package supplier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

// Options tunes a Fetcher.
type Options struct {
	PerKeyword  int
	Delay       time.Duration // pause between search requests
	Concurrency int           // parallel downloads
}

// Clip is one downloaded stock video.
type Clip struct {
	Keyword string `json:"keyword"`
	VideoID int    `json:"video_id"`
	Path    string `json:"path"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Size    int64  `json:"size"`
}

// Report summarises a Fetch.
type Report struct {
	Clips    []Clip   `json:"clips"`
	Failures []string `json:"failures,omitempty"`
	Bytes    int64    `json:"bytes"`
}

type Fetcher struct {
	client *Client
	opts   Options
	logger *slog.Logger
}

func NewFetcher(client *Client, opts Options, logger *slog.Logger) *Fetcher {
	if opts.PerKeyword <= 0 {
		opts.PerKeyword = 2
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	return &Fetcher{client: client, opts: opts, logger: logger}
}

type download struct {
	keyword string
	index   int
	video   Video
	file    VideoFile
}

// Fetch searches every keyword in turn, then downloads the widest rendition
// of each hit into outDir with bounded parallelism. Individual failures are
// reported, not returned; the error is non-nil only when the context ends
// or nothing at all could be fetched.
func (f *Fetcher) Fetch(ctx context.Context, keywords []string, outDir string) (*Report, error) {
	if len(keywords) == 0 {
		return nil, fmt.Errorf("no keywords to fetch")
	}
	if unique := UniqueKeywords(keywords); len(unique) < len(keywords) {
		f.logger.Info("dropped duplicate keywords", "given", len(keywords), "kept", len(unique))
		keywords = unique
	}

	report := &Report{}
	var queue []download
	for i, kw := range keywords {
		if i > 0 && f.opts.Delay > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(f.opts.Delay):
			}
		}

		videos, err := f.client.Search(ctx, kw, f.opts.PerKeyword)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			if errors.Is(err, ErrNoAPIKey) {
				return report, err
			}
			f.logger.Warn("keyword search failed", "keyword", kw, "error", err)
			report.Failures = append(report.Failures, fmt.Sprintf("%s: %v", kw, err))
			continue
		}
		if len(videos) == 0 {
			f.logger.Info("no videos for keyword", "keyword", kw)
			continue
		}

		for idx, v := range videos {
			file, ok := v.BestFile()
			if !ok {
				continue
			}
			queue = append(queue, download{keyword: kw, index: idx + 1, video: v, file: file})
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.Concurrency)
	for _, d := range queue {
		g.Go(func() error {
			dest := filepath.Join(outDir, ClipFileName(d.keyword, d.index))
			n, err := f.client.Download(gctx, d.file.Link, dest)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				f.logger.Warn("clip download failed", "keyword", d.keyword, "video_id", d.video.ID, "error", err)
				report.Failures = append(report.Failures, fmt.Sprintf("%s #%d: %v", d.keyword, d.index, err))
				return nil
			}
			report.Clips = append(report.Clips, Clip{
				Keyword: d.keyword,
				VideoID: d.video.ID,
				Path:    dest,
				Width:   d.file.Width,
				Height:  d.file.Height,
				Size:    n,
			})
			report.Bytes += n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	sort.Slice(report.Clips, func(i, j int) bool {
		return report.Clips[i].Path < report.Clips[j].Path
	})

	f.logger.Info("fetch completed",
		"keywords", len(keywords),
		"clips", len(report.Clips),
		"failures", len(report.Failures),
		"total", humanize.Bytes(uint64(report.Bytes)),
	)

	if len(report.Clips) == 0 && len(report.Failures) > 0 {
		return report, fmt.Errorf("no clips fetched: %s", report.Failures[0])
	}
	return report, nil
}
