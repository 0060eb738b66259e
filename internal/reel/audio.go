package reel

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/reelsmith/reelsmith-agent/internal/media"
)

// BeatGrid is the analysis of one audio track. A grid with fewer than two
// beats is degraded: planning then falls back to fixed intervals over
// Duration.
type BeatGrid struct {
	Path       string    `json:"path"`
	SampleRate int       `json:"sample_rate"`
	Duration   float64   `json:"duration"`
	Tempo      float64   `json:"tempo"`
	Beats      []float64 `json:"beats"`
	Degraded   string    `json:"degraded,omitempty"`
}

// Reliable reports whether the grid has enough beats to drive cuts.
func (g BeatGrid) Reliable() bool {
	return len(g.Beats) >= 2
}

// Span is the time between the first and last beat.
func (g BeatGrid) Span() float64 {
	if !g.Reliable() {
		return 0
	}
	return g.Beats[len(g.Beats)-1] - g.Beats[0]
}

// Analyzer extracts tempo and beats from an audio file.
type Analyzer struct {
	ff              media.FFmpeg
	logger          *slog.Logger
	sampleRate      int
	defaultDuration float64
}

func NewAnalyzer(ff media.FFmpeg, sampleRate int, defaultDuration float64, logger *slog.Logger) *Analyzer {
	if sampleRate <= 0 {
		sampleRate = media.DefaultSampleRate
	}
	if defaultDuration <= 0 {
		defaultDuration = DefaultDuration
	}
	return &Analyzer{ff: ff, logger: logger, sampleRate: sampleRate, defaultDuration: defaultDuration}
}

// CheckAudio fails with ErrAudioUnreadable when path cannot be opened as a
// regular file.
func CheckAudio(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAudioUnreadable, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAudioUnreadable, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrAudioUnreadable, path)
	}
	return nil
}

// Analyze never fails for missing beats. The only errors are
// ErrAudioUnreadable and context cancellation.
func (a *Analyzer) Analyze(ctx context.Context, path string) (BeatGrid, error) {
	grid := BeatGrid{Path: path, SampleRate: a.sampleRate}

	if err := CheckAudio(path); err != nil {
		return grid, err
	}

	if probe, err := a.ff.Probe(ctx, path); err != nil {
		a.logger.Warn("audio probe failed, duration will be estimated", "error", err)
	} else {
		grid.Duration = probe.Duration
	}

	samples, err := a.ff.DecodePCM(ctx, path, a.sampleRate)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return grid, ctxErr
	}
	if err != nil {
		grid.Degraded = fmt.Sprintf("decode failed: %v", err)
		a.finishDuration(&grid, 0)
		a.logger.Warn("beat analysis degraded", "reason", grid.Degraded, "duration", grid.Duration)
		return grid, nil
	}

	a.finishDuration(&grid, len(samples))

	grid.Tempo, grid.Beats = DetectBeats(samples, a.sampleRate)
	if !grid.Reliable() {
		grid.Degraded = fmt.Sprintf("only %d beats detected", len(grid.Beats))
		a.logger.Warn("beat analysis degraded", "reason", grid.Degraded, "duration", grid.Duration)
		return grid, nil
	}

	a.logger.Info("beats detected",
		"tempo", fmt.Sprintf("%.1f", grid.Tempo),
		"beats", len(grid.Beats),
		"span", fmt.Sprintf("%.2f", grid.Span()),
		"duration", fmt.Sprintf("%.2f", grid.Duration),
	)
	return grid, nil
}

func (a *Analyzer) finishDuration(grid *BeatGrid, samples int) {
	if grid.Duration <= 0 && samples > 0 {
		grid.Duration = float64(samples) / float64(a.sampleRate)
	}
	if grid.Duration <= 0 {
		grid.Duration = a.defaultDuration
	}
}
