package caption

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/reelsmith/reelsmith-agent/internal/logging"
	"github.com/reelsmith/reelsmith-agent/internal/media"
)

// ErrNoSpeech means the transcription produced no usable cues.
var ErrNoSpeech = errors.New("no speech recognised")

type Mode string

const (
	ModeBurned Mode = "burned"
	ModeSoft   Mode = "soft"
)

// Options tunes a Captioner.
type Options struct {
	MaxWords int
	Style    Style
	BurnIn   bool
	Preset   string
	CRF      int

	// CanBurn reports whether the ffmpeg build has the subtitles filter.
	CanBurn bool
}

// Request captions VideoPath into OutputPath. Speech is taken from
// AudioPath when set, else from the video itself. The regrouped cues are
// written to SRTPath, or next to the output when empty.
type Request struct {
	VideoPath  string
	AudioPath  string
	OutputPath string
	SRTPath    string
}

type Result struct {
	OutputPath string `json:"output_path"`
	SRTPath    string `json:"srt_path"`
	Cues       int    `json:"cues"`
	Mode       Mode   `json:"mode"`
}

type Captioner struct {
	transcriber Transcriber
	ff          media.FFmpeg
	opts        Options
	logger      *slog.Logger
}

func NewCaptioner(t Transcriber, ff media.FFmpeg, opts Options, logger *slog.Logger) *Captioner {
	if opts.MaxWords <= 0 {
		opts.MaxWords = DefaultMaxWords
	}
	if opts.Style.FontName == "" {
		opts.Style = DefaultStyle()
	}
	if opts.Preset == "" {
		opts.Preset = "ultrafast"
	}
	if opts.CRF <= 0 {
		opts.CRF = 23
	}
	return &Captioner{transcriber: t, ff: ff, opts: opts, logger: logging.WithComponent(logger, "caption")}
}

// Caption transcribes, regroups and attaches subtitles. A failed burn-in
// falls back to a soft subtitle track.
func (c *Captioner) Caption(ctx context.Context, req Request) (*Result, error) {
	if req.VideoPath == "" || req.OutputPath == "" {
		return nil, fmt.Errorf("caption: video and output paths are required")
	}
	source := req.AudioPath
	if source == "" {
		source = req.VideoPath
	}
	srtPath := req.SRTPath
	if srtPath == "" {
		srtPath = strings.TrimSuffix(req.OutputPath, filepath.Ext(req.OutputPath)) + ".srt"
	}

	raw, err := c.transcriber.Transcribe(ctx, source)
	if err != nil {
		return nil, err
	}
	cues, err := ParseSRT(strings.NewReader(raw))
	if err != nil {
		return nil, err
	}
	cues = Regroup(cues, c.opts.MaxWords)
	if len(cues) == 0 {
		return nil, ErrNoSpeech
	}

	if err := os.MkdirAll(filepath.Dir(srtPath), 0755); err != nil {
		return nil, fmt.Errorf("cannot create subtitle dir: %w", err)
	}
	if err := WriteSRT(srtPath, cues); err != nil {
		return nil, err
	}

	res := &Result{OutputPath: req.OutputPath, SRTPath: srtPath, Cues: len(cues)}

	if c.opts.BurnIn && c.opts.CanBurn {
		cmd := BurnInCommand(req.VideoPath, srtPath, req.OutputPath, c.opts.Style, c.opts.Preset, c.opts.CRF)
		err := runStage(ctx, c.ff, cmd)
		if err == nil {
			res.Mode = ModeBurned
			c.logger.Info("subtitles burned in", "cues", len(cues), "output", logging.SanitizePath(req.OutputPath))
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("burn-in failed, attaching soft subtitles", "error", err)
	}

	if err := runStage(ctx, c.ff, SoftSubtitleCommand(req.VideoPath, srtPath, req.OutputPath)); err != nil {
		os.Remove(req.OutputPath)
		return nil, err
	}
	res.Mode = ModeSoft
	c.logger.Info("soft subtitles attached", "cues", len(cues), "output", logging.SanitizePath(req.OutputPath))
	return res, nil
}
