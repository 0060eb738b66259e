package reel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/reelsmith/reelsmith-agent/internal/media"
)

// OutputVideo is the finished file.
type OutputVideo struct {
	Path       string  `json:"path"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FPS        int     `json:"fps"`
	VideoCodec string  `json:"video_codec"`
	AudioCodec string  `json:"audio_codec"`
	AudioPath  string  `json:"audio_path"`
	Duration   float64 `json:"duration"`
	Size       int64   `json:"size"`
}

// Renderer encodes rendered clips and muxes them with the audio track.
type Renderer struct {
	ff     media.FFmpeg
	opts   Options
	logger *slog.Logger
}

func NewRenderer(ff media.FFmpeg, opts Options, logger *slog.Logger) *Renderer {
	return &Renderer{ff: ff, opts: opts.withDefaults(), logger: logger}
}

// Render encodes every clip into work, concatenates them in order and
// attaches audio as the only audio stream.
func (r *Renderer) Render(ctx context.Context, work string, clips []RenderedClip, audio, out string) (*OutputVideo, error) {
	if len(clips) == 0 {
		return nil, &EncodeError{Stage: "render", Segment: -1, Err: errors.New("nothing to render")}
	}
	if err := os.MkdirAll(work, 0755); err != nil {
		return nil, fmt.Errorf("cannot create work dir: %w", err)
	}

	encoded := make([]string, 0, len(clips))
	var expected float64
	for i := range clips {
		rc, err := r.EncodeSegment(ctx, work, clips[i])
		if err != nil {
			return nil, err
		}
		clips[i] = rc
		encoded = append(encoded, rc.Path)
		expected += rc.Segment.Duration
	}

	list := filepath.Join(work, "segments.txt")
	if err := WriteConcatList(list, encoded, 0); err != nil {
		return nil, &EncodeError{Stage: "concat-list", Segment: -1, Err: err}
	}

	video := ffmpeg.Input(list, ffmpeg.KwArgs{"f": "concat", "safe": "0"})
	track := ffmpeg.Input(audio)
	stream := ffmpeg.Output([]*ffmpeg.Stream{video.Video(), track.Audio()}, out, ffmpeg.KwArgs{
		"c:v":      "copy",
		"c:a":      "aac",
		"shortest": "",
		"movflags": "+faststart",
	})

	if res, err := r.ff.Run(ctx, media.NewCommand("mux", stream, out)); err != nil {
		return nil, &EncodeError{Stage: "mux", Segment: -1, Err: err, StderrTail: res.StderrTail}
	}

	return r.finish(ctx, out, audio, expected)
}

// EncodeSegment writes one clip to work. A failure with the transition is
// retried once with the plain chain before giving up.
func (r *Renderer) EncodeSegment(ctx context.Context, work string, rc RenderedClip) (RenderedClip, error) {
	path := filepath.Join(work, fmt.Sprintf("seg_%04d.mp4", rc.Segment.Index))

	res, err := r.ff.Run(ctx, r.segmentCommand("segment", rc.Segment, rc.Filter, path))
	if err == nil {
		rc.Path = path
		return rc, nil
	}
	if ctx.Err() != nil {
		return rc, ctx.Err()
	}

	r.logger.Warn("segment transition failed, substituting plain cut",
		"segment", rc.Segment.Index,
		"transition", rc.Segment.Transition.String(),
		"error", err,
	)

	res, err = r.ff.Run(ctx, r.segmentCommand("segment-plain", rc.Segment, rc.Plain, path))
	if err != nil {
		return rc, &EncodeError{Stage: "segment", Segment: rc.Segment.Index, Err: err, StderrTail: res.StderrTail}
	}
	rc.Path = path
	return rc, nil
}

func (r *Renderer) segmentCommand(stage string, seg Segment, filter, path string) media.Command {
	stream := ffmpeg.Input(seg.ClipPath, ffmpeg.KwArgs{
		"ss": secs(seg.Start),
		"t":  secs(seg.Duration),
	}).Output(path, ffmpeg.KwArgs{
		"map":     "0:v:0",
		"vf":      filter,
		"c:v":     "libx264",
		"preset":  r.opts.Preset,
		"crf":     r.opts.CRF,
		"r":       r.opts.FPS,
		"pix_fmt": "yuv420p",
	})
	return media.NewCommand(stage, stream, path)
}

// finish checks the output exists and fills in its probed duration, falling
// back to expected when ffprobe cannot read it.
func (r *Renderer) finish(ctx context.Context, out, audio string, expected float64) (*OutputVideo, error) {
	info, err := os.Stat(out)
	if err != nil {
		return nil, &EncodeError{Stage: "verify", Segment: -1, Err: err}
	}
	if info.Size() == 0 {
		return nil, &EncodeError{Stage: "verify", Segment: -1, Err: fmt.Errorf("%s is empty", filepath.Base(out))}
	}

	video := &OutputVideo{
		Path:       out,
		Width:      r.opts.Width,
		Height:     r.opts.Height,
		FPS:        r.opts.FPS,
		VideoCodec: "h264",
		AudioCodec: "aac",
		AudioPath:  audio,
		Duration:   expected,
		Size:       info.Size(),
	}
	if probe, err := r.ff.Probe(ctx, out); err == nil && probe.Duration > 0 {
		video.Duration = probe.Duration
	}
	return video, nil
}

// WriteConcatList writes an ffmpeg concat demuxer script. A positive
// outpoint caps how much of each file is read.
func WriteConcatList(path string, files []string, outpoint float64) error {
	var b strings.Builder
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
		if outpoint > 0 {
			fmt.Fprintf(&b, "outpoint %s\n", secs(outpoint))
		}
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}
