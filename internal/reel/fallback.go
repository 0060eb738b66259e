package reel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/reelsmith/reelsmith-agent/internal/logging"
	"github.com/reelsmith/reelsmith-agent/internal/media"
)

// Tier is one fallback strategy, attempted in declaration order.
type Tier int

const (
	TierPrimary Tier = iota
	TierSecondary
	TierPlaceholder
)

func (t Tier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	case TierPlaceholder:
		return "placeholder"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Attempt is the outcome of running one tier.
type Attempt struct {
	Tier    Tier          `json:"tier"`
	Err     error         `json:"-"`
	Skipped bool          `json:"skipped,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// Error is the attempt's failure text, empty on success.
func (a Attempt) Error() string {
	if a.Err == nil {
		return ""
	}
	return a.Err.Error()
}

// NextTier decides what to run given the attempts so far. It returns false
// once a tier has succeeded or the placeholder tier has been tried.
func NextTier(history []Attempt) (Tier, bool) {
	if len(history) == 0 {
		return TierPrimary, true
	}
	last := history[len(history)-1]
	if last.Err == nil {
		return last.Tier, false
	}
	if last.Tier >= TierPlaceholder {
		return last.Tier, false
	}
	return last.Tier + 1, true
}

// Request is one render invocation.
type Request struct {
	AudioPath  string
	ClipsDir   string
	OutputPath string

	// Seed drives start offsets and transition choice; zero picks one from
	// the clock and reports it in the Result.
	Seed uint64

	// WorkDir is the parent for this render's temporary directory.
	WorkDir string
}

type Result struct {
	Output   *OutputVideo `json:"output"`
	Tier     Tier         `json:"tier"`
	Plan     *Plan        `json:"plan,omitempty"`
	Grid     *BeatGrid    `json:"grid,omitempty"`
	Attempts []Attempt    `json:"attempts"`
	Seed     uint64       `json:"seed"`
}

// Controller runs the tiers for a render request.
type Controller struct {
	ff     media.FFmpeg
	caps   RendererCapabilities
	opts   Options
	logger *slog.Logger

	analyzer   *Analyzer
	normalizer *Normalizer
	renderer   *Renderer
}

func NewController(ff media.FFmpeg, caps RendererCapabilities, opts Options, logger *slog.Logger) *Controller {
	opts = opts.withDefaults()
	logger = logging.WithComponent(logger, "reel")
	return &Controller{
		ff:         ff,
		caps:       caps,
		opts:       opts,
		logger:     logger,
		analyzer:   NewAnalyzer(ff, opts.SampleRate, opts.DefaultDuration, logger),
		normalizer: NewNormalizer(ff, opts.Width, opts.Height, logger),
		renderer:   NewRenderer(ff, opts, logger),
	}
}

func (c *Controller) Capabilities() RendererCapabilities {
	return c.caps
}

// renderState is shared by the tiers of one render.
type renderState struct {
	req       Request
	work      string
	clipPaths []string
	audioDur  float64
	seed      uint64
	plan      *Plan
	grid      *BeatGrid
}

// Render produces req.OutputPath. Unreadable audio and an empty clip folder
// fail before any tier runs. Otherwise the tiers run in order until one
// succeeds; if none does the error is a *TotalFailure.
func (c *Controller) Render(ctx context.Context, req Request) (*Result, error) {
	if err := CheckAudio(req.AudioPath); err != nil {
		return nil, err
	}
	clipPaths, err := ScanClips(req.ClipsDir)
	if err != nil {
		return nil, err
	}

	if req.WorkDir != "" {
		if err := os.MkdirAll(req.WorkDir, 0755); err != nil {
			return nil, fmt.Errorf("cannot create work dir: %w", err)
		}
	}
	work, err := os.MkdirTemp(req.WorkDir, "render-*")
	if err != nil {
		return nil, fmt.Errorf("cannot create work dir: %w", err)
	}
	defer c.cleanup(work)

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0755); err != nil {
		return nil, fmt.Errorf("cannot create output dir: %w", err)
	}

	seed := req.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	st := &renderState{
		req:       req,
		work:      work,
		clipPaths: clipPaths,
		audioDur:  c.audioDuration(ctx, req.AudioPath),
		seed:      seed,
	}

	c.logger.Info("render started",
		"clips", len(clipPaths),
		"audio_duration", fmt.Sprintf("%.2f", st.audioDur),
		"seed", seed,
		"output", logging.SanitizePath(req.OutputPath),
	)

	var history []Attempt
	for {
		tier, ok := NextTier(history)
		if !ok {
			break
		}

		tlog := logging.WithTier(c.logger, tier.String())
		start := time.Now()
		os.Remove(req.OutputPath)

		out, skipped, err := c.runTier(ctx, tier, st)
		attempt := Attempt{Tier: tier, Err: err, Skipped: skipped, Elapsed: time.Since(start)}
		history = append(history, attempt)

		if err == nil {
			tlog.Info("render completed",
				"duration", fmt.Sprintf("%.2f", out.Duration),
				"elapsed_ms", attempt.Elapsed.Milliseconds(),
			)
			res := &Result{Output: out, Tier: tier, Attempts: history, Seed: seed}
			if tier == TierPrimary {
				res.Plan, res.Grid = st.plan, st.grid
			}
			return res, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			os.Remove(req.OutputPath)
			return nil, fmt.Errorf("render cancelled during %s tier: %w", tier, ctxErr)
		}

		if skipped {
			tlog.Warn("tier skipped", "reason", err)
		} else {
			tlog.Warn("tier failed, falling back", "error", err)
		}
	}

	os.Remove(req.OutputPath)
	failure := &TotalFailure{Attempts: history}
	c.logger.Error("render failed in every tier", "error", failure)
	return nil, failure
}

func (c *Controller) runTier(ctx context.Context, tier Tier, st *renderState) (*OutputVideo, bool, error) {
	work := filepath.Join(st.work, tier.String())
	switch tier {
	case TierPrimary:
		if !c.caps.CanRenderTransitions() {
			return nil, true, fmt.Errorf("%w: %v", ErrCapabilityMissing, c.caps.Missing())
		}
		out, err := c.renderPrimary(ctx, work, st)
		return out, false, err
	case TierSecondary:
		if !c.caps.CanConcat() {
			return nil, true, fmt.Errorf("%w: %v", ErrCapabilityMissing, c.caps.Missing())
		}
		out, err := c.renderSecondary(ctx, work, st)
		return out, false, err
	case TierPlaceholder:
		if !c.caps.CanPlaceholder() {
			return nil, true, fmt.Errorf("%w: %v", ErrCapabilityMissing, c.caps.Missing())
		}
		out, err := c.renderPlaceholder(ctx, work, st)
		return out, false, err
	}
	return nil, false, fmt.Errorf("unknown tier %d", int(tier))
}

// Prepare runs analysis, normalization and planning without encoding.
func (c *Controller) Prepare(ctx context.Context, audio, clipsDir string, seed uint64) (*Plan, *BeatGrid, error) {
	if err := CheckAudio(audio); err != nil {
		return nil, nil, err
	}
	grid, err := c.analyzer.Analyze(ctx, audio)
	if err != nil {
		return nil, nil, err
	}
	clips, err := c.normalizer.Normalize(ctx, clipsDir)
	if err != nil {
		return nil, &grid, err
	}
	plan, err := PlanSegments(grid, clips, NewRand(seed), c.opts.Plan)
	if err != nil {
		return nil, &grid, err
	}
	plan.Seed = seed
	return plan, &grid, nil
}

func (c *Controller) renderPrimary(ctx context.Context, work string, st *renderState) (*OutputVideo, error) {
	plan, grid, err := c.Prepare(ctx, st.req.AudioPath, st.req.ClipsDir, st.seed)
	if err != nil {
		return nil, err
	}
	st.plan, st.grid = plan, grid

	c.logger.Info("segments planned",
		"mode", plan.Mode,
		"segments", len(plan.Segments),
		"target", fmt.Sprintf("%.2f", plan.Target),
		"beats_per_clip", plan.BeatsPerClip,
	)

	clips := make([]RenderedClip, len(plan.Segments))
	for i, seg := range plan.Segments {
		clips[i] = Apply(seg, c.opts.Width, c.opts.Height, c.opts.FPS)
	}
	return c.renderer.Render(ctx, work, clips, st.req.AudioPath, st.req.OutputPath)
}

// renderSecondary splits the audio duration evenly across the clip files
// and concatenates them without effects.
func (c *Controller) renderSecondary(ctx context.Context, work string, st *renderState) (*OutputVideo, error) {
	if err := os.MkdirAll(work, 0755); err != nil {
		return nil, err
	}

	perClip := st.audioDur / float64(len(st.clipPaths))
	list := filepath.Join(work, "clips.txt")
	if err := WriteConcatList(list, st.clipPaths, perClip); err != nil {
		return nil, &EncodeError{Stage: "concat-list", Segment: -1, Err: err}
	}

	w, h, fps := c.opts.Width, c.opts.Height, c.opts.FPS
	video := ffmpeg.Input(list, ffmpeg.KwArgs{"f": "concat", "safe": "0"})
	track := ffmpeg.Input(st.req.AudioPath)
	stream := ffmpeg.Output([]*ffmpeg.Stream{video.Video(), track.Audio()}, st.req.OutputPath, ffmpeg.KwArgs{
		"vf": fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,setsar=1,fps=%d",
			w, h, w, h, fps),
		"c:v":      "libx264",
		"preset":   c.opts.Preset,
		"crf":      c.opts.CRF,
		"pix_fmt":  "yuv420p",
		"c:a":      "aac",
		"t":        secs(st.audioDur),
		"movflags": "+faststart",
	})

	if res, err := c.ff.Run(ctx, media.NewCommand("simple-concat", stream, st.req.OutputPath)); err != nil {
		return nil, &EncodeError{Stage: "simple-concat", Segment: -1, Err: err, StderrTail: res.StderrTail}
	}
	return c.renderer.finish(ctx, st.req.OutputPath, st.req.AudioPath, st.audioDur)
}

// renderPlaceholder writes a solid-colour video the length of the audio.
func (c *Controller) renderPlaceholder(ctx context.Context, work string, st *renderState) (*OutputVideo, error) {
	src := fmt.Sprintf("color=c=%s:s=%dx%d:r=%d:d=%s",
		c.opts.PlaceholderColor, c.opts.Width, c.opts.Height, c.opts.FPS, secs(st.audioDur))

	video := ffmpeg.Input(src, ffmpeg.KwArgs{"f": "lavfi"})
	track := ffmpeg.Input(st.req.AudioPath)
	stream := ffmpeg.Output([]*ffmpeg.Stream{video.Video(), track.Audio()}, st.req.OutputPath, ffmpeg.KwArgs{
		"c:v":     "libx264",
		"preset":  c.opts.Preset,
		"pix_fmt": "yuv420p",
		"c:a":     "aac",
		"t":       secs(st.audioDur),
	})

	if res, err := c.ff.Run(ctx, media.NewCommand("placeholder", stream, st.req.OutputPath)); err != nil {
		return nil, &EncodeError{Stage: "placeholder", Segment: -1, Err: err, StderrTail: res.StderrTail}
	}
	return c.renderer.finish(ctx, st.req.OutputPath, st.req.AudioPath, st.audioDur)
}

// audioDuration is the probed audio length, or the default when the probe
// fails.
func (c *Controller) audioDuration(ctx context.Context, path string) float64 {
	probe, err := c.ff.Probe(ctx, path)
	if err != nil || probe.Duration <= 0 {
		c.logger.Warn("audio duration unknown, using default", "default", c.opts.DefaultDuration, "error", err)
		return c.opts.DefaultDuration
	}
	return probe.Duration
}

func (c *Controller) cleanup(work string) {
	if c.opts.KeepIntermediates {
		c.logger.Info("keeping intermediates", "work_dir", logging.SanitizePath(work))
		return
	}
	if err := os.RemoveAll(work); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("failed to remove work dir", "error", err)
	}
}
