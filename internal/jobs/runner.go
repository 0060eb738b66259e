package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reelsmith/reelsmith-agent/internal/caption"
	"github.com/reelsmith/reelsmith-agent/internal/export"
	"github.com/reelsmith/reelsmith-agent/internal/logging"
	"github.com/reelsmith/reelsmith-agent/internal/reel"
)

// Renderer is satisfied by *reel.Controller.
type Renderer interface {
	Render(ctx context.Context, req reel.Request) (*reel.Result, error)
}

// Captioner is satisfied by *caption.Captioner.
type Captioner interface {
	Caption(ctx context.Context, req caption.Request) (*caption.Result, error)
}

type RunnerConfig struct {
	Repository Repository
	Renderer   Renderer

	// Captioner may be nil; captioned renders then complete uncaptioned.
	Captioner Captioner

	WorkDir       string
	RenderTimeout time.Duration
	PollInterval  time.Duration
	Logger        *slog.Logger

	// FrameRate is the output fps used for EDL timecodes.
	FrameRate float64
}

// Runner takes pending renders from the repository one at a time.
type Runner struct {
	repo          Repository
	renderer      Renderer
	captioner     Captioner
	workDir       string
	renderTimeout time.Duration
	frameRate     float64
	logger        *slog.Logger
	pollInterval  time.Duration
	running       atomic.Bool
	paused        atomic.Bool

	mu     sync.Mutex
	active string
}

func NewRunner(cfg RunnerConfig) *Runner {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &Runner{
		repo:          cfg.Repository,
		renderer:      cfg.Renderer,
		captioner:     cfg.Captioner,
		workDir:       cfg.WorkDir,
		renderTimeout: cfg.RenderTimeout,
		frameRate:     cfg.FrameRate,
		logger:        logging.WithComponent(cfg.Logger, "runner"),
		pollInterval:  poll,
	}
}

func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("render runner started", "poll_interval", r.pollInterval)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("render runner stopping")
			r.running.Store(false)
			return
		case <-ticker.C:
			if !r.paused.Load() {
				r.processNext(ctx)
			}
		}
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("render runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("render runner resumed")
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// ActiveRender returns the id of the render in progress, or "".
func (r *Runner) ActiveRender() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Runner) setActive(id string) {
	r.mu.Lock()
	r.active = id
	r.mu.Unlock()
}

// processNext runs the oldest pending render. It reports whether one ran.
func (r *Runner) processNext(ctx context.Context) bool {
	pending, err := r.repo.ListPendingRenders(ctx)
	if err != nil {
		r.logger.Error("failed to list pending renders", "error", err)
		return false
	}
	if len(pending) == 0 {
		return false
	}

	render := pending[0]
	claimed, err := r.repo.ClaimRender(ctx, render.ID)
	if err != nil {
		r.logger.Error("failed to claim render", "render_id", render.ID, "error", err)
		return false
	}
	if !claimed {
		return false
	}
	render.Status = StatusRunning

	r.setActive(render.ID)
	defer r.setActive("")

	r.processRender(ctx, render)
	return true
}

func (r *Runner) processRender(ctx context.Context, render *Render) {
	log := logging.WithRenderID(r.logger, render.ID)
	log.Info("processing render", "clips_dir", logging.SanitizePath(render.ClipsDir))

	rctx := ctx
	if r.renderTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, r.renderTimeout)
		defer cancel()
	}

	res, err := r.renderer.Render(rctx, reel.Request{
		AudioPath:  render.AudioPath,
		ClipsDir:   render.ClipsDir,
		OutputPath: render.OutputPath,
		Seed:       render.Seed,
		WorkDir:    r.workDir,
	})
	if err != nil {
		var total *reel.TotalFailure
		if errors.As(err, &total) {
			render.Attempts = recordAttempts(total.Attempts)
		}
		render.Status = StatusFailed
		render.Error = err.Error()
		r.save(ctx, log, render)
		log.Error("render failed", "error", err)
		return
	}

	render.Seed = res.Seed
	render.Tier = res.Tier.String()
	render.Attempts = recordAttempts(res.Attempts)
	if res.Plan != nil {
		render.Mode = string(res.Plan.Mode)
		render.SegmentCount = len(res.Plan.Segments)
		render.EDLPath = r.writeEDL(log, render, res.Plan)
	}

	if render.Caption {
		render.CaptionedPath, render.Error = r.caption(rctx, log, render)
	}

	render.Status = StatusCompleted
	r.save(ctx, log, render)
	log.Info("render completed", "tier", render.Tier, "segments", render.SegmentCount)
}

// writeEDL stores the plan next to the output. A failure only costs the
// EDL.
func (r *Runner) writeEDL(log *slog.Logger, render *Render, plan *reel.Plan) string {
	path := strings.TrimSuffix(render.OutputPath, filepath.Ext(render.OutputPath)) + ".edl"
	title := strings.TrimSuffix(filepath.Base(render.OutputPath), filepath.Ext(render.OutputPath))
	if err := export.WritePlanEDL(path, plan, export.Options{
		Title:     title,
		FrameRate: r.frameRate,
		AudioPath: render.AudioPath,
	}); err != nil {
		log.Warn("failed to write edl", "error", err)
		return ""
	}
	return path
}

// caption returns the captioned file, or the error message to record on an
// otherwise successful render.
func (r *Runner) caption(ctx context.Context, log *slog.Logger, render *Render) (string, string) {
	if r.captioner == nil {
		log.Warn("captioning requested but no transcriber is configured")
		return "", "captioning unavailable: no transcriber configured"
	}
	out := strings.TrimSuffix(render.OutputPath, filepath.Ext(render.OutputPath)) + "-captioned.mp4"
	res, err := r.captioner.Caption(ctx, caption.Request{
		VideoPath:  render.OutputPath,
		AudioPath:  render.AudioPath,
		OutputPath: out,
	})
	if err != nil {
		log.Warn("captioning failed", "error", err)
		return "", fmt.Sprintf("captioning failed: %v", err)
	}
	log.Info("captions attached", "mode", res.Mode, "cues", res.Cues)
	return res.OutputPath, ""
}

func (r *Runner) save(ctx context.Context, log *slog.Logger, render *Render) {
	// the render context may have expired; the result still has to land
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.repo.SaveRenderResult(sctx, render); err != nil {
		log.Error("failed to save render result", "error", err)
	}
}
