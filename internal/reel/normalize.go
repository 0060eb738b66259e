package reel

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/reelsmith/reelsmith-agent/internal/media"
)

var VideoExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
	".avi": true,
}

func IsVideoFile(name string) bool {
	return VideoExtensions[strings.ToLower(filepath.Ext(name))]
}

// Geometry maps a source frame onto the target frame: a uniform scale to
// ScaleW x ScaleH followed by a centred crop to CropW x CropH.
type Geometry struct {
	SrcW   int `json:"src_w"`
	SrcH   int `json:"src_h"`
	ScaleW int `json:"scale_w"`
	ScaleH int `json:"scale_h"`
	CropW  int `json:"crop_w"`
	CropH  int `json:"crop_h"`
	CropX  int `json:"crop_x"`
	CropY  int `json:"crop_y"`
}

// FitGeometry fits w x h onto the 1080x1920 target.
func FitGeometry(w, h int) Geometry {
	return FitGeometryTo(w, h, TargetWidth, TargetHeight)
}

// FitGeometryTo scales a frame wider than the target ratio to the target
// height and crops its width; any other frame is scaled to the target width
// and its height cropped when it overshoots.
func FitGeometryTo(w, h, tw, th int) Geometry {
	g := Geometry{SrcW: w, SrcH: h}
	if w <= 0 || h <= 0 || tw <= 0 || th <= 0 {
		return g
	}
	if w == tw && h == th {
		g.ScaleW, g.ScaleH = w, h
		g.CropW, g.CropH = w, h
		return g
	}

	// w/h > tw/th, cross-multiplied to stay in integers
	if w*th > h*tw {
		g.ScaleH = th
		g.ScaleW = max(evenRound(float64(w)*float64(th)/float64(h)), tw)
		g.CropW, g.CropH = tw, th
		g.CropX = (g.ScaleW - tw) / 2
		return g
	}

	g.ScaleW = tw
	g.ScaleH = max(evenRound(float64(h)*float64(tw)/float64(w)), th)
	g.CropW = tw
	g.CropH = min(g.ScaleH, th)
	g.CropY = (g.ScaleH - g.CropH) / 2
	return g
}

// NoOp reports whether the source already has the output size.
func (g Geometry) NoOp() bool {
	return g.SrcW > 0 && g.ScaleW == g.SrcW && g.ScaleH == g.SrcH &&
		g.CropW == g.ScaleW && g.CropH == g.ScaleH
}

func (g Geometry) Valid() bool {
	return g.CropW > 0 && g.CropH > 0
}

// OutputSize is the frame size after scale and crop.
func (g Geometry) OutputSize() (int, int) {
	return g.CropW, g.CropH
}

// Filters renders the geometry as ffmpeg filter expressions. A no-op
// geometry yields nothing.
func (g Geometry) Filters() []string {
	if g.NoOp() || !g.Valid() {
		return nil
	}
	out := []string{fmt.Sprintf("scale=%d:%d", g.ScaleW, g.ScaleH)}
	if g.CropW != g.ScaleW || g.CropH != g.ScaleH {
		out = append(out, fmt.Sprintf("crop=%d:%d:%d:%d", g.CropW, g.CropH, g.CropX, g.CropY))
	}
	return out
}

func evenRound(v float64) int {
	return int(math.Round(v/2)) * 2
}

// NormalizedClip is a source clip together with the geometry that maps it
// onto the target frame. The source file is never modified.
type NormalizedClip struct {
	Path     string   `json:"path"`
	Name     string   `json:"name"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	Duration float64  `json:"duration"`
	Geometry Geometry `json:"geometry"`
}

// ScanClips lists the video files directly inside folder, sorted by name.
func ScanClips(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoClipsFound, folder, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !IsVideoFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(folder, e.Name()))
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoClipsFound, folder)
	}

	sort.Slice(paths, func(i, j int) bool {
		return filepath.Base(paths[i]) < filepath.Base(paths[j])
	})
	return paths, nil
}

// Normalizer probes clip files and computes their target geometry.
type Normalizer struct {
	ff     media.FFmpeg
	logger *slog.Logger
	width  int
	height int
}

func NewNormalizer(ff media.FFmpeg, width, height int, logger *slog.Logger) *Normalizer {
	return &Normalizer{ff: ff, logger: logger, width: width, height: height}
}

// Normalize scans folder and returns the usable clips in filename order.
// Clips that fail to probe are skipped; if none survive the result is
// ErrNoClipsFound.
func (n *Normalizer) Normalize(ctx context.Context, folder string) ([]NormalizedClip, error) {
	paths, err := ScanClips(folder)
	if err != nil {
		return nil, err
	}
	return n.NormalizeFiles(ctx, paths)
}

// probeConcurrency bounds parallel ffprobe processes.
const probeConcurrency = 4

func (n *Normalizer) NormalizeFiles(ctx context.Context, paths []string) ([]NormalizedClip, error) {
	// one slot per path keeps the folder order stable
	slots := make([]*NormalizedClip, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[i] = n.probeClip(gctx, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clips := make([]NormalizedClip, 0, len(paths))
	for _, c := range slots {
		if c != nil {
			clips = append(clips, *c)
		}
	}

	if len(clips) == 0 {
		return nil, fmt.Errorf("%w: none of %d files could be read", ErrNoClipsFound, len(paths))
	}

	n.logger.Info("clips normalized", "usable", len(clips), "found", len(paths))
	return clips, nil
}

// probeClip returns nil for clips that cannot be used.
func (n *Normalizer) probeClip(ctx context.Context, p string) *NormalizedClip {
	probe, err := n.ff.Probe(ctx, p)
	if err != nil {
		n.logger.Warn("skipping clip that failed to probe", "clip", filepath.Base(p), "error", err)
		return nil
	}
	if !probe.HasVideo || probe.Width <= 0 || probe.Height <= 0 {
		n.logger.Warn("skipping clip without a video stream", "clip", filepath.Base(p))
		return nil
	}
	if probe.Duration <= 0 {
		n.logger.Warn("skipping clip with unknown duration", "clip", filepath.Base(p))
		return nil
	}
	return &NormalizedClip{
		Path:     p,
		Name:     filepath.Base(p),
		Width:    probe.Width,
		Height:   probe.Height,
		Duration: probe.Duration,
		Geometry: FitGeometryTo(probe.Width, probe.Height, n.width, n.height),
	}
}
