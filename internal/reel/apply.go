package reel

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RenderedClip is a segment with its effect resolved into an ffmpeg filter
// chain. Path is set once the Renderer has encoded it.
type RenderedClip struct {
	Segment Segment          `json:"segment"`
	Effect  TransitionParams `json:"effect"`
	Filter  string           `json:"filter"`
	Plain   string           `json:"plain"`
	Path    string           `json:"path,omitempty"`
}

// Apply resolves the segment's transition. It is pure: the same segment and
// frame settings always produce the same RenderedClip.
func Apply(seg Segment, width, height, fps int) RenderedClip {
	effect := seg.Transition.Params()
	return RenderedClip{
		Segment: seg,
		Effect:  effect,
		Filter:  filterChain(seg, effect, width, height, fps),
		Plain:   plainChain(seg, width, height, fps),
	}
}

// baseChain maps the source frame to width x height at a constant rate.
func baseChain(seg Segment, width, height, fps int) []string {
	parts := seg.Geometry.Filters()
	if !seg.Geometry.Valid() {
		// unknown source size: let ffmpeg cover-fit it
		parts = []string{
			fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase", width, height),
			fmt.Sprintf("crop=%d:%d", width, height),
		}
	}
	return append(parts, "setsar=1", fmt.Sprintf("fps=%d", fps))
}

// plainChain is the effect-free substitute used when a transition fails.
func plainChain(seg Segment, width, height, fps int) string {
	parts := baseChain(seg, width, height, fps)
	parts = append(parts, "format=yuv420p")
	return strings.Join(parts, ",")
}

// filterChain is the single dispatch from transition data to ffmpeg
// filters: zoom, then rotation, then the fade envelope.
func filterChain(seg Segment, p TransitionParams, width, height, fps int) string {
	parts := baseChain(seg, width, height, fps)

	if p.Scale != nil {
		t := fmt.Sprintf("(on/%d)", fps)
		parts = append(parts, fmt.Sprintf(
			"zoompan=z='max(1,%s)':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=1:s=%dx%d:fps=%d",
			scaleExpr(*p.Scale, t), width, height, fps,
		))
	}

	if p.RotationRate != 0 {
		parts = append(parts, fmt.Sprintf("rotate=a='%s*PI/180*t':c=black:ow=%d:oh=%d",
			num(p.RotationRate), width, height))
	}

	dur := seg.Duration
	if p.FadeIn > 0 {
		parts = append(parts, fmt.Sprintf("fade=t=in:st=0:d=%s", secs(math.Min(p.FadeIn, dur))))
	}
	if p.FadeOut > 0 {
		d := math.Min(p.FadeOut, dur)
		parts = append(parts, fmt.Sprintf("fade=t=out:st=%s:d=%s", secs(math.Max(0, dur-d)), secs(d)))
	}

	parts = append(parts, "format=yuv420p")
	return strings.Join(parts, ",")
}

// scaleExpr renders a ScaleCurve as an ffmpeg expression of t.
func scaleExpr(c ScaleCurve, t string) string {
	x := t
	if c.Pivot != 0 {
		x = fmt.Sprintf("(%s-%s)", t, num(c.Pivot))
	}
	if c.Abs {
		x = fmt.Sprintf("abs%s", wrap(x))
	}

	sign := "+"
	slope := c.Slope
	if slope < 0 {
		sign = "-"
		slope = -slope
	}
	return fmt.Sprintf("%s%s%s*%s", num(c.Base), sign, num(slope), x)
}

func wrap(s string) string {
	if strings.HasPrefix(s, "(") {
		return s
	}
	return "(" + s + ")"
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// secs formats seconds for ffmpeg at millisecond precision.
func secs(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
