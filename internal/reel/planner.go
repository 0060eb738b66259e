package reel

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// planEpsilon absorbs float accumulation so the loop never emits a sliver
// segment at the end of the target.
const planEpsilon = 1e-6

type PlanMode string

const (
	PlanModeBeat  PlanMode = "beat"
	PlanModeFixed PlanMode = "fixed"
)

// Segment is one slice of a source clip placed in the output.
type Segment struct {
	Index        int        `json:"index"`
	ClipIndex    int        `json:"clip_index"`
	ClipPath     string     `json:"clip_path"`
	ClipDuration float64    `json:"clip_duration"`
	Start        float64    `json:"start"`
	Duration     float64    `json:"duration"`
	Offset       float64    `json:"offset"`
	Transition   Transition `json:"transition"`
	Geometry     Geometry   `json:"geometry"`
}

// End is the source time at which the segment stops.
func (s Segment) End() float64 {
	return s.Start + s.Duration
}

type Plan struct {
	Mode         PlanMode  `json:"mode"`
	Target       float64   `json:"target"`
	Tempo        float64   `json:"tempo,omitempty"`
	BeatsPerClip int       `json:"beats_per_clip,omitempty"`
	Seed         uint64    `json:"seed"`
	Segments     []Segment `json:"segments"`
}

// TotalDuration sums the segment durations.
func (p *Plan) TotalDuration() float64 {
	var total float64
	for _, s := range p.Segments {
		total += s.Duration
	}
	return total
}

// PlanSegments covers the beat span of a reliable grid, or the grid's
// duration otherwise, with segments cut from clips in cyclic order.
//
// Cuts are time based. In beat mode beats_per_clip is computed for logging
// only; segment boundaries are not snapped to beats.
func PlanSegments(grid BeatGrid, clips []NormalizedClip, rng *rand.Rand, opts PlanOptions) (*Plan, error) {
	if len(clips) == 0 {
		return nil, ErrNoClipsFound
	}
	if rng == nil {
		return nil, fmt.Errorf("plan: nil random source")
	}
	opts = opts.withDefaults()

	plan := &Plan{}
	if grid.Reliable() {
		plan.Mode = PlanModeBeat
		plan.Target = grid.Span()
		plan.Tempo = grid.Tempo

		avgInterval := plan.Target / float64(len(grid.Beats))
		bps := 1 / avgInterval
		plan.BeatsPerClip = max(1, int(math.Round(bps*opts.SegmentSeconds)))
	} else {
		plan.Mode = PlanModeFixed
		plan.Target = grid.Duration
		if plan.Target <= 0 {
			plan.Target = DefaultDuration
		}
	}

	current := 0.0
	clipIdx := 0
	stalled := 0
	for plan.Target-current > planEpsilon {
		clip := clips[clipIdx%len(clips)]
		clipPos := clipIdx % len(clips)
		clipIdx++

		duration := math.Min(opts.SegmentSeconds, plan.Target-current)
		maxStart := math.Max(0, clip.Duration-duration-opts.StartMargin)
		start := 0.0
		if maxStart > 0 {
			start = rng.Float64() * maxStart
		}
		actual := math.Min(duration, clip.Duration-start)

		if actual <= planEpsilon {
			stalled++
			if stalled >= len(clips) {
				return nil, fmt.Errorf("%w: no clip can cover %.3fs at offset %.3fs", ErrNoUsableClips, duration, current)
			}
			continue
		}
		stalled = 0

		transition := opts.FallbackTransition
		if plan.Mode == PlanModeBeat {
			transition = opts.Transitions[rng.IntN(len(opts.Transitions))]
		}

		plan.Segments = append(plan.Segments, Segment{
			Index:        len(plan.Segments),
			ClipIndex:    clipPos,
			ClipPath:     clip.Path,
			ClipDuration: clip.Duration,
			Start:        start,
			Duration:     actual,
			Offset:       current,
			Transition:   transition,
			Geometry:     clip.Geometry,
		})
		current += actual
	}

	return plan, nil
}
