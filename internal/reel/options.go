// Package reel assembles a folder of stock clips and an audio track into a
// vertical, beat-paced video with randomized transitions.
//
// The pipeline is Analyzer -> Normalizer -> PlanSegments -> Apply -> Renderer,
// supervised by a Controller that falls back to a plain concatenation and then
// to a solid-colour placeholder so a render request always leaves a file
// behind unless its inputs are unusable.
package reel

import (
	"math/rand/v2"
)

const (
	TargetWidth  = 1080
	TargetHeight = 1920
	TargetFPS    = 30

	DefaultSegmentSeconds = 2.0
	DefaultStartMargin    = 0.5

	// DefaultDuration is used when the audio length cannot be determined.
	DefaultDuration = 10.0

	DefaultPreset = "ultrafast"
	DefaultCRF    = 23
)

// PlanOptions tunes the segment planner.
type PlanOptions struct {
	SegmentSeconds float64
	StartMargin    float64

	// Transitions is the pool drawn from in beat-driven plans.
	Transitions []Transition

	// FallbackTransition is applied to every segment of a fixed-interval plan.
	FallbackTransition Transition
}

// Options configures one Controller.
type Options struct {
	Width  int
	Height int
	FPS    int

	Preset string
	CRF    int

	PlaceholderColor string
	DefaultDuration  float64
	SampleRate       int

	// KeepIntermediates leaves the per-render work directory on disk.
	KeepIntermediates bool

	Plan PlanOptions
}

func DefaultPlanOptions() PlanOptions {
	return PlanOptions{
		SegmentSeconds:     DefaultSegmentSeconds,
		StartMargin:        DefaultStartMargin,
		Transitions:        AllTransitions(),
		FallbackTransition: Fade,
	}
}

func DefaultOptions() Options {
	return Options{
		Width:            TargetWidth,
		Height:           TargetHeight,
		FPS:              TargetFPS,
		Preset:           DefaultPreset,
		CRF:              DefaultCRF,
		PlaceholderColor: "black",
		DefaultDuration:  DefaultDuration,
		SampleRate:       22050,
		Plan:             DefaultPlanOptions(),
	}
}

// withDefaults fills zero fields so a partially populated Options is usable.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Width <= 0 || o.Height <= 0 {
		o.Width, o.Height = d.Width, d.Height
	}
	if o.FPS <= 0 {
		o.FPS = d.FPS
	}
	if o.Preset == "" {
		o.Preset = d.Preset
	}
	if o.CRF <= 0 {
		o.CRF = d.CRF
	}
	if o.PlaceholderColor == "" {
		o.PlaceholderColor = d.PlaceholderColor
	}
	if o.DefaultDuration <= 0 {
		o.DefaultDuration = d.DefaultDuration
	}
	if o.SampleRate <= 0 {
		o.SampleRate = d.SampleRate
	}
	o.Plan = o.Plan.withDefaults()
	return o
}

func (o PlanOptions) withDefaults() PlanOptions {
	if o.SegmentSeconds <= 0 {
		o.SegmentSeconds = DefaultSegmentSeconds
	}
	if o.StartMargin < 0 {
		o.StartMargin = DefaultStartMargin
	}
	if len(o.Transitions) == 0 {
		o.Transitions = AllTransitions()
	}
	if !o.FallbackTransition.Valid() {
		o.FallbackTransition = Fade
	}
	return o
}

// NewRand returns a deterministic random source for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
