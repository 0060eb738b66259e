package reel

import (
	"fmt"
	"math"
	"strings"
)

// Transition identifies one of the twelve segment effects.
type Transition int

const (
	Fade Transition = iota
	QuickFade
	ZoomIn
	ZoomOut
	Crossfade
	SpinRight
	SpinLeft
	ScaleBounce
	SmoothFade
	DramaticFade
	ZoomBlur
	GentleZoom

	transitionCount
)

// ScaleCurve is s(t) = Base + Slope*(t-Pivot), or Base + Slope*|t-Pivot|
// when Abs is set.
type ScaleCurve struct {
	Base  float64 `json:"base"`
	Slope float64 `json:"slope"`
	Pivot float64 `json:"pivot,omitempty"`
	Abs   bool    `json:"abs,omitempty"`
}

func (c ScaleCurve) At(t float64) float64 {
	x := t - c.Pivot
	if c.Abs {
		x = math.Abs(x)
	}
	return c.Base + c.Slope*x
}

// TransitionParams is the data behind a Transition. Times are seconds,
// RotationRate is degrees per second.
type TransitionParams struct {
	Name         string      `json:"name"`
	FadeIn       float64     `json:"fade_in"`
	FadeOut      float64     `json:"fade_out"`
	Scale        *ScaleCurve `json:"scale,omitempty"`
	RotationRate float64     `json:"rotation_rate,omitempty"`
}

var transitionTable = [transitionCount]TransitionParams{
	Fade:         {Name: "fade", FadeIn: 0.2, FadeOut: 0.2},
	QuickFade:    {Name: "quick_fade", FadeIn: 0.05, FadeOut: 0.05},
	ZoomIn:       {Name: "zoom_in", FadeIn: 0.1, FadeOut: 0.1, Scale: &ScaleCurve{Base: 1, Slope: 0.2}},
	ZoomOut:      {Name: "zoom_out", FadeIn: 0.1, FadeOut: 0.1, Scale: &ScaleCurve{Base: 1.2, Slope: -0.2}},
	Crossfade:    {Name: "crossfade", FadeIn: 0.4, FadeOut: 0.4},
	SpinRight:    {Name: "spin_right", FadeIn: 0.1, FadeOut: 0.1, RotationRate: 3},
	SpinLeft:     {Name: "spin_left", FadeIn: 0.1, FadeOut: 0.1, RotationRate: -3},
	ScaleBounce:  {Name: "scale_bounce", FadeIn: 0.1, FadeOut: 0.1, Scale: &ScaleCurve{Base: 1, Slope: 0.1, Pivot: 0.5, Abs: true}},
	SmoothFade:   {Name: "smooth_fade", FadeIn: 0.3, FadeOut: 0.3},
	DramaticFade: {Name: "dramatic_fade", FadeIn: 0.1, FadeOut: 0.5},
	ZoomBlur:     {Name: "zoom_blur", FadeIn: 0.2, FadeOut: 0.2, Scale: &ScaleCurve{Base: 1, Slope: 0.15}},
	GentleZoom:   {Name: "gentle_zoom", FadeIn: 0.15, FadeOut: 0.15, Scale: &ScaleCurve{Base: 1, Slope: 0.05}},
}

// AllTransitions lists every transition in declaration order.
func AllTransitions() []Transition {
	out := make([]Transition, transitionCount)
	for i := range out {
		out[i] = Transition(i)
	}
	return out
}

func (t Transition) Valid() bool {
	return t >= 0 && t < transitionCount
}

// Params returns a copy of the transition's data; the scale curve is not
// shared with the table.
func (t Transition) Params() TransitionParams {
	if !t.Valid() {
		return TransitionParams{Name: "none"}
	}
	p := transitionTable[t]
	if p.Scale != nil {
		c := *p.Scale
		p.Scale = &c
	}
	return p
}

func (t Transition) String() string {
	if !t.Valid() {
		return fmt.Sprintf("transition(%d)", int(t))
	}
	return transitionTable[t].Name
}

// ParseTransition maps an identifier such as "zoom_in" to its Transition.
func ParseTransition(s string) (Transition, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, p := range transitionTable {
		if p.Name == name {
			return Transition(i), nil
		}
	}
	return 0, fmt.Errorf("unknown transition %q", s)
}

func (t Transition) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid transition %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Transition) UnmarshalText(b []byte) error {
	v, err := ParseTransition(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ScaleAt is the zoom factor at local time t; 1 when the effect has no zoom.
func (p TransitionParams) ScaleAt(t float64) float64 {
	if p.Scale == nil {
		return 1
	}
	return p.Scale.At(t)
}

// RotationAt is the rotation in degrees at local time t.
func (p TransitionParams) RotationAt(t float64) float64 {
	return p.RotationRate * t
}

// OpacityAt evaluates the fade envelope at local time t of a segment lasting
// dur seconds.
func (p TransitionParams) OpacityAt(t, dur float64) float64 {
	o := 1.0
	if p.FadeIn > 0 && t < p.FadeIn {
		o = math.Max(0, t/p.FadeIn)
	}
	if p.FadeOut > 0 && t > dur-p.FadeOut {
		o = math.Min(o, math.Max(0, (dur-t)/p.FadeOut))
	}
	return o
}
