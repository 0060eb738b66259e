package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/reelsmith/reelsmith-agent/internal/caption"
	"github.com/reelsmith/reelsmith-agent/internal/reel"
)

// Profile is the YAML render profile. Every field has a default, so a
// profile file only needs the keys it wants to change.
type Profile struct {
	Editing   EditingProfile  `yaml:"editing"`
	Subtitles SubtitleProfile `yaml:"subtitles"`
	Content   ContentProfile  `yaml:"content"`
}

type EditingProfile struct {
	Width              int      `yaml:"width"`
	Height             int      `yaml:"height"`
	FPS                int      `yaml:"fps"`
	SegmentSeconds     float64  `yaml:"segment_seconds"`
	StartMargin        float64  `yaml:"start_margin"`
	DefaultDuration    float64  `yaml:"default_duration"`
	Preset             string   `yaml:"preset"`
	CRF                int      `yaml:"crf"`
	Transitions        []string `yaml:"transitions"`
	FallbackTransition string   `yaml:"fallback_transition"`
	PlaceholderColor   string   `yaml:"placeholder_color"`
}

type SubtitleProfile struct {
	MaxWords int    `yaml:"max_words"`
	FontName string `yaml:"font"`
	FontSize int    `yaml:"font_size"`
	Color    string `yaml:"color"`
	Outline  int    `yaml:"outline"`
	MarginV  int    `yaml:"margin_v"`
	Language string `yaml:"language"`
	BurnIn   bool   `yaml:"burn_in"`
}

type ContentProfile struct {
	PerKeyword  int           `yaml:"per_keyword"`
	APIDelay    time.Duration `yaml:"api_delay"`
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
}

// DefaultProfile mirrors the stock editing setup: 1080x1920 at 30 fps,
// two-second cuts and every transition enabled.
func DefaultProfile() Profile {
	names := make([]string, 0, len(reel.AllTransitions()))
	for _, t := range reel.AllTransitions() {
		names = append(names, t.String())
	}

	return Profile{
		Editing: EditingProfile{
			Width:              reel.TargetWidth,
			Height:             reel.TargetHeight,
			FPS:                reel.TargetFPS,
			SegmentSeconds:     reel.DefaultSegmentSeconds,
			StartMargin:        reel.DefaultStartMargin,
			DefaultDuration:    reel.DefaultDuration,
			Preset:             "ultrafast",
			CRF:                23,
			Transitions:        names,
			FallbackTransition: reel.Fade.String(),
			PlaceholderColor:   "black",
		},
		Subtitles: SubtitleProfile{
			MaxWords: 5,
			FontName: "Arial",
			FontSize: 24,
			Color:    "white",
			Outline:  2,
			MarginV:  200,
			BurnIn:   true,
		},
		Content: ContentProfile{
			PerKeyword:  2,
			APIDelay:    time.Second,
			Timeout:     300 * time.Second,
			Concurrency: 3,
		},
	}
}

// LoadProfile reads a YAML profile on top of DefaultProfile. An empty path
// returns the defaults.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("invalid profile %s: %w", path, err)
	}
	return p, nil
}

// Validate rejects sizes and durations the renderer cannot work with and
// transition names it does not know.
func (p Profile) Validate() error {
	e := p.Editing
	if e.Width <= 0 || e.Height <= 0 {
		return fmt.Errorf("editing size must be positive, got %dx%d", e.Width, e.Height)
	}
	if e.Width%2 != 0 || e.Height%2 != 0 {
		return fmt.Errorf("editing size must be even for yuv420p, got %dx%d", e.Width, e.Height)
	}
	if e.FPS <= 0 {
		return fmt.Errorf("editing fps must be positive, got %d", e.FPS)
	}
	if e.SegmentSeconds <= 0 {
		return fmt.Errorf("segment_seconds must be positive, got %v", e.SegmentSeconds)
	}
	if e.StartMargin < 0 {
		return fmt.Errorf("start_margin must not be negative, got %v", e.StartMargin)
	}
	if e.DefaultDuration <= 0 {
		return fmt.Errorf("default_duration must be positive, got %v", e.DefaultDuration)
	}
	if len(e.Transitions) == 0 {
		return fmt.Errorf("at least one transition must be enabled")
	}
	if _, err := p.EnabledTransitions(); err != nil {
		return err
	}
	if _, err := reel.ParseTransition(e.FallbackTransition); err != nil {
		return fmt.Errorf("fallback_transition: %w", err)
	}
	if p.Subtitles.MaxWords <= 0 {
		return fmt.Errorf("subtitles max_words must be positive, got %d", p.Subtitles.MaxWords)
	}
	return nil
}

// EnabledTransitions resolves the configured transition names.
func (p Profile) EnabledTransitions() ([]reel.Transition, error) {
	out := make([]reel.Transition, 0, len(p.Editing.Transitions))
	for _, name := range p.Editing.Transitions {
		t, err := reel.ParseTransition(name)
		if err != nil {
			return nil, fmt.Errorf("transitions: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

// RenderOptions maps the editing section onto the reel options.
func (p Profile) RenderOptions() (reel.Options, error) {
	transitions, err := p.EnabledTransitions()
	if err != nil {
		return reel.Options{}, err
	}
	fallback, err := reel.ParseTransition(p.Editing.FallbackTransition)
	if err != nil {
		return reel.Options{}, err
	}

	opts := reel.DefaultOptions()
	opts.Width = p.Editing.Width
	opts.Height = p.Editing.Height
	opts.FPS = p.Editing.FPS
	opts.Preset = p.Editing.Preset
	opts.CRF = p.Editing.CRF
	opts.PlaceholderColor = p.Editing.PlaceholderColor
	opts.DefaultDuration = p.Editing.DefaultDuration
	opts.Plan.SegmentSeconds = p.Editing.SegmentSeconds
	opts.Plan.StartMargin = p.Editing.StartMargin
	opts.Plan.Transitions = transitions
	opts.Plan.FallbackTransition = fallback
	return opts, nil
}

// CaptionOptions maps the subtitles section. canBurn comes from the detected
// renderer capabilities.
func (p Profile) CaptionOptions(canBurn bool) caption.Options {
	sub := p.Subtitles
	return caption.Options{
		MaxWords: sub.MaxWords,
		Style: caption.Style{
			FontName: sub.FontName,
			FontSize: sub.FontSize,
			Color:    sub.Color,
			Outline:  sub.Outline,
			MarginV:  sub.MarginV,
		},
		BurnIn:  sub.BurnIn,
		Preset:  p.Editing.Preset,
		CRF:     p.Editing.CRF,
		CanBurn: canBurn,
	}
}
