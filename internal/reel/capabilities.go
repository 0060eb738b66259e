package reel

import (
	"bufio"
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reelsmith/reelsmith-agent/internal/media"
)

// RendererCapabilities is what the local ffmpeg build can do. It is
// detected once at startup and passed by value afterwards.
type RendererCapabilities struct {
	FFmpeg  bool   `json:"ffmpeg"`
	FFprobe bool   `json:"ffprobe"`
	Version string `json:"version,omitempty"`

	Libx264 bool `json:"libx264"`
	AAC     bool `json:"aac"`

	Scale     bool `json:"scale"`
	Crop      bool `json:"crop"`
	Fade      bool `json:"fade"`
	Zoompan   bool `json:"zoompan"`
	Rotate    bool `json:"rotate"`
	Color     bool `json:"color"`
	Subtitles bool `json:"subtitles"`

	DetectedAt time.Time `json:"detected_at"`
}

// CanRenderTransitions gates the primary tier.
func (c RendererCapabilities) CanRenderTransitions() bool {
	return c.FFmpeg && c.FFprobe && c.Libx264 && c.AAC &&
		c.Scale && c.Crop && c.Fade && c.Zoompan && c.Rotate
}

// CanConcat gates the secondary tier.
func (c RendererCapabilities) CanConcat() bool {
	return c.FFmpeg && c.Libx264 && c.AAC && c.Scale && c.Crop
}

// CanPlaceholder gates the placeholder tier.
func (c RendererCapabilities) CanPlaceholder() bool {
	return c.FFmpeg && c.Libx264 && c.AAC && c.Color
}

func (c RendererCapabilities) CanBurnSubtitles() bool {
	return c.FFmpeg && c.Subtitles
}

// Missing lists the unavailable features by name.
func (c RendererCapabilities) Missing() []string {
	checks := []struct {
		name string
		ok   bool
	}{
		{"ffmpeg", c.FFmpeg},
		{"ffprobe", c.FFprobe},
		{"libx264", c.Libx264},
		{"aac", c.AAC},
		{"scale", c.Scale},
		{"crop", c.Crop},
		{"fade", c.Fade},
		{"zoompan", c.Zoompan},
		{"rotate", c.Rotate},
		{"color", c.Color},
		{"subtitles", c.Subtitles},
	}
	var missing []string
	for _, ch := range checks {
		if !ch.ok {
			missing = append(missing, ch.name)
		}
	}
	return missing
}

// FullCapabilities reports every feature as present.
func FullCapabilities() RendererCapabilities {
	return RendererCapabilities{
		FFmpeg: true, FFprobe: true,
		Libx264: true, AAC: true,
		Scale: true, Crop: true, Fade: true, Zoompan: true, Rotate: true,
		Color: true, Subtitles: true,
		DetectedAt: time.Now(),
	}
}

// DetectCapabilities queries the ffmpeg build for its encoders and filters.
// Failures leave the affected features unset; it never returns an error.
func DetectCapabilities(ctx context.Context, ff media.FFmpeg) RendererCapabilities {
	caps := RendererCapabilities{DetectedAt: time.Now()}
	caps.FFmpeg, caps.FFprobe = ff.Available()
	if !caps.FFmpeg {
		return caps
	}

	var encoders, filters map[string]bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := ff.Query(gctx, "-hide_banner", "-version")
		if err == nil {
			caps.Version = ParseVersion(out)
		}
		return nil
	})
	g.Go(func() error {
		out, err := ff.Query(gctx, "-hide_banner", "-encoders")
		if err != nil {
			return err
		}
		encoders = ParseListing(out)
		return nil
	})
	g.Go(func() error {
		out, err := ff.Query(gctx, "-hide_banner", "-filters")
		if err != nil {
			return err
		}
		filters = ParseListing(out)
		return nil
	})
	_ = g.Wait()

	caps.Libx264 = encoders["libx264"]
	caps.AAC = encoders["aac"]
	caps.Scale = filters["scale"]
	caps.Crop = filters["crop"]
	caps.Fade = filters["fade"]
	caps.Zoompan = filters["zoompan"]
	caps.Rotate = filters["rotate"]
	caps.Color = filters["color"]
	caps.Subtitles = filters["subtitles"]
	return caps
}

// ParseListing extracts names from `ffmpeg -encoders` or `ffmpeg -filters`
// output, where each entry line is a flags column followed by the name.
// Legend lines ("V..... = Video") are skipped.
func ParseListing(out string) map[string]bool {
	names := make(map[string]bool)
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 || !isFlagColumn(fields[0]) || fields[1] == "=" {
			continue
		}
		names[fields[1]] = true
	}
	return names
}

func isFlagColumn(s string) bool {
	if len(s) < 3 || len(s) > 6 {
		return false
	}
	for _, r := range s {
		if r != '.' && r != '|' && !(r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

// ParseVersion returns the version token of `ffmpeg -version`.
func ParseVersion(out string) string {
	line, _, _ := strings.Cut(out, "\n")
	fields := strings.Fields(line)
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}
