package caption

import (
	"context"
	"fmt"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/reelsmith/reelsmith-agent/internal/media"
)

// Style is the libass force_style applied when burning subtitles in.
type Style struct {
	FontName string
	FontSize int
	Color    string // name or #RRGGBB
	Outline  int
	MarginV  int
}

func DefaultStyle() Style {
	return Style{FontName: "Arial", FontSize: 24, Color: "white", Outline: 2, MarginV: 200}
}

// ForceStyle renders the style as a force_style value: bottom-centred text
// with a black outline.
func (s Style) ForceStyle() string {
	return fmt.Sprintf("FontName=%s,FontSize=%d,PrimaryColour=%s,OutlineColour=&H00000000,Outline=%d,Alignment=2,MarginV=%d",
		s.FontName, s.FontSize, assColour(s.Color), s.Outline, s.MarginV)
}

var namedColours = map[string]string{
	"white":  "FFFFFF",
	"black":  "000000",
	"yellow": "FFFF00",
	"red":    "FF0000",
	"green":  "00FF00",
	"blue":   "0000FF",
}

// assColour converts a colour name or #RRGGBB to the &HAABBGGRR form libass
// expects. Unknown values fall back to white.
func assColour(c string) string {
	rgb, ok := namedColours[strings.ToLower(strings.TrimSpace(c))]
	if !ok {
		hex := strings.TrimPrefix(strings.TrimSpace(c), "#")
		if len(hex) == 6 && isHex(hex) {
			rgb = strings.ToUpper(hex)
		} else {
			rgb = namedColours["white"]
		}
	}
	return "&H00" + rgb[4:6] + rgb[2:4] + rgb[0:2]
}

func isHex(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

// subtitlesFilter builds the subtitles filter for srtPath. Inside the
// quoted filename a single quote has to close and reopen the quoting.
func subtitlesFilter(srtPath string, style Style) string {
	escaped := strings.ReplaceAll(srtPath, `\`, `/`)
	escaped = strings.ReplaceAll(escaped, `'`, `'\''`)
	return fmt.Sprintf("subtitles='%s':force_style='%s'", escaped, style.ForceStyle())
}

// BurnInCommand re-encodes the video with the subtitles drawn on, copying
// the audio unchanged.
func BurnInCommand(video, srtPath, out string, style Style, preset string, crf int) media.Command {
	stream := ffmpeg.Input(video).Output(out, ffmpeg.KwArgs{
		"vf":      subtitlesFilter(srtPath, style),
		"c:v":     "libx264",
		"preset":  preset,
		"crf":     crf,
		"pix_fmt": "yuv420p",
		"c:a":     "copy",
	})
	return media.NewCommand("burn-in", stream, out)
}

// SoftSubtitleCommand muxes the SRT as a mov_text track without
// re-encoding.
func SoftSubtitleCommand(video, srtPath, out string) media.Command {
	v := ffmpeg.Input(video)
	s := ffmpeg.Input(srtPath)
	stream := ffmpeg.Output([]*ffmpeg.Stream{v, s}, out, ffmpeg.KwArgs{
		"c":   "copy",
		"c:s": "mov_text",
	})
	return media.NewCommand("soft-subtitles", stream, out)
}

func runStage(ctx context.Context, ff media.FFmpeg, cmd media.Command) error {
	res, err := ff.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("%s: %w (%s)", cmd.Stage, err, media.Truncate(res.StderrTail, 256))
	}
	return nil
}
