package export

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/reelsmith/reelsmith-agent/internal/reel"
)

// GenerateEDL renders events as CMX3600 text. Record times are contiguous
// from zero in event order.
func GenerateEDL(events []Event, opts Options) string {
	fps := int(math.Round(opts.FrameRate))
	if fps <= 0 {
		fps = reel.TargetFPS
	}

	isDropFrame := math.Abs(opts.FrameRate-29.97) < 0.01 || math.Abs(opts.FrameRate-59.94) < 0.01

	title := opts.Title
	if title == "" {
		title = "reel"
	}
	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	recordMs := 0
	for i, ev := range events {
		dur := ev.DurationMs()
		lines = append(lines,
			eventLine(i+1, "AX", "V", ev.StartMs, ev.EndMs, recordMs, recordMs+dur, fps),
			fmt.Sprintf("* FROM CLIP NAME:  %s", ev.ClipName),
			fmt.Sprintf("* MEDIA PATH:  %s", ev.MediaPath),
		)
		if ev.Transition != "" {
			lines = append(lines, fmt.Sprintf("* EFFECT:  %s", ev.Transition))
		}
		recordMs += dur
	}

	if opts.AudioPath != "" && recordMs > 0 {
		lines = append(lines,
			eventLine(len(events)+1, "AX", "A", 0, recordMs, 0, recordMs, fps),
			fmt.Sprintf("* FROM CLIP NAME:  %s", filepath.Base(opts.AudioPath)),
			fmt.Sprintf("* MEDIA PATH:  %s", opts.AudioPath),
		)
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func eventLine(n int, reelName, track string, srcIn, srcOut, recIn, recOut, fps int) string {
	return fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", n, reelName, track,
		msToTimecode(srcIn, fps), msToTimecode(srcOut, fps),
		msToTimecode(recIn, fps), msToTimecode(recOut, fps))
}

// WritePlanEDL writes the plan's EDL to path, creating parent directories.
func WritePlanEDL(path string, plan *reel.Plan, opts Options) error {
	if plan == nil || len(plan.Segments) == 0 {
		return fmt.Errorf("plan has no segments")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("cannot create edl dir: %w", err)
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = reel.TargetFPS
	}
	if err := os.WriteFile(path, []byte(GenerateEDL(EventsFromPlan(plan), opts)), 0644); err != nil {
		return fmt.Errorf("write edl: %w", err)
	}
	return nil
}

func msToTimecode(ms int, fps int) string {
	totalFrames := int(math.Round(float64(ms) * float64(fps) / 1000.0))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
