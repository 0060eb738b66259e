// Package export writes a render's segment plan as a CMX3600 edit decision
// list so the cut can be reopened in an NLE.
package export

import (
	"math"
	"path/filepath"

	"github.com/reelsmith/reelsmith-agent/internal/reel"
)

// Event is one video edit: a source range placed at the next record
// position.
type Event struct {
	ClipName   string
	MediaPath  string
	StartMs    int
	EndMs      int
	Transition string
}

// DurationMs is the length of the event on the record side.
func (e Event) DurationMs() int {
	return e.EndMs - e.StartMs
}

// Options controls the EDL header and trailing audio event.
type Options struct {
	Title     string
	FrameRate float64

	// AudioPath, when set, adds an audio event spanning the whole record.
	AudioPath string
}

// EventsFromPlan converts plan segments into edit events in output order.
func EventsFromPlan(plan *reel.Plan) []Event {
	if plan == nil {
		return nil
	}
	events := make([]Event, 0, len(plan.Segments))
	for _, seg := range plan.Segments {
		events = append(events, Event{
			ClipName:   filepath.Base(seg.ClipPath),
			MediaPath:  seg.ClipPath,
			StartMs:    secondsToMs(seg.Start),
			EndMs:      secondsToMs(seg.End()),
			Transition: seg.Transition.String(),
		})
	}
	return events
}

func secondsToMs(s float64) int {
	return int(math.Round(s * 1000))
}
