package reel

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAudioUnreadable means the audio file cannot be opened at all.
	ErrAudioUnreadable = errors.New("audio unreadable")

	// ErrNoClipsFound means the clip folder holds no usable video files.
	ErrNoClipsFound = errors.New("no clips found")

	// ErrNoUsableClips means every clip in the pool has zero length.
	ErrNoUsableClips = errors.New("no usable clips")

	ErrEncode = errors.New("encode failed")

	// ErrCapabilityMissing marks a tier skipped because the detected
	// renderer capabilities cannot support it.
	ErrCapabilityMissing = errors.New("renderer capability missing")
)

// EncodeError reports a failed ffmpeg stage. It matches ErrEncode.
type EncodeError struct {
	Stage      string
	Segment    int // -1 when the stage is not per-segment
	Err        error
	StderrTail string
}

func (e *EncodeError) Error() string {
	var b strings.Builder
	b.WriteString("encode ")
	b.WriteString(e.Stage)
	if e.Segment >= 0 {
		fmt.Fprintf(&b, " #%d", e.Segment)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *EncodeError) Unwrap() error { return e.Err }

func (e *EncodeError) Is(target error) bool { return target == ErrEncode }

// TotalFailure is returned when every tier failed. It carries each tier's
// cause in attempt order.
type TotalFailure struct {
	Attempts []Attempt
}

func (f *TotalFailure) Error() string {
	parts := make([]string, 0, len(f.Attempts))
	for _, a := range f.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Tier, a.Err))
	}
	return "all render tiers failed: " + strings.Join(parts, "; ")
}

func (f *TotalFailure) Unwrap() []error {
	errs := make([]error, 0, len(f.Attempts))
	for _, a := range f.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}
