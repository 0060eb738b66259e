// Package media is the boundary to the ffmpeg and ffprobe executables.
// Invocations are assembled with ffmpeg-go and executed under a context with
// a bounded stderr tail kept for diagnostics.
package media

import "time"

// ProbeResult is the subset of ffprobe output the renderer relies on.
type ProbeResult struct {
	Path       string  `json:"path"`
	Duration   float64 `json:"duration"`
	Size       int64   `json:"size"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FrameRate  float64 `json:"frame_rate"`
	VideoCodec string  `json:"video_codec,omitempty"`
	AudioCodec string  `json:"audio_codec,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`
	HasVideo   bool    `json:"has_video"`
	HasAudio   bool    `json:"has_audio"`
}

// RunResult is the structured outcome of one ffmpeg invocation.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }
