// Package jobs queues reel renders in SQLite and runs them one at a time
// through the fallback controller.
package jobs

import (
	"time"

	"github.com/google/uuid"

	"github.com/reelsmith/reelsmith-agent/internal/reel"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Render is one queued or finished render.
type Render struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	AudioPath  string `json:"audio_path"`
	ClipsDir   string `json:"clips_dir"`
	OutputPath string `json:"output_path"`

	// Seed is zero until the render starts unless the caller picked one.
	Seed uint64 `json:"seed"`

	Tier          string          `json:"tier,omitempty"`
	Mode          string          `json:"mode,omitempty"`
	SegmentCount  int             `json:"segment_count"`
	EDLPath       string          `json:"edl_path,omitempty"`
	Caption       bool            `json:"caption"`
	CaptionedPath string          `json:"captioned_path,omitempty"`
	Error         string          `json:"error,omitempty"`
	Attempts      []AttemptRecord `json:"attempts,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Terminal reports whether the render will not change any more.
func (r *Render) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// AttemptRecord is the stored form of a reel.Attempt.
type AttemptRecord struct {
	Tier      string `json:"tier"`
	Error     string `json:"error,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

func recordAttempts(attempts []reel.Attempt) []AttemptRecord {
	out := make([]AttemptRecord, 0, len(attempts))
	for _, a := range attempts {
		rec := AttemptRecord{
			Tier:      a.Tier.String(),
			Skipped:   a.Skipped,
			ElapsedMs: a.Elapsed.Milliseconds(),
		}
		if a.Err != nil {
			rec.Error = a.Err.Error()
		}
		out = append(out, rec)
	}
	return out
}

func NewID() string {
	return uuid.NewString()
}
