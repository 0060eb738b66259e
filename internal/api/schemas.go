package api

import (
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/reelsmith/reelsmith-agent/internal/jobs"
	"github.com/reelsmith/reelsmith-agent/internal/reel"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State        string                `json:"state"`
	LastError    string                `json:"last_error,omitempty"`
	ActiveRender string                `json:"active_render,omitempty"`
	Queue        QueueResponse         `json:"queue"`
	Capabilities *CapabilitiesResponse `json:"capabilities,omitempty"`
}

type QueueResponse struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

type CapabilitiesResponse struct {
	reel.RendererCapabilities
	Missing         []string `json:"missing"`
	Transitions     bool     `json:"transitions"`
	Concat          bool     `json:"concat"`
	Placeholder     bool     `json:"placeholder"`
	BurnInSubtitles bool     `json:"burn_in_subtitles"`
}

type CreateRenderRequest struct {
	AudioPath  string `json:"audio_path"`
	ClipsDir   string `json:"clips_dir"`
	OutputName string `json:"output_name,omitempty"`
	Seed       uint64 `json:"seed,omitempty"`
	Caption    bool   `json:"caption,omitempty"`
}

type CreateRenderResponse struct {
	RenderID string `json:"render_id"`
}

type RenderResponse struct {
	ID              string               `json:"id"`
	Status          string               `json:"status"`
	AudioPath       string               `json:"audio_path"`
	ClipsDir        string               `json:"clips_dir"`
	OutputPath      string               `json:"output_path"`
	OutputSize      int64                `json:"output_size,omitempty"`
	OutputSizeHuman string               `json:"output_size_human,omitempty"`
	Seed            uint64               `json:"seed"`
	Tier            string               `json:"tier,omitempty"`
	Mode            string               `json:"mode,omitempty"`
	SegmentCount    int                  `json:"segment_count"`
	HasEDL          bool                 `json:"has_edl"`
	Caption         bool                 `json:"caption"`
	CaptionedPath   string               `json:"captioned_path,omitempty"`
	Error           string               `json:"error,omitempty"`
	Attempts        []jobs.AttemptRecord `json:"attempts,omitempty"`
	CreatedAt       string               `json:"created_at"`
	UpdatedAt       string               `json:"updated_at"`
}

type RendersResponse struct {
	Renders []RenderResponse `json:"renders"`
}

type RunnerResponse struct {
	Paused bool `json:"paused"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func CapabilitiesToResponse(c reel.RendererCapabilities) *CapabilitiesResponse {
	missing := c.Missing()
	if missing == nil {
		missing = []string{}
	}
	return &CapabilitiesResponse{
		RendererCapabilities: c,
		Missing:              missing,
		Transitions:          c.CanRenderTransitions(),
		Concat:               c.CanConcat(),
		Placeholder:          c.CanPlaceholder(),
		BurnInSubtitles:      c.CanBurnSubtitles(),
	}
}

// RenderToResponse reports the output size only once the render completed.
func RenderToResponse(r *jobs.Render) RenderResponse {
	resp := RenderResponse{
		ID:            r.ID,
		Status:        r.Status,
		AudioPath:     r.AudioPath,
		ClipsDir:      r.ClipsDir,
		OutputPath:    r.OutputPath,
		Seed:          r.Seed,
		Tier:          r.Tier,
		Mode:          r.Mode,
		SegmentCount:  r.SegmentCount,
		HasEDL:        r.EDLPath != "",
		Caption:       r.Caption,
		CaptionedPath: r.CaptionedPath,
		Error:         r.Error,
		Attempts:      r.Attempts,
		CreatedAt:     r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     r.UpdatedAt.Format(time.RFC3339),
	}
	if r.Status == jobs.StatusCompleted {
		if info, err := os.Stat(r.OutputPath); err == nil {
			resp.OutputSize = info.Size()
			resp.OutputSizeHuman = humanize.Bytes(uint64(info.Size()))
		}
	}
	return resp
}
