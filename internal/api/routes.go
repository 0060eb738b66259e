package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reelsmith/reelsmith-agent/internal/jobs"
	"github.com/reelsmith/reelsmith-agent/internal/playback"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Post("/renders", createRenderHandler(cfg))
		r.Get("/renders", listRendersHandler(cfg))
		r.Get("/renders/{id}", getRenderHandler(cfg))
		r.Get("/renders/{id}/video", renderVideoHandler(cfg))
		r.Head("/renders/{id}/video", renderVideoHandler(cfg))
		r.Get("/renders/{id}/edl", renderEDLHandler(cfg))
		r.Get("/renders/{id}/events", renderEventsHandler(cfg))
		r.Post("/runner/pause", pauseRunnerHandler(cfg))
		r.Post("/runner/resume", resumeRunnerHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		counts, err := cfg.RenderService.CountRenders(ctx)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to count renders", "INTERNAL_ERROR")
			return
		}

		resp := StatusResponse{
			State: "idle",
			Queue: QueueResponse{
				Pending:   counts[jobs.StatusPending],
				Running:   counts[jobs.StatusRunning],
				Completed: counts[jobs.StatusCompleted],
				Failed:    counts[jobs.StatusFailed],
			},
		}

		if recent, err := cfg.RenderService.ListRenders(ctx, 1); err == nil && len(recent) > 0 {
			if recent[0].Status == jobs.StatusFailed {
				resp.LastError = recent[0].Error
			}
		}

		switch {
		case cfg.Runner != nil && cfg.Runner.IsPaused():
			resp.State = "paused"
		case cfg.Runner != nil && cfg.Runner.ActiveRender() != "":
			resp.State = "rendering"
			resp.ActiveRender = cfg.Runner.ActiveRender()
		case resp.LastError != "":
			resp.State = "error"
		}

		if cfg.Capabilities != nil {
			resp.Capabilities = CapabilitiesToResponse(*cfg.Capabilities)
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func createRenderHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRenderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		render, err := cfg.RenderService.SubmitRender(r.Context(), jobs.SubmitRequest{
			AudioPath:  req.AudioPath,
			ClipsDir:   req.ClipsDir,
			OutputName: req.OutputName,
			Seed:       req.Seed,
			Caption:    req.Caption,
		})
		if errors.Is(err, jobs.ErrInvalidRequest) {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusCreated, CreateRenderResponse{RenderID: render.ID})
	}
}

func listRendersHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultListLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = min(n, maxListLimit)
		}

		renders, err := cfg.RenderService.ListRenders(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list renders", "INTERNAL_ERROR")
			return
		}

		resp := RendersResponse{Renders: make([]RenderResponse, len(renders))}
		for i, rd := range renders {
			resp.Renders[i] = RenderToResponse(rd)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// lookupRender writes the error response itself and returns nil when the
// render cannot be used.
func lookupRender(cfg ServerConfig, w http.ResponseWriter, r *http.Request) *jobs.Render {
	id := chi.URLParam(r, "id")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "render id required", "BAD_REQUEST")
		return nil
	}
	render, err := cfg.RenderService.GetRender(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
		return nil
	}
	if render == nil {
		WriteError(w, http.StatusNotFound, "render not found", "NOT_FOUND")
		return nil
	}
	return render
}

func getRenderHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render := lookupRender(cfg, w, r)
		if render == nil {
			return
		}
		WriteJSON(w, http.StatusOK, RenderToResponse(render))
	}
}

// renderVideoHandler streams the finished MP4, or the captioned copy with
// ?captioned=1.
func renderVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render := lookupRender(cfg, w, r)
		if render == nil {
			return
		}
		if render.Status != jobs.StatusCompleted {
			WriteError(w, http.StatusConflict, "render is "+render.Status, "NOT_READY")
			return
		}

		path := render.OutputPath
		if captioned, _ := strconv.ParseBool(r.URL.Query().Get("captioned")); captioned {
			if render.CaptionedPath == "" {
				WriteError(w, http.StatusNotFound, "render has no captioned output", "NOT_FOUND")
				return
			}
			path = render.CaptionedPath
		}
		serveArtifact(cfg, w, r, path, "")
	}
}

func renderEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render := lookupRender(cfg, w, r)
		if render == nil {
			return
		}
		if render.EDLPath == "" {
			WriteError(w, http.StatusNotFound, "render has no edl", "NOT_FOUND")
			return
		}
		serveArtifact(cfg, w, r, render.EDLPath, filepath.Base(render.EDLPath))
	}
}

func serveArtifact(cfg ServerConfig, w http.ResponseWriter, r *http.Request, path, downloadName string) {
	err := cfg.PlaybackServer.ServeFile(w, r, path, downloadName)
	if errors.Is(err, playback.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "file missing on disk", "NOT_FOUND")
		return
	}
	if err != nil {
		cfg.Logger.Error("failed to serve artifact", "file", filepath.Base(path), "error", err)
		WriteError(w, http.StatusInternalServerError, "failed to serve file", "INTERNAL_ERROR")
	}
}

func pauseRunnerHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Runner == nil {
			WriteError(w, http.StatusServiceUnavailable, "runner not available", "UNAVAILABLE")
			return
		}
		cfg.Runner.Pause()
		WriteJSON(w, http.StatusOK, RunnerResponse{Paused: true})
	}
}

func resumeRunnerHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Runner == nil {
			WriteError(w, http.StatusServiceUnavailable, "runner not available", "UNAVAILABLE")
			return
		}
		cfg.Runner.Resume()
		WriteJSON(w, http.StatusOK, RunnerResponse{Paused: cfg.Runner.IsPaused()})
	}
}
