package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/reelsmith/reelsmith-agent/internal/jobs"
)

const (
	defaultEventInterval = 500 * time.Millisecond
	eventWriteTimeout    = 5 * time.Second
)

// RenderEvent is one websocket message.
type RenderEvent struct {
	Type   string         `json:"type"`
	Render RenderResponse `json:"render"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isAllowedOrigin(origin)
	},
}

// renderEventsHandler pushes a render snapshot whenever the stored row
// changes and closes the socket once the render is terminal.
func renderEventsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render := lookupRender(cfg, w, r)
		if render == nil {
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			cfg.Logger.Warn("websocket upgrade failed", "render_id", render.ID, "error", err)
			return
		}
		defer conn.Close()

		interval := cfg.EventInterval
		if interval <= 0 {
			interval = defaultEventInterval
		}
		streamRenderEvents(r.Context(), conn, cfg.RenderService, render, interval)
	}
}

func streamRenderEvents(ctx context.Context, conn *websocket.Conn, svc jobs.RenderService, render *jobs.Render, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// the client never sends anything; reading surfaces its close
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastStatus string
	var lastUpdate time.Time
	for {
		if render.Status != lastStatus || !render.UpdatedAt.Equal(lastUpdate) {
			conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteJSON(RenderEvent{Type: "render", Render: RenderToResponse(render)}); err != nil {
				return
			}
			lastStatus, lastUpdate = render.Status, render.UpdatedAt
		}

		if render.Terminal() {
			closeSocket(conn, websocket.CloseNormalClosure, render.Status)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		next, err := svc.GetRender(ctx, render.ID)
		if err != nil || next == nil {
			closeSocket(conn, websocket.CloseInternalServerErr, "render lookup failed")
			return
		}
		render = next
	}
}

func closeSocket(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(eventWriteTimeout))
}
