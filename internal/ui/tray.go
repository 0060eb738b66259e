package ui

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/getlantern/systray"

	"github.com/reelsmith/reelsmith-agent/internal/jobs"
)

// RunnerControl is the part of *jobs.Runner the tray drives.
type RunnerControl interface {
	Pause()
	Resume()
	IsPaused() bool
	ActiveRender() string
}

type Tray struct {
	renderSvc jobs.RenderService
	runner    RunnerControl
	logger    *slog.Logger
	refresh   time.Duration

	statusItem *systray.MenuItem
	queueItem  *systray.MenuItem
	lastItem   *systray.MenuItem
	pauseItem  *systray.MenuItem

	mu sync.Mutex

	onOpenRenders func() error
	onQuit        func()
	done          chan struct{}
}

type TrayConfig struct {
	RenderService   jobs.RenderService
	Runner          RunnerControl
	Logger          *slog.Logger
	RefreshInterval time.Duration
	OnOpenRenders   func() error
	OnQuit          func()
}

func NewTray(cfg TrayConfig) *Tray {
	refresh := cfg.RefreshInterval
	if refresh <= 0 {
		refresh = 3 * time.Second
	}
	return &Tray{
		renderSvc:     cfg.RenderService,
		runner:        cfg.Runner,
		logger:        cfg.Logger,
		refresh:       refresh,
		onOpenRenders: cfg.OnOpenRenders,
		onQuit:        cfg.OnQuit,
		done:          make(chan struct{}),
	}
}

// Run blocks until the tray exits.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Reelsmith")
	systray.SetTooltip("Reelsmith Agent")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current agent status")
	t.statusItem.Disable()

	t.queueItem = systray.AddMenuItem("Queue: 0 pending", "Queued renders")
	t.queueItem.Disable()

	t.lastItem = systray.AddMenuItem("Last render: none", "Most recent render")
	t.lastItem.Disable()

	systray.AddSeparator()

	t.pauseItem = systray.AddMenuItem("Pause", "Pause rendering")
	openItem := systray.AddMenuItem("Open Renders Folder", "Show finished reels")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Reelsmith Agent")

	go func() {
		for {
			select {
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-openItem.ClickedCh:
				t.handleOpenRenders()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	go t.refreshLoop()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	close(t.done)
	t.logger.Info("system tray exiting")
}

func (t *Tray) refreshLoop() {
	ticker := time.NewTicker(t.refresh)
	defer ticker.Stop()

	for {
		t.refreshStatus()
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}
	}
}

func (t *Tray) refreshStatus() {
	if t.renderSvc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	counts, err := t.renderSvc.CountRenders(ctx)
	if err != nil {
		t.logger.Debug("tray refresh failed", "error", err)
		return
	}
	recent, _ := t.renderSvc.ListRenders(ctx, 1)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.statusItem.SetTitle("Status: " + t.statusLabel())
	t.queueItem.SetTitle(fmt.Sprintf("Queue: %d pending", counts[jobs.StatusPending]))
	if len(recent) > 0 {
		t.lastItem.SetTitle("Last render: " + LastRenderLabel(recent[0]))
	}
}

func (t *Tray) statusLabel() string {
	switch {
	case t.runner == nil:
		return "Idle"
	case t.runner.IsPaused():
		return "Paused"
	case t.runner.ActiveRender() != "":
		return "Rendering"
	default:
		return "Idle"
	}
}

// LastRenderLabel summarises a render for the menu.
func LastRenderLabel(r *jobs.Render) string {
	switch r.Status {
	case jobs.StatusCompleted:
		label := fmt.Sprintf("done (%s tier)", r.Tier)
		if info, err := os.Stat(r.OutputPath); err == nil {
			label += ", " + humanize.Bytes(uint64(info.Size()))
		}
		return label + ", " + humanize.Time(r.UpdatedAt)
	case jobs.StatusFailed:
		return "failed " + humanize.Time(r.UpdatedAt)
	default:
		return r.Status
	}
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runner == nil {
		return
	}

	if t.runner.IsPaused() {
		t.runner.Resume()
		t.pauseItem.SetTitle("Pause")
		t.statusItem.SetTitle("Status: Idle")
	} else {
		t.runner.Pause()
		t.pauseItem.SetTitle("Resume")
		t.statusItem.SetTitle("Status: Paused")
	}
}

func (t *Tray) handleOpenRenders() {
	if t.onOpenRenders != nil {
		if err := t.onOpenRenders(); err != nil {
			t.logger.Error("failed to open renders folder", "error", err)
		}
	}
}

func (t *Tray) Quit() {
	systray.Quit()
}
