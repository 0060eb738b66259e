package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/reelsmith/reelsmith-agent/internal/api"
	"github.com/reelsmith/reelsmith-agent/internal/caption"
	"github.com/reelsmith/reelsmith-agent/internal/config"
	"github.com/reelsmith/reelsmith-agent/internal/db"
	"github.com/reelsmith/reelsmith-agent/internal/jobs"
	"github.com/reelsmith/reelsmith-agent/internal/playback"
	"github.com/reelsmith/reelsmith-agent/internal/ui"
)

var serveHeadless bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local render queue and HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveHeadless, "headless", false, "run without the system tray (also REELSMITH_HEADLESS)")
}

func serve(parent context.Context) error {
	startTime := time.Now()

	a, err := newApp(parent)
	if err != nil {
		return err
	}
	cfg, logger := a.cfg, a.logger
	if err := mkdirs(cfg.DataDir(), cfg.RendersDir(), cfg.WorkDir()); err != nil {
		return err
	}
	logger.Info("starting reelsmith agent", "version", config.Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := jobs.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                   REELSMITH AGENT v%-22s ║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken[:16]+"...")
	fmt.Printf("║  Renders:    %-45s ║\n", truncateLeft(cfg.RendersDir(), 45))
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
	logger.Info("auth token available in config table", "key", api.AuthTokenKey)

	controller, err := a.controller()
	if err != nil {
		return err
	}

	runnerCfg := jobs.RunnerConfig{
		Repository:    repo,
		Renderer:      controller,
		WorkDir:       cfg.WorkDir(),
		RenderTimeout: cfg.RenderTimeout(),
		Logger:        logger,
		FrameRate:     float64(a.profile.Editing.FPS),
	}
	if captioner, err := a.captioner(); err != nil {
		logger.Warn("captioning disabled", "error", err)
	} else {
		runnerCfg.Captioner = captioner
	}

	renderSvc := jobs.NewService(repo, cfg.RendersDir(), logger)
	playbackSvc := playback.NewServer(logger)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	runner := jobs.NewRunner(runnerCfg)
	go runner.Start(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		Version:        config.Version,
		RenderService:  renderSvc,
		Repository:     repo,
		Runner:         runner,
		PlaybackServer: playbackSvc,
		Capabilities:   &a.caps,
		Logger:         logger,
		StartTime:      startTime,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	quitCh := make(chan struct{})
	var quitOnce sync.Once
	quit := func() { quitOnce.Do(func() { close(quitCh) }) }

	var tray *ui.Tray
	if serveHeadless || cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray = ui.NewTray(ui.TrayConfig{
			RenderService: renderSvc,
			Runner:        runner,
			Logger:        logger,
			OnOpenRenders: func() error {
				return openFolder(cfg.RendersDir())
			},
			OnQuit: quit,
		})
		go tray.Run()
	}

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			if tray != nil {
				tray.Quit()
			}
			quit()
		case <-parent.Done():
			if tray != nil {
				tray.Quit()
			}
			quit()
		case <-quitCh:
		}
	}()

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func ensureAuthToken(repo jobs.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, api.AuthTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, api.AuthTokenKey, token); err != nil {
		return "", err
	}

	return token, nil
}

// captioner returns caption.ErrNoAPIKey when no OpenAI key is configured.
func (a *app) captioner() (*caption.Captioner, error) {
	t, err := caption.NewWhisperTranscriber(a.cfg.OpenAIAPIKey(), "", a.profile.Subtitles.Language, a.logger)
	if err != nil {
		return nil, err
	}
	return caption.NewCaptioner(t, a.ff, a.profile.CaptionOptions(a.caps.CanBurnSubtitles()), a.logger), nil
}

func openFolder(dir string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", dir)
	case "windows":
		cmd = exec.Command("explorer", dir)
	default:
		cmd = exec.Command("xdg-open", dir)
	}
	return cmd.Start()
}

func truncateLeft(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n+3:]
}
