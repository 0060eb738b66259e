package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reelsmith/reelsmith-agent/internal/config"
	"github.com/reelsmith/reelsmith-agent/internal/logging"
	"github.com/reelsmith/reelsmith-agent/internal/media"
	"github.com/reelsmith/reelsmith-agent/internal/reel"
)

var profileFlag string

var rootCmd = &cobra.Command{
	Use:   "reelsmith",
	Short: "Cut beat-synced vertical reels from stock clips",
	Long: `reelsmith cuts a folder of video clips to the beat of an audio track and
renders a 1080x1920 reel. It can run one-off renders from the command line
or serve a local render queue over HTTP.`,
	Version:       config.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context, which stops a render between ffmpeg invocations.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "render profile YAML (overrides REELSMITH_PROFILE)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(captionCmd)
}

// app holds what every command needs: configuration, the render profile,
// a logger and the ffmpeg executor with its detected capabilities.
type app struct {
	cfg     config.Config
	profile config.Profile
	logger  *slog.Logger
	ff      *media.Executor
	caps    reel.RendererCapabilities
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	profilePath := cfg.ProfilePath()
	if profileFlag != "" {
		profilePath = profileFlag
	}
	profile, err := config.LoadProfile(profilePath)
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(cfg.LogLevel())
	ff := media.NewExecutor(media.Config{
		FFmpegPath:  cfg.FFmpegPath(),
		FFprobePath: cfg.FFprobePath(),
		Logger:      logger,
		DebugPaths:  cfg.LogLevel() == "debug",
	})

	detectCtx, cancel := context.WithTimeout(ctx, cfg.DoctorTimeout())
	defer cancel()
	caps := reel.DetectCapabilities(detectCtx, ff)
	if missing := caps.Missing(); len(missing) > 0 {
		logger.Warn("ffmpeg build is missing features, renders may fall back", "missing", missing)
	}

	return &app{cfg: cfg, profile: profile, logger: logger, ff: ff, caps: caps}, nil
}

// controller builds a reel controller from the profile.
func (a *app) controller() (*reel.Controller, error) {
	opts, err := a.profile.RenderOptions()
	if err != nil {
		return nil, err
	}
	opts.KeepIntermediates = a.cfg.KeepIntermediates()
	return reel.NewController(a.ff, a.caps, opts, a.logger), nil
}

// absPaths rewrites each non-empty path in place as an absolute path.
func absPaths(paths ...*string) error {
	for _, p := range paths {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return err
		}
		*p = abs
	}
	return nil
}

func mkdirs(dirs ...string) error {
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
	}
	return nil
}
