package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/reelsmith/reelsmith-agent/internal/caption"
	"github.com/reelsmith/reelsmith-agent/internal/export"
	"github.com/reelsmith/reelsmith-agent/internal/reel"
)

var (
	renderAudio   string
	renderClips   string
	renderOut     string
	renderSeed    uint64
	renderCaption bool
	renderEDL     bool
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render one reel and exit",
	Long: `render analyses the audio track, cuts the clips to its beats and writes the
reel. When the styled render fails it retries with plain cuts, and finally
with a solid placeholder under the audio.`,
	Args: cobra.NoArgs,
	RunE: runRender,
}

func init() {
	f := renderCmd.Flags()
	f.StringVar(&renderAudio, "audio", "", "audio track (mp3, wav, m4a, aac)")
	f.StringVar(&renderClips, "clips", "", "folder of source video clips")
	f.StringVar(&renderOut, "out", "reel.mp4", "output video path")
	f.Uint64Var(&renderSeed, "seed", 0, "random seed for offsets and transitions (0 picks one)")
	f.BoolVar(&renderCaption, "caption", false, "transcribe the audio and add subtitles")
	f.BoolVar(&renderEDL, "edl", false, "write a CMX3600 EDL next to the output")
	renderCmd.MarkFlagRequired("audio")
	renderCmd.MarkFlagRequired("clips")
}

func runRender(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	if err := absPaths(&renderAudio, &renderClips, &renderOut); err != nil {
		return err
	}
	if err := export.ValidateFile("audio", renderAudio); err != nil {
		return err
	}
	if err := export.ValidateDir("clips", renderClips); err != nil {
		return err
	}

	out := renderOut
	if err := mkdirs(filepath.Dir(out)); err != nil {
		return err
	}

	controller, err := a.controller()
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := controller.Render(ctx, reel.Request{
		AudioPath:  renderAudio,
		ClipsDir:   renderClips,
		OutputPath: out,
		Seed:       renderSeed,
	})
	if err != nil {
		var total *reel.TotalFailure
		if errors.As(err, &total) {
			printAttempts(cmd, total.Attempts)
		}
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "rendered %s\n", res.Output.Path)
	fmt.Fprintf(w, "  tier:     %s\n", res.Tier)
	fmt.Fprintf(w, "  seed:     %d\n", res.Seed)
	fmt.Fprintf(w, "  duration: %.2fs\n", res.Output.Duration)
	fmt.Fprintf(w, "  size:     %s\n", humanize.Bytes(uint64(res.Output.Size)))
	fmt.Fprintf(w, "  elapsed:  %s\n", time.Since(start).Round(time.Millisecond))
	if res.Plan != nil {
		fmt.Fprintf(w, "  segments: %d (%s)\n", len(res.Plan.Segments), res.Plan.Mode)
	}
	if len(res.Attempts) > 1 {
		printAttempts(cmd, res.Attempts)
	}

	if renderEDL && res.Plan != nil {
		edlPath := strings.TrimSuffix(out, filepath.Ext(out)) + ".edl"
		title := strings.TrimSuffix(filepath.Base(out), filepath.Ext(out))
		if err := export.WritePlanEDL(edlPath, res.Plan, export.Options{Title: title, FrameRate: float64(a.profile.Editing.FPS), AudioPath: renderAudio}); err != nil {
			return err
		}
		fmt.Fprintf(w, "  edl:      %s\n", edlPath)
	}

	if renderCaption {
		captioner, err := a.captioner()
		if err != nil {
			return fmt.Errorf("captioning unavailable: %w", err)
		}
		captioned := strings.TrimSuffix(out, filepath.Ext(out)) + "-captioned.mp4"
		cres, err := captioner.Caption(ctx, caption.Request{
			VideoPath:  out,
			AudioPath:  renderAudio,
			OutputPath: captioned,
		})
		if err != nil {
			return fmt.Errorf("captioning failed: %w", err)
		}
		fmt.Fprintf(w, "  captions: %s (%d cues, %s)\n", cres.OutputPath, cres.Cues, cres.Mode)
	}
	return nil
}

func printAttempts(cmd *cobra.Command, attempts []reel.Attempt) {
	w := cmd.ErrOrStderr()
	for _, at := range attempts {
		switch {
		case at.Skipped:
			fmt.Fprintf(w, "  %-11s skipped: %s\n", at.Tier, at.Error())
		case at.Err != nil:
			fmt.Fprintf(w, "  %-11s failed after %s: %s\n", at.Tier, at.Elapsed.Round(time.Millisecond), at.Error())
		default:
			fmt.Fprintf(w, "  %-11s ok in %s\n", at.Tier, at.Elapsed.Round(time.Millisecond))
		}
	}
}

func fileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "?"
	}
	return humanize.Bytes(uint64(info.Size()))
}
