package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/reelsmith/reelsmith-agent/internal/export"
)

var (
	planAudio string
	planClips string
	planSeed  uint64
	planEDL   string
	planJSON  bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the cut list for a render without encoding",
	Args:  cobra.NoArgs,
	RunE:  runPlan,
}

func init() {
	f := planCmd.Flags()
	f.StringVar(&planAudio, "audio", "", "audio track")
	f.StringVar(&planClips, "clips", "", "folder of source video clips")
	f.Uint64Var(&planSeed, "seed", 0, "random seed (0 picks one)")
	f.StringVar(&planEDL, "edl", "", "also write the plan as a CMX3600 EDL to this path")
	f.BoolVar(&planJSON, "json", false, "print the plan and beat grid as JSON")
	planCmd.MarkFlagRequired("audio")
	planCmd.MarkFlagRequired("clips")
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	if err := absPaths(&planAudio, &planClips); err != nil {
		return err
	}
	if err := export.ValidateFile("audio", planAudio); err != nil {
		return err
	}
	if err := export.ValidateDir("clips", planClips); err != nil {
		return err
	}

	controller, err := a.controller()
	if err != nil {
		return err
	}
	plan, grid, err := controller.Prepare(ctx, planAudio, planClips, planSeed)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if planJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{"plan": plan, "grid": grid}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(w, "mode %s, target %.2fs, tempo %.1f bpm, %d beats, seed %d\n",
			plan.Mode, plan.Target, grid.Tempo, len(grid.Beats), plan.Seed)
		if grid.Degraded != "" {
			fmt.Fprintf(w, "beat detection degraded: %s\n", grid.Degraded)
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tCLIP\tIN\tDUR\tAT\tTRANSITION")
		for _, s := range plan.Segments {
			fmt.Fprintf(tw, "%d\t%s\t%.2f\t%.2f\t%.2f\t%s\n",
				s.Index, filepath.Base(s.ClipPath), s.Start, s.Duration, s.Offset, s.Transition)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if planEDL != "" {
		title := strings.TrimSuffix(filepath.Base(planEDL), filepath.Ext(planEDL))
		if err := export.WritePlanEDL(planEDL, plan, export.Options{
			Title:     title,
			FrameRate: float64(a.profile.Editing.FPS),
			AudioPath: planAudio,
		}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", planEDL)
	}
	return nil
}
