package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reelsmith/reelsmith-agent/internal/api"
)

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Report what the local ffmpeg build can do",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		caps := api.CapabilitiesToResponse(a.caps)
		w := cmd.OutOrStdout()

		if doctorJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(caps)
		}

		version := caps.Version
		if version == "" {
			version = "unknown"
		}
		fmt.Fprintf(w, "ffmpeg %s (ffmpeg %s, ffprobe %s)\n", version, yesNo(caps.FFmpeg), yesNo(caps.FFprobe))
		fmt.Fprintf(w, "  styled transitions: %s\n", yesNo(caps.Transitions))
		fmt.Fprintf(w, "  plain concat:       %s\n", yesNo(caps.Concat))
		fmt.Fprintf(w, "  placeholder:        %s\n", yesNo(caps.Placeholder))
		fmt.Fprintf(w, "  burned subtitles:   %s\n", yesNo(caps.BurnInSubtitles))
		fmt.Fprintf(w, "  openai key:         %s\n", yesNo(a.cfg.OpenAIAPIKey() != ""))
		fmt.Fprintf(w, "  pexels key:         %s\n", yesNo(a.cfg.PexelsAPIKey() != ""))
		for _, m := range caps.Missing {
			fmt.Fprintf(w, "  missing: %s\n", m)
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "print capabilities as JSON")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
