package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reelsmith/reelsmith-agent/internal/caption"
	"github.com/reelsmith/reelsmith-agent/internal/export"
)

var (
	captionVideo string
	captionAudio string
	captionOut   string
	captionSRT   string
)

var captionCmd = &cobra.Command{
	Use:   "caption",
	Short: "Transcribe speech and add subtitles to a video",
	Args:  cobra.NoArgs,
	RunE:  runCaption,
}

func init() {
	f := captionCmd.Flags()
	f.StringVar(&captionVideo, "video", "", "video to caption")
	f.StringVar(&captionAudio, "audio", "", "transcribe this file instead of the video's own audio")
	f.StringVar(&captionOut, "out", "", "output video (default <video>-captioned.mp4)")
	f.StringVar(&captionSRT, "srt", "", "where to write the subtitles (default next to the output)")
	captionCmd.MarkFlagRequired("video")
}

func runCaption(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	if err := absPaths(&captionVideo, &captionAudio, &captionOut, &captionSRT); err != nil {
		return err
	}
	if err := export.ValidateFile("video", captionVideo); err != nil {
		return err
	}
	if captionAudio != "" {
		if err := export.ValidateFile("audio", captionAudio); err != nil {
			return err
		}
	}

	out := captionOut
	if out == "" {
		out = strings.TrimSuffix(captionVideo, filepath.Ext(captionVideo)) + "-captioned.mp4"
	}

	captioner, err := a.captioner()
	if err != nil {
		return err
	}
	res, err := captioner.Caption(cmd.Context(), caption.Request{
		VideoPath:  captionVideo,
		AudioPath:  captionAudio,
		OutputPath: out,
		SRTPath:    captionSRT,
	})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "captioned %s (%s)\n", res.OutputPath, fileSize(res.OutputPath))
	fmt.Fprintf(w, "  subtitles: %s, %d cues, %s\n", res.SRTPath, res.Cues, res.Mode)
	return nil
}
