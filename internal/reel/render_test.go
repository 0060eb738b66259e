package reel

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/reelsmith/reelsmith-agent/internal/media"
)

func TestWriteConcatList(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "list.txt")
	files := []string{filepath.Join(dir, "a.mp4"), filepath.Join(dir, "it's.mp4")}

	if err := WriteConcatList(list, files, 2.5); err != nil {
		t.Fatalf("WriteConcatList: %v", err)
	}
	data, err := os.ReadFile(list)
	if err != nil {
		t.Fatal(err)
	}

	want := "file '" + files[0] + "'\noutpoint 2.500\n" +
		"file '" + filepath.Join(dir, `it'\''s.mp4`) + "'\noutpoint 2.500\n"
	if string(data) != want {
		t.Errorf("list =\n%s\nwant\n%s", data, want)
	}
}

func TestWriteConcatList_NoOutpoint(t *testing.T) {
	list := filepath.Join(t.TempDir(), "list.txt")
	if err := WriteConcatList(list, []string{"/tmp/a.mp4"}, 0); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(list)
	if strings.Contains(string(data), "outpoint") {
		t.Errorf("unexpected outpoint in %q", data)
	}
}

func TestRenderer_SegmentFailsTwice(t *testing.T) {
	ff := newFakeFFmpeg()
	ff.failStages["segment"] = true
	ff.failStages["segment-plain"] = true

	r := NewRenderer(ff, DefaultOptions(), testLogger())
	seg := segmentWith(ZoomIn, 2, FitGeometry(1920, 1080))
	seg.Index = 4

	_, err := r.EncodeSegment(context.Background(), t.TempDir(), Apply(seg, 1080, 1920, 30))

	var encErr *EncodeError
	if !errors.As(err, &encErr) {
		t.Fatalf("err = %v, want *EncodeError", err)
	}
	if encErr.Segment != 4 || encErr.StderrTail != "simulated failure" {
		t.Errorf("EncodeError = %+v", encErr)
	}
	if !errors.Is(err, ErrEncode) {
		t.Error("EncodeError should match ErrEncode")
	}
}

func TestRenderer_SegmentCommand(t *testing.T) {
	ff := newFakeFFmpeg()
	r := NewRenderer(ff, DefaultOptions(), testLogger())
	seg := segmentWith(Fade, 2, FitGeometry(1080, 1920))
	seg.Start = 1.25

	rc, err := r.EncodeSegment(context.Background(), t.TempDir(), Apply(seg, 1080, 1920, 30))
	if err != nil {
		t.Fatalf("EncodeSegment: %v", err)
	}
	if filepath.Base(rc.Path) != "seg_0000.mp4" {
		t.Errorf("Path = %s", rc.Path)
	}

	cmd, _ := ff.lastCommand("segment")
	args := strings.Join(cmd.Args, " ")
	for _, want := range []string{"-ss 1.250", "-t 2.000", "-i clip.mp4", "-c:v libx264", "-preset ultrafast", "-crf 23", "-r 30", "-map 0:v:0"} {
		if !strings.Contains(args, want) {
			t.Errorf("args missing %q: %s", want, args)
		}
	}
}

func TestRenderer_EmptyOutputFailsVerify(t *testing.T) {
	out := filepath.Join(t.TempDir(), "reel.mp4")
	if err := os.WriteFile(out, nil, 0644); err != nil {
		t.Fatal(err)
	}
	r := NewRenderer(newFakeFFmpeg(), DefaultOptions(), testLogger())

	_, err := r.finish(context.Background(), out, "a.mp3", 5)
	var encErr *EncodeError
	if !errors.As(err, &encErr) || encErr.Stage != "verify" {
		t.Errorf("err = %v, want verify EncodeError", err)
	}
}

// TestRenderer_RealFFmpeg renders a short reel end to end with the local
// ffmpeg build.
func TestRenderer_RealFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}
	if testing.Short() {
		t.Skip("skipping encode in short mode")
	}

	dir := t.TempDir()
	clips := filepath.Join(dir, "clips")
	if err := os.MkdirAll(clips, 0755); err != nil {
		t.Fatal(err)
	}
	audio := filepath.Join(dir, "tone.m4a")

	gen := func(args ...string) {
		t.Helper()
		out, err := exec.Command("ffmpeg", append([]string{"-hide_banner", "-y"}, args...)...).CombinedOutput()
		if err != nil {
			t.Fatalf("generating fixture: %v\n%s", err, out)
		}
	}
	gen("-f", "lavfi", "-i", "testsrc=size=640x360:rate=30:duration=4", "-pix_fmt", "yuv420p", filepath.Join(clips, "a.mp4"))
	gen("-f", "lavfi", "-i", "sine=frequency=440:duration=3", "-c:a", "aac", audio)

	ff := media.NewExecutor(media.Config{Logger: testLogger()})
	caps := DetectCapabilities(context.Background(), ff)

	opts := DefaultOptions()
	opts.Width, opts.Height = 270, 480
	ctrl := NewController(ff, caps, opts, testLogger())

	out := filepath.Join(dir, "reel.mp4")
	res, err := ctrl.Render(context.Background(), Request{AudioPath: audio, ClipsDir: clips, OutputPath: out, Seed: 11})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.Output.Size == 0 {
		t.Error("output is empty")
	}
	probe, err := ff.Probe(context.Background(), out)
	if err != nil {
		t.Fatalf("probe output: %v", err)
	}
	if !probe.HasVideo || !probe.HasAudio {
		t.Errorf("output streams: video=%v audio=%v", probe.HasVideo, probe.HasAudio)
	}
}
