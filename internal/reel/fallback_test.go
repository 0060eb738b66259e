package reel

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func newTestController(ff *fakeFFmpeg, caps RendererCapabilities) *Controller {
	return NewController(ff, caps, DefaultOptions(), testLogger())
}

func TestNextTier(t *testing.T) {
	fail := errors.New("boom")
	tests := []struct {
		name    string
		history []Attempt
		want    Tier
		wantOK  bool
	}{
		{"empty history starts primary", nil, TierPrimary, true},
		{"primary failed", []Attempt{{Tier: TierPrimary, Err: fail}}, TierSecondary, true},
		{"primary skipped", []Attempt{{Tier: TierPrimary, Err: ErrCapabilityMissing, Skipped: true}}, TierSecondary, true},
		{"secondary failed", []Attempt{{Tier: TierPrimary, Err: fail}, {Tier: TierSecondary, Err: fail}}, TierPlaceholder, true},
		{"primary succeeded", []Attempt{{Tier: TierPrimary}}, TierPrimary, false},
		{"placeholder failed", []Attempt{
			{Tier: TierPrimary, Err: fail}, {Tier: TierSecondary, Err: fail}, {Tier: TierPlaceholder, Err: fail},
		}, TierPlaceholder, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextTier(tt.history)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("NextTier() = (%s, %v), want (%s, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestController_PrimarySuccess(t *testing.T) {
	ff := newFakeFFmpeg()
	audio := writeAudio(t, ff, 12.4)
	clips := writeClips(t, ff, 10, "a.mp4", "b.mov")
	out := filepath.Join(t.TempDir(), "out", "reel.mp4")

	ctrl := newTestController(ff, FullCapabilities())
	res, err := ctrl.Render(context.Background(), Request{
		AudioPath: audio, ClipsDir: clips, OutputPath: out, Seed: 7, WorkDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if res.Tier != TierPrimary {
		t.Errorf("Tier = %s, want primary", res.Tier)
	}
	if res.Seed != 7 || res.Plan.Seed != 7 {
		t.Errorf("seed not carried through: result %d, plan %d", res.Seed, res.Plan.Seed)
	}
	if res.Plan.Mode != PlanModeFixed {
		t.Errorf("Mode = %s, want fixed for undecodable audio", res.Plan.Mode)
	}
	if got := ff.countStage("segment"); got != 7 {
		t.Errorf("segment commands = %d, want 7", got)
	}
	if got := ff.countStage("mux"); got != 1 {
		t.Errorf("mux commands = %d, want 1", got)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output missing: %v", err)
	}
	if len(res.Attempts) != 1 || res.Attempts[0].Err != nil {
		t.Errorf("Attempts = %+v, want one success", res.Attempts)
	}
}

func TestController_SegmentTransitionFailureUsesPlainCut(t *testing.T) {
	ff := newFakeFFmpeg()
	ff.failStages["segment"] = true
	audio := writeAudio(t, ff, 4)
	clips := writeClips(t, ff, 10, "a.mp4")
	out := filepath.Join(t.TempDir(), "reel.mp4")

	res, err := newTestController(ff, FullCapabilities()).Render(context.Background(), Request{
		AudioPath: audio, ClipsDir: clips, OutputPath: out, Seed: 1,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.Tier != TierPrimary {
		t.Errorf("Tier = %s, want primary", res.Tier)
	}
	if got := ff.countStage("segment-plain"); got != 2 {
		t.Errorf("segment-plain commands = %d, want 2", got)
	}
	cmd, _ := ff.lastCommand("segment-plain")
	if strings.Contains(strings.Join(cmd.Args, " "), "fade=") {
		t.Errorf("plain substitute still carries a fade: %v", cmd.Args)
	}
}

func TestController_FallsBackToSecondary(t *testing.T) {
	ff := newFakeFFmpeg()
	ff.failStages["segment"] = true
	ff.failStages["segment-plain"] = true
	audio := writeAudio(t, ff, 30)
	clips := writeClips(t, ff, 10, "a.mp4", "b.mp4", "c.mp4")
	out := filepath.Join(t.TempDir(), "reel.mp4")

	res, err := newTestController(ff, FullCapabilities()).Render(context.Background(), Request{
		AudioPath: audio, ClipsDir: clips, OutputPath: out, Seed: 3,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if res.Tier != TierSecondary {
		t.Fatalf("Tier = %s, want secondary", res.Tier)
	}
	if len(res.Attempts) != 2 {
		t.Fatalf("Attempts = %d, want 2", len(res.Attempts))
	}
	if !errors.Is(res.Attempts[0].Err, ErrEncode) {
		t.Errorf("primary error = %v, want ErrEncode", res.Attempts[0].Err)
	}
	if res.Plan != nil {
		t.Error("Plan should only be reported for the primary tier")
	}
	if math.Abs(res.Output.Duration-30) > 0.1 {
		t.Errorf("output duration = %.3f, want 30 +/- 0.1", res.Output.Duration)
	}

	cmd, ok := ff.lastCommand("simple-concat")
	if !ok {
		t.Fatal("no simple-concat command recorded")
	}
	args := strings.Join(cmd.Args, " ")
	for _, want := range []string{"-t 30.000", "concat", "force_original_aspect_ratio=increase", "aac"} {
		if !strings.Contains(args, want) {
			t.Errorf("secondary args missing %q: %s", want, args)
		}
	}
}

func TestController_SecondaryClipListSplitsAudioEvenly(t *testing.T) {
	ff := newFakeFFmpeg()
	ff.failStages["segment"] = true
	ff.failStages["segment-plain"] = true
	audio := writeAudio(t, ff, 30)
	clips := writeClips(t, ff, 10, "a.mp4", "b.mp4", "c.mp4")

	opts := DefaultOptions()
	opts.KeepIntermediates = true
	work := t.TempDir()
	ctrl := NewController(ff, FullCapabilities(), opts, testLogger())
	if _, err := ctrl.Render(context.Background(), Request{
		AudioPath: audio, ClipsDir: clips, OutputPath: filepath.Join(t.TempDir(), "reel.mp4"), WorkDir: work,
	}); err != nil {
		t.Fatalf("Render: %v", err)
	}

	lists, _ := filepath.Glob(filepath.Join(work, "render-*", "secondary", "clips.txt"))
	if len(lists) != 1 {
		t.Fatalf("found %d clip lists, want 1", len(lists))
	}
	data, err := os.ReadFile(lists[0])
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "outpoint 10.000"); got != 3 {
		t.Errorf("outpoint lines = %d, want 3:\n%s", got, data)
	}
}

func TestController_Placeholder(t *testing.T) {
	ff := newFakeFFmpeg()
	ff.failStages["segment"] = true
	ff.failStages["segment-plain"] = true
	ff.failStages["simple-concat"] = true
	audio := writeAudio(t, ff, 15)
	clips := writeClips(t, ff, 10, "a.mp4")

	res, err := newTestController(ff, FullCapabilities()).Render(context.Background(), Request{
		AudioPath: audio, ClipsDir: clips, OutputPath: filepath.Join(t.TempDir(), "reel.mp4"),
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.Tier != TierPlaceholder {
		t.Fatalf("Tier = %s, want placeholder", res.Tier)
	}
	cmd, _ := ff.lastCommand("placeholder")
	args := strings.Join(cmd.Args, " ")
	if !strings.Contains(args, "color=c=black:s=1080x1920:r=30:d=15.000") {
		t.Errorf("placeholder source missing from args: %s", args)
	}
}

func TestController_EmptyClipFolderFailsBeforeAnyTier(t *testing.T) {
	ff := newFakeFFmpeg()
	audio := writeAudio(t, ff, 10)
	empty := t.TempDir()

	_, err := newTestController(ff, FullCapabilities()).Render(context.Background(), Request{
		AudioPath: audio, ClipsDir: empty, OutputPath: filepath.Join(t.TempDir(), "reel.mp4"),
	})
	if !errors.Is(err, ErrNoClipsFound) {
		t.Fatalf("err = %v, want ErrNoClipsFound", err)
	}
	if n := len(ff.stages()); n != 0 {
		t.Errorf("%d ffmpeg commands ran, want none", n)
	}
}

func TestController_UnreadableAudioFailsBeforeAnyTier(t *testing.T) {
	ff := newFakeFFmpeg()
	clips := writeClips(t, ff, 10, "a.mp4")

	_, err := newTestController(ff, FullCapabilities()).Render(context.Background(), Request{
		AudioPath: filepath.Join(t.TempDir(), "missing.mp3"), ClipsDir: clips,
		OutputPath: filepath.Join(t.TempDir(), "reel.mp4"),
	})
	if !errors.Is(err, ErrAudioUnreadable) {
		t.Fatalf("err = %v, want ErrAudioUnreadable", err)
	}
	if n := len(ff.stages()); n != 0 {
		t.Errorf("%d ffmpeg commands ran, want none", n)
	}
}

func TestController_SkipsPrimaryWithoutCapabilities(t *testing.T) {
	ff := newFakeFFmpeg()
	audio := writeAudio(t, ff, 8)
	clips := writeClips(t, ff, 10, "a.mp4")

	caps := FullCapabilities()
	caps.Zoompan = false

	res, err := newTestController(ff, caps).Render(context.Background(), Request{
		AudioPath: audio, ClipsDir: clips, OutputPath: filepath.Join(t.TempDir(), "reel.mp4"),
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.Tier != TierSecondary {
		t.Errorf("Tier = %s, want secondary", res.Tier)
	}
	first := res.Attempts[0]
	if !first.Skipped || !errors.Is(first.Err, ErrCapabilityMissing) {
		t.Errorf("first attempt = %+v, want skipped with ErrCapabilityMissing", first)
	}
	if ff.countStage("segment") != 0 {
		t.Error("primary tier ran despite missing zoompan")
	}
}

func TestController_TotalFailure(t *testing.T) {
	ff := newFakeFFmpeg()
	for _, s := range []string{"segment", "segment-plain", "simple-concat", "placeholder"} {
		ff.failStages[s] = true
	}
	audio := writeAudio(t, ff, 6)
	clips := writeClips(t, ff, 10, "a.mp4")
	out := filepath.Join(t.TempDir(), "reel.mp4")

	_, err := newTestController(ff, FullCapabilities()).Render(context.Background(), Request{
		AudioPath: audio, ClipsDir: clips, OutputPath: out,
	})

	var total *TotalFailure
	if !errors.As(err, &total) {
		t.Fatalf("err = %v, want *TotalFailure", err)
	}
	if len(total.Attempts) != 3 {
		t.Errorf("attempts = %d, want 3", len(total.Attempts))
	}
	if !errors.Is(err, ErrEncode) {
		t.Error("TotalFailure should unwrap to ErrEncode")
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Error("partial output left behind after total failure")
	}
}

func TestController_RemovesWorkDir(t *testing.T) {
	ff := newFakeFFmpeg()
	audio := writeAudio(t, ff, 4)
	clips := writeClips(t, ff, 10, "a.mp4")
	work := t.TempDir()

	if _, err := newTestController(ff, FullCapabilities()).Render(context.Background(), Request{
		AudioPath: audio, ClipsDir: clips, OutputPath: filepath.Join(t.TempDir(), "reel.mp4"), WorkDir: work,
	}); err != nil {
		t.Fatalf("Render: %v", err)
	}

	entries, err := os.ReadDir(work)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("work dir not cleaned: %d entries left", len(entries))
	}
}

func TestController_CancelledContextStops(t *testing.T) {
	ff := newFakeFFmpeg()
	audio := writeAudio(t, ff, 4)
	clips := writeClips(t, ff, 10, "a.mp4")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestController(ff, FullCapabilities()).Render(ctx, Request{
		AudioPath: audio, ClipsDir: clips, OutputPath: filepath.Join(t.TempDir(), "reel.mp4"),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if slices.Contains(ff.stages(), "simple-concat") {
		t.Error("fallback tier ran after cancellation")
	}
}

func TestController_ZeroSeedIsReported(t *testing.T) {
	ff := newFakeFFmpeg()
	audio := writeAudio(t, ff, 4)
	clips := writeClips(t, ff, 10, "a.mp4")

	res, err := newTestController(ff, FullCapabilities()).Render(context.Background(), Request{
		AudioPath: audio, ClipsDir: clips, OutputPath: filepath.Join(t.TempDir(), "reel.mp4"),
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.Seed == 0 {
		t.Error("zero seed should be replaced and reported")
	}
}

func TestController_Prepare(t *testing.T) {
	ff := newFakeFFmpeg()
	audio := writeAudio(t, ff, 12.4)
	clips := writeClips(t, ff, 10, "a.mp4", "b.mp4")

	plan, grid, err := newTestController(ff, FullCapabilities()).Prepare(context.Background(), audio, clips, 42)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if grid.Duration != 12.4 {
		t.Errorf("grid duration = %v, want 12.4", grid.Duration)
	}
	if len(plan.Segments) != 7 {
		t.Errorf("segments = %d, want 7", len(plan.Segments))
	}
	if plan.Seed != 42 {
		t.Errorf("plan seed = %d, want 42", plan.Seed)
	}
	if n := len(ff.stages()); n != 0 {
		t.Errorf("Prepare ran %d encode commands, want none", n)
	}
}
