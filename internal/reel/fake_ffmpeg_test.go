package reel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/reelsmith/reelsmith-agent/internal/media"
)

// fakeFFmpeg records commands instead of running them. Successful Run calls
// write a small file at the command output, and when the command carries a
// -t limit the output probes at that duration.
type fakeFFmpeg struct {
	mu sync.Mutex

	probes     map[string]*media.ProbeResult
	pcm        []float64
	pcmErr     error
	failStages map[string]bool
	listings   map[string]string
	noBinaries bool

	commands []media.Command
}

func newFakeFFmpeg() *fakeFFmpeg {
	return &fakeFFmpeg{
		probes:     make(map[string]*media.ProbeResult),
		failStages: make(map[string]bool),
		listings:   make(map[string]string),
		pcmErr:     errors.New("no audio stream"),
	}
}

func (f *fakeFFmpeg) Probe(ctx context.Context, path string) (*media.ProbeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.probes[path]
	if !ok {
		return nil, fmt.Errorf("ffprobe %s: invalid data", filepath.Base(path))
	}
	cp := *p
	return &cp, nil
}

func (f *fakeFFmpeg) DecodePCM(ctx context.Context, path string, sampleRate int) ([]float64, error) {
	if f.pcmErr != nil {
		return nil, f.pcmErr
	}
	return f.pcm, nil
}

func (f *fakeFFmpeg) Run(ctx context.Context, cmd media.Command) (media.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)

	if err := ctx.Err(); err != nil {
		return media.RunResult{ExitCode: -1}, err
	}
	if f.failStages[cmd.Stage] {
		return media.RunResult{ExitCode: 1, StderrTail: "simulated failure"},
			fmt.Errorf("ffmpeg %s exited 1", cmd.Stage)
	}
	if cmd.Output != "" {
		if err := os.MkdirAll(filepath.Dir(cmd.Output), 0755); err != nil {
			return media.RunResult{ExitCode: -1}, err
		}
		if err := os.WriteFile(cmd.Output, []byte("fake video"), 0644); err != nil {
			return media.RunResult{ExitCode: -1}, err
		}
		if d, ok := lastDurationArg(cmd.Args); ok {
			f.probes[cmd.Output] = &media.ProbeResult{Path: cmd.Output, Duration: d, HasVideo: true, HasAudio: true}
		}
	}
	return media.RunResult{}, nil
}

func (f *fakeFFmpeg) Query(ctx context.Context, args ...string) (string, error) {
	key := args[len(args)-1]
	out, ok := f.listings[key]
	if !ok {
		return "", fmt.Errorf("ffmpeg query %s failed", key)
	}
	return out, nil
}

func (f *fakeFFmpeg) Available() (bool, bool) {
	return !f.noBinaries, !f.noBinaries
}

func (f *fakeFFmpeg) stages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.commands))
	for i, c := range f.commands {
		out[i] = c.Stage
	}
	return out
}

func (f *fakeFFmpeg) countStage(stage string) int {
	n := 0
	for _, s := range f.stages() {
		if s == stage {
			n++
		}
	}
	return n
}

func (f *fakeFFmpeg) lastCommand(stage string) (media.Command, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.commands) - 1; i >= 0; i-- {
		if f.commands[i].Stage == stage {
			return f.commands[i], true
		}
	}
	return media.Command{}, false
}

func lastDurationArg(args []string) (float64, bool) {
	for i := len(args) - 2; i >= 0; i-- {
		if args[i] == "-t" {
			d, err := strconv.ParseFloat(args[i+1], 64)
			return d, err == nil
		}
	}
	return 0, false
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeClips creates empty clip files in a new folder and registers a
// landscape probe for each.
func writeClips(t *testing.T, ff *fakeFFmpeg, duration float64, names ...string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "clips")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, []byte("clip"), 0644); err != nil {
			t.Fatal(err)
		}
		ff.probes[p] = &media.ProbeResult{
			Path: p, Duration: duration, Width: 1920, Height: 1080,
			FrameRate: 30, HasVideo: true, VideoCodec: "h264",
		}
	}
	return dir
}

// writeAudio creates an audio file and registers its probed duration.
func writeAudio(t *testing.T, ff *fakeFFmpeg, duration float64) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "track.mp3")
	if err := os.WriteFile(p, []byte("ID3"), 0644); err != nil {
		t.Fatal(err)
	}
	if duration > 0 {
		ff.probes[p] = &media.ProbeResult{Path: p, Duration: duration, HasAudio: true, AudioCodec: "mp3"}
	}
	return p
}
