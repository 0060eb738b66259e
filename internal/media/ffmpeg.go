package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics

	// DefaultSampleRate is the analysis rate used for beat detection.
	DefaultSampleRate = 22050
)

// ErrBinaryMissing is returned when ffmpeg or ffprobe cannot be found.
var ErrBinaryMissing = errors.New("media binary not found")

// FFmpeg is the contract the renderer and captioner use to reach ffmpeg.
type FFmpeg interface {
	// Probe runs ffprobe on path.
	Probe(ctx context.Context, path string) (*ProbeResult, error)

	// DecodePCM decodes the first audio stream of path to mono samples in
	// [-1, 1] at sampleRate.
	DecodePCM(ctx context.Context, path string, sampleRate int) ([]float64, error)

	// Run executes one ffmpeg invocation.
	Run(ctx context.Context, cmd Command) (RunResult, error)

	// Query runs a short informational ffmpeg call (-encoders, -filters,
	// -version) and returns its stdout.
	Query(ctx context.Context, args ...string) (string, error)

	// Available reports whether the ffmpeg and ffprobe binaries resolve.
	Available() (hasFFmpeg, hasFFprobe bool)
}

// Command is one ffmpeg invocation and the file it produces.
type Command struct {
	Stage  string
	Args   []string
	Output string
}

// NewCommand compiles an ffmpeg-go stream graph into a Command.
func NewCommand(stage string, stream *ffmpeg.Stream, output string) Command {
	return Command{
		Stage:  stage,
		Args:   stream.OverWriteOutput().GetArgs(),
		Output: output,
	}
}

func (c Command) String() string {
	return "ffmpeg " + strings.Join(c.Args, " ")
}

// Config holds the executor's configuration.
type Config struct {
	FFmpegPath  string
	FFprobePath string
	Logger      *slog.Logger
	DebugPaths  bool // if true, log full file paths; otherwise sanitise
}

// Executor is the production implementation of FFmpeg.
type Executor struct {
	cfg     Config
	ffmpeg  string
	ffprobe string
}

// NewExecutor resolves the configured binaries. Missing binaries are not an
// error here; Available reports them and Run fails with ErrBinaryMissing.
func NewExecutor(cfg Config) *Executor {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	e := &Executor{cfg: cfg}
	if p, err := exec.LookPath(cfg.FFmpegPath); err == nil {
		e.ffmpeg = p
	}
	if p, err := exec.LookPath(cfg.FFprobePath); err == nil {
		e.ffprobe = p
	}

	cfg.Logger.Info("media executor initialised",
		"ffmpeg", e.ffmpeg,
		"ffprobe", e.ffprobe,
	)
	return e
}

func (e *Executor) Available() (bool, bool) {
	return e.ffmpeg != "", e.ffprobe != ""
}

// Probe runs ffprobe with JSON output and parses it.
func (e *Executor) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	if e.ffprobe == "" {
		return nil, fmt.Errorf("%w: %s", ErrBinaryMissing, e.cfg.FFprobePath)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("cannot probe %s: %w", e.safePath(path), err)
	}

	args := []string{"-v", "error", "-show_format", "-show_streams", "-of", "json", path}
	cmd := exec.CommandContext(ctx, e.ffprobe, args...)

	var stdout, stderrBuf bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w: %s", e.safePath(path), err, truncate(stderrBuf.String(), 512))
	}
	return ParseProbe(path, stdout.Bytes())
}

// DecodePCM pipes signed 16-bit mono PCM out of ffmpeg.
func (e *Executor) DecodePCM(ctx context.Context, path string, sampleRate int) ([]float64, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	stream := ffmpeg.Input(path).Output("pipe:", ffmpeg.KwArgs{
		"map": "0:a:0",
		"f":   "s16le",
		"ac":  1,
		"ar":  sampleRate,
	})
	cmd := Command{Stage: "decode", Args: stream.GetArgs()}

	var stdout bytes.Buffer
	if _, err := e.exec(ctx, cmd, &stdout); err != nil {
		return nil, err
	}

	return PCM16ToFloat(stdout.Bytes()), nil
}

// Run executes cmd and returns an error for any non-zero exit.
func (e *Executor) Run(ctx context.Context, cmd Command) (RunResult, error) {
	if cmd.Output != "" {
		if err := os.MkdirAll(filepath.Dir(cmd.Output), 0755); err != nil {
			return RunResult{ExitCode: -1, StderrTail: err.Error()}, fmt.Errorf("cannot create output dir: %w", err)
		}
	}
	return e.exec(ctx, cmd, io.Discard)
}

func (e *Executor) Query(ctx context.Context, args ...string) (string, error) {
	var stdout bytes.Buffer
	if _, err := e.exec(ctx, Command{Stage: "query", Args: args}, &stdout); err != nil {
		return "", err
	}
	return stdout.String(), nil
}

// exec is the core subprocess execution helper.
func (e *Executor) exec(ctx context.Context, c Command, stdout io.Writer) (RunResult, error) {
	if e.ffmpeg == "" {
		return RunResult{ExitCode: -1}, fmt.Errorf("%w: %s", ErrBinaryMissing, e.cfg.FFmpegPath)
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, e.ffmpeg, c.Args...)

	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	cmd.Stdout = stdout

	e.cfg.Logger.Debug("executing ffmpeg", "stage", c.Stage, "args", c.Args)

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	result := RunResult{
		ExitCode:   exitCode,
		StderrTail: stderrBuf.String(),
		Duration:   elapsed,
	}

	if exitCode != 0 {
		e.cfg.Logger.Warn("ffmpeg command failed",
			"stage", c.Stage,
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(result.StderrTail, 512),
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, fmt.Errorf("ffmpeg %s: %w", c.Stage, ctxErr)
		}
		return result, fmt.Errorf("ffmpeg %s exited %d: %s", c.Stage, exitCode, truncate(result.StderrTail, 512))
	}

	e.cfg.Logger.Debug("ffmpeg command succeeded",
		"stage", c.Stage,
		"duration_ms", elapsed.Milliseconds(),
		"output", e.safePath(c.Output),
	)
	return result, nil
}

func (e *Executor) safePath(path string) string {
	if e.cfg.DebugPaths || path == "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Base(path)
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return filepath.Base(path)
}

// PCM16ToFloat converts little-endian signed 16-bit samples to [-1, 1].
// A trailing odd byte is dropped.
func PCM16ToFloat(data []byte) []float64 {
	n := len(data) / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[2*i:]))
		out[i] = float64(v) / 32768.0
	}
	return out
}

// Truncate keeps the last maxLen bytes of s, prefixed with "...".
func Truncate(s string, maxLen int) string {
	return truncate(s, maxLen)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		tail := make([]byte, lw.limit)
		copy(tail, b[len(b)-lw.limit:])
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
