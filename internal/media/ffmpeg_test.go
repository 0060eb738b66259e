package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const sampleProbe = `{
  "streams": [
    {"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080,
     "r_frame_rate": "30/1", "avg_frame_rate": "30000/1001", "duration": "9.976"},
    {"codec_type": "audio", "codec_name": "aac", "sample_rate": "44100", "duration": "10.005"}
  ],
  "format": {"duration": "10.005000", "size": "2048000"}
}`

func TestParseProbe(t *testing.T) {
	res, err := ParseProbe("clip.mp4", []byte(sampleProbe))
	if err != nil {
		t.Fatalf("ParseProbe() error = %v", err)
	}

	if res.Width != 1920 || res.Height != 1080 {
		t.Errorf("size = %dx%d, want 1920x1080", res.Width, res.Height)
	}
	if math.Abs(res.Duration-10.005) > 1e-9 {
		t.Errorf("Duration = %v, want 10.005", res.Duration)
	}
	if math.Abs(res.FrameRate-29.97) > 0.01 {
		t.Errorf("FrameRate = %v, want ~29.97", res.FrameRate)
	}
	if !res.HasVideo || !res.HasAudio {
		t.Errorf("HasVideo=%v HasAudio=%v, want both", res.HasVideo, res.HasAudio)
	}
	if res.SampleRate != 44100 || res.AudioCodec != "aac" || res.VideoCodec != "h264" {
		t.Errorf("unexpected codec info: %+v", res)
	}
	if res.Size != 2048000 {
		t.Errorf("Size = %d", res.Size)
	}
}

func TestParseProbe_RotatedPortrait(t *testing.T) {
	data := `{"streams":[{"codec_type":"video","width":1920,"height":1080,
		"side_data_list":[{"rotation":-90}]}],"format":{"duration":"4.0"}}`

	res, err := ParseProbe("phone.mov", []byte(data))
	if err != nil {
		t.Fatalf("ParseProbe() error = %v", err)
	}
	if res.Width != 1080 || res.Height != 1920 {
		t.Errorf("rotated size = %dx%d, want 1080x1920", res.Width, res.Height)
	}
}

func TestParseProbe_StreamDurationFallback(t *testing.T) {
	data := `{"streams":[{"codec_type":"audio","codec_name":"mp3","duration":"31.2"}],"format":{"duration":"N/A"}}`

	res, err := ParseProbe("voice.mp3", []byte(data))
	if err != nil {
		t.Fatalf("ParseProbe() error = %v", err)
	}
	if res.Duration != 31.2 {
		t.Errorf("Duration = %v, want 31.2", res.Duration)
	}
	if res.HasVideo {
		t.Error("HasVideo = true for audio-only input")
	}
}

func TestParseProbe_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid json", "{not json"},
		{"no streams", `{"streams":[],"format":{"duration":"1.0"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseProbe("x", []byte(tt.data)); err == nil {
				t.Fatal("ParseProbe() succeeded, want error")
			}
		})
	}
}

func TestPCM16ToFloat(t *testing.T) {
	data := []byte{
		0x00, 0x00, // 0
		0xff, 0x7f, // 32767
		0x00, 0x80, // -32768
		0x01, // dangling byte
	}
	got := PCM16ToFloat(data)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0] != 0 {
		t.Errorf("got[0] = %v, want 0", got[0])
	}
	if math.Abs(got[1]-32767.0/32768.0) > 1e-12 {
		t.Errorf("got[1] = %v", got[1])
	}
	if got[2] != -1 {
		t.Errorf("got[2] = %v, want -1", got[2])
	}
}

func TestLimitedWriter_KeepsTail(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 8}

	lw.Write([]byte("0123456789"))
	lw.Write([]byte("abc"))

	if got := buf.String(); got != "56789abc" {
		t.Errorf("tail = %q, want %q", got, "56789abc")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate(short) = %q", got)
	}
	if got := Truncate("0123456789", 4); got != "...6789" {
		t.Errorf("Truncate() = %q, want ...6789", got)
	}
}

func TestExecutor_MissingBinary(t *testing.T) {
	e := NewExecutor(Config{
		FFmpegPath:  "reelsmith-no-such-ffmpeg",
		FFprobePath: "reelsmith-no-such-ffprobe",
		Logger:      testLogger(),
	})

	hasFF, hasProbe := e.Available()
	if hasFF || hasProbe {
		t.Fatalf("Available() = %v, %v, want false, false", hasFF, hasProbe)
	}

	_, err := e.Run(context.Background(), Command{Stage: "test", Args: []string{"-version"}})
	if !errors.Is(err, ErrBinaryMissing) {
		t.Errorf("Run() error = %v, want ErrBinaryMissing", err)
	}

	_, err = e.Probe(context.Background(), "/nonexistent.mp4")
	if !errors.Is(err, ErrBinaryMissing) {
		t.Errorf("Probe() error = %v, want ErrBinaryMissing", err)
	}
}

func TestNewCommand_Overwrites(t *testing.T) {
	stream := ffmpeg.Input("in.mp4").Output("out.mp4", ffmpeg.KwArgs{"c:v": "libx264"})
	cmd := NewCommand("encode", stream, "out.mp4")

	joined := strings.Join(cmd.Args, " ")
	for _, want := range []string{"-i in.mp4", "-c:v libx264", "out.mp4", "-y"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
	if cmd.Output != "out.mp4" || cmd.Stage != "encode" {
		t.Errorf("unexpected command: %+v", cmd)
	}
}

func TestExecutor_RealFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not on PATH")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not on PATH")
	}

	e := NewExecutor(Config{Logger: testLogger()})
	ctx := context.Background()
	out := filepath.Join(t.TempDir(), "tone.wav")

	stream := ffmpeg.Input("sine=frequency=440:duration=1.5", ffmpeg.KwArgs{"f": "lavfi"}).
		Output(out, ffmpeg.KwArgs{"ar": 22050, "ac": 1})
	if _, err := e.Run(ctx, NewCommand("tone", stream, out)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	res, err := e.Probe(ctx, out)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if math.Abs(res.Duration-1.5) > 0.05 {
		t.Errorf("Duration = %v, want ~1.5", res.Duration)
	}

	samples, err := e.DecodePCM(ctx, out, 22050)
	if err != nil {
		t.Fatalf("DecodePCM() error = %v", err)
	}
	if want := 22050 * 3 / 2; math.Abs(float64(len(samples)-want)) > 512 {
		t.Errorf("len(samples) = %d, want ~%d", len(samples), want)
	}
}
