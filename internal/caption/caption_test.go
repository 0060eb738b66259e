package caption

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/reelsmith/reelsmith-agent/internal/media"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const sampleSRT = "\ufeff1\n00:00:00,000 --> 00:00:06,000\nthis is a long sentence that keeps going for twelve whole words\n\n" +
	"2\n00:00:06.500 --> 00:00:08,000 X1:0\nshort one\n\n" +
	"3\nnot a timing line\nignored text\n\n" +
	"4\n00:00:09,000 --> 00:00:10,250\nline one\nline two\n"

func TestParseSRT(t *testing.T) {
	cues, err := ParseSRT(strings.NewReader(sampleSRT))
	if err != nil {
		t.Fatalf("ParseSRT: %v", err)
	}
	if len(cues) != 3 {
		t.Fatalf("cues = %d, want 3: %+v", len(cues), cues)
	}
	if cues[0].End != 6*time.Second || !strings.HasPrefix(cues[0].Text, "this is") {
		t.Errorf("cue 0 = %+v", cues[0])
	}
	if cues[1].Start != 6500*time.Millisecond || cues[1].Text != "short one" {
		t.Errorf("cue 1 = %+v", cues[1])
	}
	if cues[2].Text != "line one\nline two" || cues[2].End != 10250*time.Millisecond {
		t.Errorf("cue 2 = %+v", cues[2])
	}
}

func TestFormatSRT(t *testing.T) {
	cues := []Cue{
		{Start: 0, End: 1500 * time.Millisecond, Text: "hello there"},
		{Start: time.Hour + 2*time.Minute + 3*time.Second + 4*time.Millisecond, End: time.Hour + 2*time.Minute + 5*time.Second, Text: "later"},
	}
	want := "1\n00:00:00,000 --> 00:00:01,500\nhello there\n\n" +
		"2\n01:02:03,004 --> 01:02:05,000\nlater\n\n"
	if got := FormatSRT(cues); got != want {
		t.Errorf("FormatSRT =\n%q\nwant\n%q", got, want)
	}

	back, err := ParseSRT(strings.NewReader(want))
	if err != nil {
		t.Fatal(err)
	}
	if back[1].Start != cues[1].Start {
		t.Errorf("reparsed start = %v, want %v", back[1].Start, cues[1].Start)
	}
}

func TestRegroup(t *testing.T) {
	cues := []Cue{
		{Start: 0, End: 6 * time.Second, Text: "one two three four five six seven eight nine ten eleven twelve"},
		{Start: 6 * time.Second, End: 7 * time.Second, Text: "  just   three words "},
		{Start: 7 * time.Second, End: 8 * time.Second, Text: "   "},
		{Start: 8 * time.Second, End: 11 * time.Second, Text: "a b c d e f"},
	}

	got := Regroup(cues, 5)

	want := []Cue{
		{Index: 1, Start: 0, End: 2 * time.Second, Text: "one two three four"},
		{Index: 2, Start: 2 * time.Second, End: 4 * time.Second, Text: "five six seven eight"},
		{Index: 3, Start: 4 * time.Second, End: 6 * time.Second, Text: "nine ten eleven twelve"},
		{Index: 4, Start: 6 * time.Second, End: 7 * time.Second, Text: "just three words"},
		{Index: 5, Start: 8 * time.Second, End: 9500 * time.Millisecond, Text: "a b c"},
		{Index: 6, Start: 9500 * time.Millisecond, End: 11 * time.Second, Text: "d e f"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Regroup =\n%+v\nwant\n%+v", got, want)
	}

	for _, c := range got {
		if n := len(strings.Fields(c.Text)); n > 5 {
			t.Errorf("cue %d has %d words", c.Index, n)
		}
	}
}

func TestStyle_ForceStyle(t *testing.T) {
	want := "FontName=Arial,FontSize=24,PrimaryColour=&H00FFFFFF,OutlineColour=&H00000000,Outline=2,Alignment=2,MarginV=200"
	if got := DefaultStyle().ForceStyle(); got != want {
		t.Errorf("ForceStyle() = %q\nwant %q", got, want)
	}
}

func TestAssColour(t *testing.T) {
	tests := map[string]string{
		"white":   "&H00FFFFFF",
		"Yellow":  "&H0000FFFF",
		"#102030": "&H00302010",
		"#abcdef": "&H00EFCDAB",
		"mauve":   "&H00FFFFFF",
	}
	for in, want := range tests {
		if got := assColour(in); got != want {
			t.Errorf("assColour(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSubtitlesFilter_Quotes(t *testing.T) {
	got := subtitlesFilter("/tmp/it's.srt", DefaultStyle())
	if !strings.HasPrefix(got, `subtitles='/tmp/it'\''s.srt':force_style='FontName=Arial`) {
		t.Errorf("filter = %q", got)
	}
}

func TestSoftSubtitleCommand(t *testing.T) {
	cmd := SoftSubtitleCommand("in.mp4", "subs.srt", "out.mp4")
	args := strings.Join(cmd.Args, " ")
	for _, want := range []string{"-i in.mp4", "-i subs.srt", "-c copy", "-c:s mov_text", "out.mp4"} {
		if !strings.Contains(args, want) {
			t.Errorf("args missing %q: %s", want, args)
		}
	}
}

type fakeTranscriber struct {
	text string
	err  error
	got  string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	f.got = path
	return f.text, f.err
}

type fakeFFmpeg struct {
	mu         sync.Mutex
	failStages map[string]bool
	stages     []string
}

func (f *fakeFFmpeg) Probe(ctx context.Context, path string) (*media.ProbeResult, error) {
	return nil, errors.New("not used")
}

func (f *fakeFFmpeg) DecodePCM(ctx context.Context, path string, sr int) ([]float64, error) {
	return nil, errors.New("not used")
}

func (f *fakeFFmpeg) Run(ctx context.Context, cmd media.Command) (media.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages = append(f.stages, cmd.Stage)
	if f.failStages[cmd.Stage] {
		return media.RunResult{ExitCode: 1, StderrTail: "No such filter: 'subtitles'"}, fmt.Errorf("ffmpeg %s exited 1", cmd.Stage)
	}
	return media.RunResult{}, os.WriteFile(cmd.Output, []byte("video"), 0644)
}

func (f *fakeFFmpeg) Query(ctx context.Context, args ...string) (string, error) {
	return "", nil
}

func (f *fakeFFmpeg) Available() (bool, bool) { return true, true }

func TestCaptioner_BurnIn(t *testing.T) {
	dir := t.TempDir()
	tr := &fakeTranscriber{text: sampleSRT}
	ff := &fakeFFmpeg{}
	c := NewCaptioner(tr, ff, Options{BurnIn: true, CanBurn: true}, testLogger())

	res, err := c.Caption(context.Background(), Request{
		VideoPath:  filepath.Join(dir, "reel.mp4"),
		AudioPath:  filepath.Join(dir, "voice.mp3"),
		OutputPath: filepath.Join(dir, "out", "reel_captioned.mp4"),
	})
	if err != nil {
		t.Fatalf("Caption: %v", err)
	}

	if res.Mode != ModeBurned {
		t.Errorf("Mode = %s, want burned", res.Mode)
	}
	if tr.got != filepath.Join(dir, "voice.mp3") {
		t.Errorf("transcribed %s, want the audio track", tr.got)
	}
	if res.SRTPath != filepath.Join(dir, "out", "reel_captioned.srt") {
		t.Errorf("SRTPath = %s", res.SRTPath)
	}
	if res.Cues != 5 {
		t.Errorf("Cues = %d, want 5", res.Cues)
	}
	data, err := os.ReadFile(res.SRTPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "1\n00:00:00,000 --> ") {
		t.Errorf("srt = %q", data)
	}
	if !reflect.DeepEqual(ff.stages, []string{"burn-in"}) {
		t.Errorf("stages = %v", ff.stages)
	}
}

func TestCaptioner_FallsBackToSoftSubtitles(t *testing.T) {
	dir := t.TempDir()
	ff := &fakeFFmpeg{failStages: map[string]bool{"burn-in": true}}
	c := NewCaptioner(&fakeTranscriber{text: sampleSRT}, ff, Options{BurnIn: true, CanBurn: true}, testLogger())

	res, err := c.Caption(context.Background(), Request{
		VideoPath:  filepath.Join(dir, "reel.mp4"),
		OutputPath: filepath.Join(dir, "captioned.mp4"),
		SRTPath:    filepath.Join(dir, "subs", "reel.srt"),
	})
	if err != nil {
		t.Fatalf("Caption: %v", err)
	}
	if res.Mode != ModeSoft {
		t.Errorf("Mode = %s, want soft", res.Mode)
	}
	if !reflect.DeepEqual(ff.stages, []string{"burn-in", "soft-subtitles"}) {
		t.Errorf("stages = %v", ff.stages)
	}
	if _, err := os.Stat(filepath.Join(dir, "subs", "reel.srt")); err != nil {
		t.Errorf("srt not written: %v", err)
	}
}

func TestCaptioner_NoSubtitleFilterSkipsBurnIn(t *testing.T) {
	dir := t.TempDir()
	ff := &fakeFFmpeg{}
	c := NewCaptioner(&fakeTranscriber{text: sampleSRT}, ff, Options{BurnIn: true, CanBurn: false}, testLogger())

	res, err := c.Caption(context.Background(), Request{
		VideoPath: filepath.Join(dir, "reel.mp4"), OutputPath: filepath.Join(dir, "c.mp4"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Mode != ModeSoft || !reflect.DeepEqual(ff.stages, []string{"soft-subtitles"}) {
		t.Errorf("mode %s stages %v, want soft only", res.Mode, ff.stages)
	}
}

func TestCaptioner_Errors(t *testing.T) {
	dir := t.TempDir()
	req := Request{VideoPath: filepath.Join(dir, "reel.mp4"), OutputPath: filepath.Join(dir, "c.mp4")}

	_, err := NewCaptioner(&fakeTranscriber{text: "\n\n"}, &fakeFFmpeg{}, Options{}, testLogger()).Caption(context.Background(), req)
	if !errors.Is(err, ErrNoSpeech) {
		t.Errorf("empty transcript: err = %v, want ErrNoSpeech", err)
	}

	boom := errors.New("quota exceeded")
	_, err = NewCaptioner(&fakeTranscriber{err: boom}, &fakeFFmpeg{}, Options{}, testLogger()).Caption(context.Background(), req)
	if !errors.Is(err, boom) {
		t.Errorf("transcriber failure: err = %v", err)
	}

	ff := &fakeFFmpeg{failStages: map[string]bool{"soft-subtitles": true}}
	_, err = NewCaptioner(&fakeTranscriber{text: sampleSRT}, ff, Options{}, testLogger()).Caption(context.Background(), req)
	if err == nil || !strings.Contains(err.Error(), "soft-subtitles") {
		t.Errorf("mux failure: err = %v", err)
	}
}

func TestWhisperTranscriber(t *testing.T) {
	var model, format string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		model = r.FormValue("model")
		format = r.FormValue("response_format")
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("1\n00:00:00,000 --> 00:00:01,000\nhi\n"))
	}))
	defer srv.Close()

	audio := filepath.Join(t.TempDir(), "voice.mp3")
	if err := os.WriteFile(audio, []byte("ID3"), 0644); err != nil {
		t.Fatal(err)
	}

	tr, err := NewWhisperTranscriber("sk-test", srv.URL+"/v1", "", testLogger())
	if err != nil {
		t.Fatal(err)
	}
	text, err := tr.Transcribe(context.Background(), audio)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if model != "whisper-1" || format != "srt" {
		t.Errorf("model = %q format = %q", model, format)
	}
	if !strings.Contains(text, "hi") {
		t.Errorf("text = %q", text)
	}
}

func TestNewWhisperTranscriber_NoKey(t *testing.T) {
	if _, err := NewWhisperTranscriber("", "", "", testLogger()); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("err = %v, want ErrNoAPIKey", err)
	}
}
