package reel

import (
	"math"
	"sort"
	"testing"
)

// clickTrack synthesises decaying 1 kHz clicks at bpm over silence.
func clickTrack(bpm float64, seconds float64, sr int) []float64 {
	samples := make([]float64, int(seconds*float64(sr)))
	interval := 60 / bpm
	clickLen := int(0.03 * float64(sr))
	for beat := 0.0; beat < seconds; beat += interval {
		start := int(beat * float64(sr))
		for i := 0; i < clickLen && start+i < len(samples); i++ {
			t := float64(i) / float64(sr)
			samples[start+i] = 0.8 * math.Exp(-t*120) * math.Sin(2*math.Pi*1000*t)
		}
	}
	return samples
}

func TestDetectBeats_ClickTrack(t *testing.T) {
	const sr = 22050
	tempo, beats := DetectBeats(clickTrack(120, 10, sr), sr)

	if math.Abs(tempo-120) > 10 {
		t.Errorf("tempo = %.1f, want about 120", tempo)
	}
	if len(beats) < 15 {
		t.Fatalf("beats = %d, want at least 15", len(beats))
	}
	for i := 1; i < len(beats); i++ {
		if beats[i] <= beats[i-1] {
			t.Fatalf("beats not strictly increasing at %d: %v <= %v", i, beats[i], beats[i-1])
		}
	}

	intervals := make([]float64, len(beats)-1)
	for i := range intervals {
		intervals[i] = beats[i+1] - beats[i]
	}
	sort.Float64s(intervals)
	if median := intervals[len(intervals)/2]; math.Abs(median-0.5) > 0.05 {
		t.Errorf("median beat interval = %.3f, want about 0.5", median)
	}
}

func TestDetectBeats_NoBeats(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		sr      int
	}{
		{"silence", make([]float64, 22050*5), 22050},
		{"too short", clickTrack(120, 0.1, 22050), 22050},
		{"empty", nil, 22050},
		{"bad rate", clickTrack(120, 5, 22050), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempo, beats := DetectBeats(tt.samples, tt.sr)
			if tempo != 0 || len(beats) != 0 {
				t.Errorf("DetectBeats() = %v, %d beats; want none", tempo, len(beats))
			}
		})
	}
}
