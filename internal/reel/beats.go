package reel

import (
	"math"
	"sort"
)

const (
	beatFrameSize = 1024
	beatHopSize   = 512

	minTempo   = 40.0
	maxTempo   = 220.0
	priorTempo = 120.0

	// tightness penalises beat intervals that stray from the tempo period.
	tightness = 100.0

	// silenceFloor is the frame RMS below which the input counts as silent.
	silenceFloor = 1e-4
)

// DetectBeats estimates the tempo in BPM and the beat times in seconds of a
// mono signal. Beat times are strictly increasing. Silent, flat or very short
// input yields no beats.
func DetectBeats(samples []float64, sampleRate int) (float64, []float64) {
	if sampleRate <= 0 || len(samples) < beatFrameSize*4 {
		return 0, nil
	}

	env, peak := onsetEnvelope(samples)
	if peak < silenceFloor {
		return 0, nil
	}

	sd := stddev(env)
	if sd < 1e-9 {
		return 0, nil
	}
	for i := range env {
		env[i] /= sd
	}

	period := estimatePeriod(env, sampleRate)
	if period <= 0 {
		return 0, nil
	}
	tempo := 60 * float64(sampleRate) / (beatHopSize * period)

	frames := trackBeats(env, period)
	beats := make([]float64, 0, len(frames))
	for _, f := range frames {
		t := float64(f*beatHopSize) / float64(sampleRate)
		if len(beats) > 0 && t <= beats[len(beats)-1] {
			continue
		}
		beats = append(beats, t)
	}
	return tempo, beats
}

// onsetEnvelope is the positive log-energy flux per hop, plus the peak frame
// RMS of the signal.
func onsetEnvelope(samples []float64) ([]float64, float64) {
	n := (len(samples)-beatFrameSize)/beatHopSize + 1
	logE := make([]float64, n)
	peak := 0.0

	for i := 0; i < n; i++ {
		frame := samples[i*beatHopSize : i*beatHopSize+beatFrameSize]
		var sum float64
		for _, s := range frame {
			sum += s * s
		}
		energy := sum / beatFrameSize
		peak = math.Max(peak, math.Sqrt(energy))
		logE[i] = 10 * math.Log10(energy+1e-10)
	}

	env := make([]float64, n)
	for i := 1; i < n; i++ {
		env[i] = math.Max(0, logE[i]-logE[i-1])
	}
	return env, peak
}

// estimatePeriod picks the beat period in frames from the autocorrelation of
// the smoothed, centred envelope, weighted by a log-normal tempo prior.
func estimatePeriod(env []float64, sampleRate int) float64 {
	framesPerMinute := 60 * float64(sampleRate) / beatHopSize
	minLag := int(math.Floor(framesPerMinute / maxTempo))
	maxLag := int(math.Ceil(framesPerMinute / minTempo))
	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= len(env)/2 {
		maxLag = len(env)/2 - 1
	}
	if maxLag <= minLag {
		return 0
	}

	x := smooth(env, []float64{1, 2, 3, 2, 1})
	mean := 0.0
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))
	for i := range x {
		x[i] -= mean
	}

	scores := make([]float64, maxLag+2)
	best, bestLag := math.Inf(-1), -1
	for lag := minLag; lag <= maxLag; lag++ {
		var ac float64
		for i := 0; i+lag < len(x); i++ {
			ac += x[i] * x[i+lag]
		}
		ac /= float64(len(x) - lag)

		bpm := framesPerMinute / float64(lag)
		w := math.Log2(bpm / priorTempo)
		scores[lag] = ac * math.Exp(-0.5*w*w)
		if scores[lag] > best {
			best, bestLag = scores[lag], lag
		}
	}
	if bestLag < 0 || best <= 0 {
		return 0
	}

	// parabolic refinement between neighbouring lags
	period := float64(bestLag)
	if bestLag > minLag && bestLag < maxLag {
		a, b, c := scores[bestLag-1], scores[bestLag], scores[bestLag+1]
		if d := a - 2*b + c; d < 0 {
			period += 0.5 * (a - c) / d
		}
	}
	return period
}

// trackBeats runs the dynamic-programming beat tracker over env and returns
// beat frame indices in order.
func trackBeats(env []float64, period float64) []int {
	n := len(env)
	local := gaussianSmooth(env, period/32)

	score := make([]float64, n)
	backlink := make([]int, n)
	maxLocal := 0.0
	for _, v := range local {
		maxLocal = math.Max(maxLocal, v)
	}

	lo := int(math.Round(2 * period))
	hi := int(math.Round(period / 2))
	if hi < 1 {
		hi = 1
	}

	for i := 0; i < n; i++ {
		best, bl := math.Inf(-1), -1
		for p := i - lo; p <= i-hi; p++ {
			if p < 0 {
				continue
			}
			r := math.Log(float64(i-p) / period)
			v := score[p] - tightness*r*r
			if v > best {
				best, bl = v, p
			}
		}
		if bl < 0 {
			score[i] = local[i]
			backlink[i] = -1
			continue
		}
		score[i] = local[i] + best
		backlink[i] = bl
	}

	// start from the strongest frame in the final period
	start := n - 1
	tail := max(0, n-int(math.Ceil(period)))
	for i := tail; i < n; i++ {
		if score[i] > score[start] {
			start = i
		}
	}

	var frames []int
	for i := start; i >= 0; i = backlink[i] {
		frames = append(frames, i)
	}
	sort.Ints(frames)

	return trimWeakBeats(frames, local, maxLocal)
}

// trimWeakBeats drops leading and trailing beats that land on silence.
func trimWeakBeats(frames []int, local []float64, maxLocal float64) []int {
	threshold := 0.05 * maxLocal
	start, end := 0, len(frames)
	for start < end && local[frames[start]] < threshold {
		start++
	}
	for end > start && local[frames[end-1]] < threshold {
		end--
	}
	return frames[start:end]
}

func smooth(x, kernel []float64) []float64 {
	half := len(kernel) / 2
	var norm float64
	for _, k := range kernel {
		norm += k
	}
	out := make([]float64, len(x))
	for i := range x {
		var acc float64
		for j, k := range kernel {
			idx := i + j - half
			if idx < 0 || idx >= len(x) {
				continue
			}
			acc += k * x[idx]
		}
		out[i] = acc / norm
	}
	return out
}

func gaussianSmooth(x []float64, sigma float64) []float64 {
	if sigma < 0.5 {
		sigma = 0.5
	}
	half := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*half+1)
	for i := range kernel {
		d := float64(i-half) / sigma
		kernel[i] = math.Exp(-0.5 * d * d)
	}
	return smooth(x, kernel)
}

func stddev(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))
	var ss float64
	for _, v := range x {
		ss += (v - mean) * (v - mean)
	}
	return math.Sqrt(ss / float64(len(x)))
}
