package audio

import (
	"math"
	"sort"
)

// Pitch analysis bounds for adult speech
const (
	MinPitchHz         = 60.0
	MaxPitchHz         = 400.0
	LowPitchBoundaryHz = 165.0 // F0 below this is classified as low pitch

	minClarity = 0.5 // normalized autocorrelation below this is treated as unvoiced
)

// PitchResult is the outcome of classifying a run of frames
type PitchResult struct {
	IsLowPitch   bool
	Confidence   float64 // 0.0 to 1.0
	FrequencyHz  float64 // Median estimated fundamental frequency, 0 if unvoiced
	VoicedFrames int
}

// ClassifyPitch estimates the speaker's fundamental frequency over a sequence
// of mono PCM frames and classifies it as low or high pitch.
// Only frames the energy detector marks as voiced contribute. ClassifyPitch
// keeps no state between calls.
func ClassifyPitch(frames [][]int16, sampleRate int) PitchResult {
	if sampleRate <= 0 || len(frames) == 0 {
		return PitchResult{}
	}

	maxLag := int(float64(sampleRate) / MinPitchHz)
	window := 3 * maxLag

	vad := NewVADDetector(nil)
	var (
		buf       []int16
		estimates []float64
		clarities []float64
		voiced    int
	)

	for _, frame := range frames {
		res := vad.ProcessFrame(frame)
		if !res.Voiced {
			if res.Ended || !res.Speaking {
				// Windows never span two speech runs
				buf = buf[:0]
			}
			continue
		}
		voiced++
		buf = append(buf, frame...)
		for len(buf) >= window {
			if hz, clarity := EstimatePitch(buf[:window], sampleRate); hz > 0 {
				estimates = append(estimates, hz)
				clarities = append(clarities, clarity)
			}
			buf = buf[window:]
		}
	}

	if len(estimates) == 0 {
		return PitchResult{VoicedFrames: voiced}
	}

	hz := median(estimates)
	meanClarity := 0.0
	for _, c := range clarities {
		meanClarity += c
	}
	meanClarity /= float64(len(clarities))

	distance := math.Abs(hz-LowPitchBoundaryHz) / (LowPitchBoundaryHz * 0.3)
	if distance > 1 {
		distance = 1
	}

	return PitchResult{
		IsLowPitch:   hz < LowPitchBoundaryHz,
		Confidence:   distance * meanClarity,
		FrequencyHz:  hz,
		VoicedFrames: voiced,
	}
}

// EstimatePitch returns the fundamental frequency of samples using normalized
// autocorrelation, and the correlation strength at that lag. Returns 0 when no
// periodicity is found in the speech range.
func EstimatePitch(samples []int16, sampleRate int) (float64, float64) {
	minLag := int(float64(sampleRate) / MaxPitchHz)
	maxLag := int(float64(sampleRate) / MinPitchHz)
	if minLag < 1 {
		minLag = 1
	}
	if len(samples) <= maxLag+1 {
		return 0, 0
	}

	x := make([]float64, len(samples))
	mean := 0.0
	for i, s := range samples {
		x[i] = float64(s)
		mean += x[i]
	}
	mean /= float64(len(x))
	for i := range x {
		x[i] -= mean
	}

	corr := make([]float64, maxLag+2)
	best := 0.0
	for lag := minLag; lag <= maxLag+1 && lag < len(x); lag++ {
		var num, e0, e1 float64
		for i := 0; i+lag < len(x); i++ {
			num += x[i] * x[i+lag]
			e0 += x[i] * x[i]
			e1 += x[i+lag] * x[i+lag]
		}
		if e0 == 0 || e1 == 0 {
			continue
		}
		corr[lag] = num / math.Sqrt(e0*e1)
		if lag <= maxLag && corr[lag] > best {
			best = corr[lag]
		}
	}
	if best < minClarity {
		return 0, 0
	}

	// First local peak close to the global maximum avoids octave errors
	for lag := minLag + 1; lag <= maxLag; lag++ {
		c := corr[lag]
		if c >= 0.9*best && c >= corr[lag-1] && c >= corr[lag+1] {
			return float64(sampleRate) / float64(lag), c
		}
	}
	return 0, 0
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
