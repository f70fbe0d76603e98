package audio

import (
	"math"
	"testing"
)

// sineFrames generates a tone split into fixed-size frames
func sineFrames(freq float64, sampleRate, frameSize, frames int, amplitude float64) [][]int16 {
	out := make([][]int16, frames)
	n := 0
	for f := range out {
		frame := make([]int16, frameSize)
		for i := range frame {
			frame[i] = int16(amplitude * math.Sin(2*math.Pi*freq*float64(n)/float64(sampleRate)))
			n++
		}
		out[f] = frame
	}
	return out
}

func TestEstimatePitch(t *testing.T) {
	tests := []struct {
		name       string
		freq       float64
		sampleRate int
	}{
		{"low voice 8k", 120, 8000},
		{"high voice 8k", 240, 8000},
		{"low voice 16k", 110, 16000},
		{"high voice 16k", 210, 16000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := sineFrames(tt.freq, tt.sampleRate, 3*tt.sampleRate/60, 1, 8000)[0]
			hz, clarity := EstimatePitch(samples, tt.sampleRate)
			if math.Abs(hz-tt.freq) > tt.freq*0.05 {
				t.Errorf("Expected pitch near %.0f Hz, got %.1f Hz", tt.freq, hz)
			}
			if clarity < 0.9 {
				t.Errorf("Expected strong periodicity for a pure tone, got %.2f", clarity)
			}
		})
	}
}

func TestEstimatePitch_TooShort(t *testing.T) {
	if hz, _ := EstimatePitch(make([]int16, 10), 8000); hz != 0 {
		t.Errorf("Expected 0 Hz for too-short input, got %f", hz)
	}
}

func TestClassifyPitch_Low(t *testing.T) {
	res := ClassifyPitch(sineFrames(120, 8000, 160, 50, 8000), 8000)
	if !res.IsLowPitch {
		t.Errorf("Expected low pitch for 120 Hz tone, got %+v", res)
	}
	if res.Confidence <= 0.5 || res.Confidence > 1 {
		t.Errorf("Expected confidence in (0.5, 1], got %f", res.Confidence)
	}
	if res.VoicedFrames != 50 {
		t.Errorf("Expected 50 voiced frames, got %d", res.VoicedFrames)
	}
}

func TestClassifyPitch_High(t *testing.T) {
	res := ClassifyPitch(sineFrames(240, 8000, 160, 50, 8000), 8000)
	if res.IsLowPitch {
		t.Errorf("Expected high pitch for 240 Hz tone, got %+v", res)
	}
	if math.Abs(res.FrequencyHz-240) > 12 {
		t.Errorf("Expected frequency near 240 Hz, got %f", res.FrequencyHz)
	}
}

func TestClassifyPitch_Silence(t *testing.T) {
	frames := make([][]int16, 20)
	for i := range frames {
		frames[i] = make([]int16, 160)
	}

	res := ClassifyPitch(frames, 8000)
	if res.Confidence != 0 || res.FrequencyHz != 0 || res.VoicedFrames != 0 {
		t.Errorf("Expected empty result for silence, got %+v", res)
	}
}

func TestClassifyPitch_InvalidInput(t *testing.T) {
	if res := ClassifyPitch(nil, 8000); res != (PitchResult{}) {
		t.Errorf("Expected zero result for no frames, got %+v", res)
	}
	if res := ClassifyPitch(sineFrames(120, 8000, 160, 5, 8000), 0); res != (PitchResult{}) {
		t.Errorf("Expected zero result for invalid sample rate, got %+v", res)
	}
}
