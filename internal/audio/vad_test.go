package audio

import (
	"testing"
)

func constantFrame(n int, amplitude int16) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = amplitude
	}
	return samples
}

func TestVADDetector_ProcessFrame_Speech(t *testing.T) {
	vad := NewVADDetector(&VADConfig{EnergyThreshold: 500.0, SilenceFrames: 10})
	samples := constantFrame(160, 5000)

	for i := 0; i < 5; i++ {
		res := vad.ProcessFrame(samples)
		if !res.Speaking || !res.Voiced {
			t.Errorf("Expected speech detection on frame %d", i)
		}
		if i == 0 && !res.Started {
			t.Error("Expected speech to start on first frame")
		}
		if i > 0 && res.Started {
			t.Errorf("Expected Started only on first frame, got it on frame %d", i)
		}
	}
}

func TestVADDetector_ProcessFrame_Silence(t *testing.T) {
	vad := NewVADDetector(&VADConfig{EnergyThreshold: 500.0, SilenceFrames: 10})
	samples := constantFrame(160, 10)

	for i := 0; i < 15; i++ {
		if res := vad.ProcessFrame(samples); res.Speaking {
			t.Errorf("Expected silence on frame %d", i)
		}
	}
}

func TestVADDetector_ProcessFrame_SpeechToSilence(t *testing.T) {
	vad := NewVADDetector(&VADConfig{EnergyThreshold: 500.0, SilenceFrames: 3})
	high := constantFrame(160, 5000)
	low := constantFrame(160, 10)

	vad.ProcessFrame(high)

	// Hangover keeps speech active until SilenceFrames silent frames have passed
	for i := 0; i < 2; i++ {
		res := vad.ProcessFrame(low)
		if !res.Speaking || res.Voiced {
			t.Errorf("Expected hangover speech with unvoiced frame %d", i)
		}
	}

	res := vad.ProcessFrame(low)
	if !res.Ended || res.Speaking {
		t.Errorf("Expected speech to end on third silent frame, got %+v", res)
	}
}

func TestVADDetector_Reset(t *testing.T) {
	vad := NewVADDetector(nil)
	vad.ProcessFrame(constantFrame(160, 5000))
	if !vad.IsSpeaking() {
		t.Fatal("Expected speaking before reset")
	}

	vad.Reset()
	if vad.IsSpeaking() {
		t.Error("Expected not speaking after reset")
	}
}

func TestDefaultVADConfig(t *testing.T) {
	config := DefaultVADConfig()
	if config.EnergyThreshold != 500.0 {
		t.Errorf("Expected EnergyThreshold 500.0, got %f", config.EnergyThreshold)
	}
	if config.SilenceFrames != 10 {
		t.Errorf("Expected SilenceFrames 10, got %d", config.SilenceFrames)
	}
}
