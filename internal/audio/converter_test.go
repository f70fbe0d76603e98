package audio

import (
	"testing"
	"time"
)

func TestPCMU_RoundTrip(t *testing.T) {
	inputs := []int16{0, 1, -1, 100, -100, 1000, -1000, 8000, -8000, 20000, -20000, 32000, -32000}

	decoded := DecodePCMU(EncodePCMU(inputs))
	if len(decoded) != len(inputs) {
		t.Fatalf("Expected %d samples, got %d", len(inputs), len(decoded))
	}

	for i, in := range inputs {
		diff := int(decoded[i]) - int(in)
		if diff < 0 {
			diff = -diff
		}
		abs := int(in)
		if abs < 0 {
			abs = -abs
		}
		// μ-law quantization step grows with magnitude (~1/16 of the value)
		tolerance := (abs+132)/16 + 1
		if diff > tolerance {
			t.Errorf("Sample %d: %d decoded to %d (error %d > %d)", i, in, decoded[i], diff, tolerance)
		}
	}
}

func TestPCMU_SignAndSilence(t *testing.T) {
	encoded := EncodePCMU([]int16{0})
	if encoded[0] != 0xFF {
		t.Errorf("Expected silence to encode as 0xFF, got 0x%02X", encoded[0])
	}

	decoded := DecodePCMU(EncodePCMU([]int16{5000, -5000}))
	if decoded[0] <= 0 || decoded[1] >= 0 {
		t.Errorf("Expected sign to be preserved, got %v", decoded)
	}
}

func TestPCMU_Clipping(t *testing.T) {
	decoded := DecodePCMU(EncodePCMU([]int16{32767, -32768}))
	if decoded[0] < 30000 || decoded[1] > -30000 {
		t.Errorf("Expected full-scale samples to stay near full scale, got %v", decoded)
	}
}

func TestResample(t *testing.T) {
	tests := []struct {
		name       string
		inputLen   int
		inputRate  int
		outputRate int
		wantLen    int
	}{
		{"same rate", 480, 48000, 48000, 480},
		{"48k to 8k", 960, 48000, 8000, 160},
		{"48k to 16k", 960, 48000, 16000, 320},
		{"8k to 48k", 160, 8000, 48000, 960},
		{"24k to 16k", 480, 24000, 16000, 320},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := make([]int16, tt.inputLen)
			for i := range samples {
				samples[i] = 1000
			}
			out := Resample(samples, tt.inputRate, tt.outputRate)
			if len(out) != tt.wantLen {
				t.Errorf("Expected %d samples, got %d", tt.wantLen, len(out))
			}
			for i, s := range out {
				if s != 1000 {
					t.Errorf("Expected constant signal to stay constant, sample %d = %d", i, s)
					break
				}
			}
		})
	}
}

func TestResample_Decimation(t *testing.T) {
	out := Resample([]int16{0, 6, 12, 18, 24, 30}, 48000, 16000)
	want := []int16{6, 24}
	if len(out) != len(want) {
		t.Fatalf("Expected %d samples, got %d", len(want), len(out))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, want[i], out[i])
		}
	}
}

func TestSamplesToBytes(t *testing.T) {
	out := SamplesToBytes([]int16{1, -1, -32768})
	want := []byte{0x01, 0x00, 0xFF, 0xFF, 0x00, 0x80}
	if len(out) != len(want) {
		t.Fatalf("Expected %d bytes, got %d", len(want), len(out))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("Byte %d: expected %#x, got %#x", i, want[i], out[i])
		}
	}
}

func TestCalculateRMS(t *testing.T) {
	if rms := CalculateRMS(nil); rms != 0 {
		t.Errorf("Expected 0 for empty input, got %f", rms)
	}
	if rms := CalculateRMS([]int16{3, -3, 3, -3}); rms != 3 {
		t.Errorf("Expected RMS 3, got %f", rms)
	}
}

func TestFrameDuration(t *testing.T) {
	if d := FrameDuration(960, 48000); d != 20*time.Millisecond {
		t.Errorf("Expected 20ms, got %v", d)
	}
	if d := FrameDuration(160, 0); d != 0 {
		t.Errorf("Expected 0 for invalid sample rate, got %v", d)
	}
}
