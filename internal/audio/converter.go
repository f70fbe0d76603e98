package audio

import "math"

// EncodePCMU converts 16-bit linear PCM samples to G.711 PCMU (μ-law)
func EncodePCMU(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, sample := range samples {
		out[i] = linearToMulaw(sample)
	}
	return out
}

// DecodePCMU converts G.711 PCMU (μ-law) bytes to 16-bit linear PCM samples
func DecodePCMU(payload []byte) []int16 {
	out := make([]int16, len(payload))
	for i, b := range payload {
		out[i] = mulawToLinear(b)
	}
	return out
}

// linearToMulaw encodes one sample using the ITU-T G.711 μ-law curve
func linearToMulaw(sample int16) byte {
	const (
		bias = 0x84  // 132
		clip = 32635 // keeps magnitude+bias within 15 bits
	)

	magnitude := int32(sample)
	var sign byte
	if magnitude < 0 {
		sign = 0x80
		magnitude = -magnitude
	}
	if magnitude > clip {
		magnitude = clip
	}
	magnitude += bias

	// Segment is the position of the highest set bit above bit 7
	exponent := byte(7)
	for mask := int32(0x4000); magnitude&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((magnitude >> (exponent + 3)) & 0x0F)

	return ^(sign | exponent<<4 | mantissa)
}

// mulawToLinear decodes one G.711 μ-law byte
func mulawToLinear(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F

	magnitude := ((int32(mantissa) << 3) + 0x84) << exponent
	magnitude -= 0x84

	if sign != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}

// Resample converts mono samples between sample rates.
// Integer downsampling ratios average each block of input samples, which also
// acts as a crude anti-alias filter; other ratios use linear interpolation.
func Resample(samples []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate || len(samples) == 0 || inputRate <= 0 || outputRate <= 0 {
		return samples
	}

	if inputRate > outputRate && inputRate%outputRate == 0 {
		factor := inputRate / outputRate
		output := make([]int16, len(samples)/factor)
		for i := range output {
			sum := 0
			for _, s := range samples[i*factor : (i+1)*factor] {
				sum += int(s)
			}
			output[i] = int16(sum / factor)
		}
		return output
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]int16, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio
		idx0 := int(srcPos)
		if idx0 >= len(samples) {
			idx0 = len(samples) - 1
		}
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := srcPos - float64(idx0)
		output[i] = int16(math.Round(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction))
	}

	return output
}

// SamplesToBytes converts samples to little-endian 16-bit PCM bytes
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// CalculateRMS calculates the root mean square (RMS) of audio samples
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}
