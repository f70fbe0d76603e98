package audio

// VADConfig holds configuration for the energy-based voice activity detector
type VADConfig struct {
	EnergyThreshold float64 // RMS energy threshold for speech detection
	SilenceFrames   int     // Consecutive silent frames that end a speech run
}

// DefaultVADConfig returns a default VAD configuration
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   10, // 200ms at 20ms frames
	}
}

// VADResult describes the detector state after one frame
type VADResult struct {
	Speaking bool    // Speech is active after this frame
	Voiced   bool    // This frame alone is above the energy threshold
	Started  bool    // Speech began on this frame
	Ended    bool    // Speech ended on this frame
	RMS      float64 // Frame energy
}

// VADDetector tracks speech runs across consecutive frames
type VADDetector struct {
	config         VADConfig
	silenceCounter int
	isSpeaking     bool
}

// NewVADDetector creates a new VAD detector
func NewVADDetector(config *VADConfig) *VADDetector {
	if config == nil {
		config = DefaultVADConfig()
	}
	return &VADDetector{config: *config}
}

// ProcessFrame updates the detector with one frame of samples
func (v *VADDetector) ProcessFrame(samples []int16) VADResult {
	rms := CalculateRMS(samples)
	result := VADResult{RMS: rms, Voiced: rms > v.config.EnergyThreshold}

	if result.Voiced {
		v.silenceCounter = 0
		if !v.isSpeaking {
			result.Started = true
			v.isSpeaking = true
		}
	} else {
		v.silenceCounter++
		if v.isSpeaking && v.silenceCounter >= v.config.SilenceFrames {
			result.Ended = true
			v.isSpeaking = false
			v.silenceCounter = 0
		}
	}

	result.Speaking = v.isSpeaking
	return result
}

// Reset resets the VAD detector state
func (v *VADDetector) Reset() {
	v.silenceCounter = 0
	v.isSpeaking = false
}

// IsSpeaking returns whether speech is currently detected
func (v *VADDetector) IsSpeaking() bool {
	return v.isSpeaking
}
