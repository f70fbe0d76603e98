package device

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-scribe/internal/audio"
	"github.com/lexiqai/voice-scribe/internal/observability"
)

// Microphone captures mono PCM frames from an input device
type Microphone struct {
	stream     *portaudio.Stream
	buffer     []int16
	frames     chan []int16
	sampleRate int

	stopped   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	logger    zerolog.Logger
}

// OpenMicrophone starts capturing from the configured input device
func OpenMicrophone(cfg Config) (*Microphone, error) {
	buffer := make([]int16, cfg.FrameSize)
	stream, err := openStream(cfg, true, buffer)
	if err != nil {
		return nil, err
	}

	m := &Microphone{
		stream:     stream,
		buffer:     buffer,
		frames:     make(chan []int16, 50),
		sampleRate: cfg.SampleRate,
		done:       make(chan struct{}),
		logger:     observability.WithComponent("microphone"),
	}
	go m.captureLoop()

	m.logger.Info().
		Int("sample_rate", cfg.SampleRate).
		Int("frame_size", cfg.FrameSize).
		Str("device", cfg.DeviceName).
		Msg("Microphone opened")
	return m, nil
}

// MicrophoneOpener adapts OpenMicrophone to audio.SourceOpener
func MicrophoneOpener(cfg Config) audio.SourceOpener {
	return func() (audio.Source, error) {
		return OpenMicrophone(cfg)
	}
}

// captureLoop reads the stream until Close stops it
func (m *Microphone) captureLoop() {
	defer close(m.done)
	defer close(m.frames)

	for !m.stopped.Load() {
		if err := m.stream.Read(); err != nil {
			if m.stopped.Load() {
				return
			}
			if errors.Is(err, portaudio.InputOverflowed) {
				continue
			}
			m.logger.Error().Err(err).Msg("Microphone read failed")
			observability.RecordError("read_failed", "microphone")
			return
		}

		frame := make([]int16, len(m.buffer))
		copy(frame, m.buffer)
		observability.RecordAudioBytes("in", int64(len(frame)*2))

		select {
		case m.frames <- frame:
		default:
			// Consumer is behind, drop this frame
		}
	}
}

// Frames returns the channel of captured frames
func (m *Microphone) Frames() <-chan []int16 {
	return m.frames
}

// SampleRate returns the capture rate
func (m *Microphone) SampleRate() int {
	return m.sampleRate
}

// Close stops capture and releases the device
func (m *Microphone) Close() error {
	m.closeOnce.Do(func() {
		m.stopped.Store(true)
		if err := m.stream.Stop(); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to stop microphone stream")
		}
		<-m.done
		m.closeErr = m.stream.Close()
		portaudio.Terminate()
		m.logger.Info().Msg("Microphone released")
	})
	return m.closeErr
}
