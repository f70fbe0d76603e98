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

// Speaker plays remote audio through an output device.
// Writes land in a ring buffer that the output loop drains; gaps play as silence.
type Speaker struct {
	stream     *portaudio.Stream
	buffer     []int16
	pending    *audio.SampleBuffer
	sampleRate int

	stopped   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	logger    zerolog.Logger
}

// OpenSpeaker starts an output stream. bufferSize bounds queued samples.
func OpenSpeaker(cfg Config, bufferSize int) (*Speaker, error) {
	buffer := make([]int16, cfg.FrameSize)
	stream, err := openStream(cfg, false, buffer)
	if err != nil {
		return nil, err
	}

	s := &Speaker{
		stream:     stream,
		buffer:     buffer,
		pending:    audio.NewSampleBuffer(bufferSize),
		sampleRate: cfg.SampleRate,
		done:       make(chan struct{}),
		logger:     observability.WithComponent("speaker"),
	}
	go s.playbackLoop()

	s.logger.Info().
		Int("sample_rate", cfg.SampleRate).
		Str("device", cfg.DeviceName).
		Msg("Speaker opened")
	return s, nil
}

// SpeakerOpener adapts OpenSpeaker to audio.SinkOpener
func SpeakerOpener(cfg Config, bufferSize int) audio.SinkOpener {
	return func() (audio.Sink, error) {
		return OpenSpeaker(cfg, bufferSize)
	}
}

func (s *Speaker) playbackLoop() {
	defer close(s.done)

	for !s.stopped.Load() {
		n := s.pending.Read(s.buffer)
		for i := n; i < len(s.buffer); i++ {
			s.buffer[i] = 0
		}
		if err := s.stream.Write(); err != nil {
			if s.stopped.Load() {
				return
			}
			if errors.Is(err, portaudio.OutputUnderflowed) {
				continue
			}
			s.logger.Error().Err(err).Msg("Speaker write failed")
			observability.RecordError("write_failed", "speaker")
			return
		}
	}
}

// Write queues samples for playback
func (s *Speaker) Write(samples []int16) error {
	if s.stopped.Load() {
		return errors.New("speaker is closed")
	}
	if dropped := s.pending.Write(samples); dropped > 0 {
		s.logger.Debug().Int("dropped", dropped).Msg("Playback buffer overflow")
	}
	observability.RecordAudioBytes("out", int64(len(samples)*2))
	return nil
}

// SampleRate returns the playback rate
func (s *Speaker) SampleRate() int {
	return s.sampleRate
}

// Close stops playback and releases the device
func (s *Speaker) Close() error {
	s.closeOnce.Do(func() {
		s.stopped.Store(true)
		if err := s.stream.Stop(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to stop speaker stream")
		}
		<-s.done
		s.pending.Clear()
		s.closeErr = s.stream.Close()
		portaudio.Terminate()
		s.logger.Info().Msg("Speaker released")
	})
	return s.closeErr
}
