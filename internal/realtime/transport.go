package realtime

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-scribe/internal/transcript"
)

// Transport owns one realtime session: microphone upload, remote playback
// and the inbound control channel.
type Transport interface {
	// Init acquires the credential and devices and completes the handshake.
	// Any resource acquired before a failure is released before Init returns.
	Init(ctx context.Context) error

	// Events delivers control-channel events in arrival order.
	// The channel closes on Disconnect or on a fatal transport failure.
	Events() <-chan Event

	SetCurrentSpeaker(speaker transcript.Speaker)
	CurrentSpeaker() transcript.Speaker

	// Err reports the fatal failure that closed Events, if any
	Err() error

	// Disconnect releases everything the session holds. Idempotent.
	Disconnect() error
}

// Factory builds a fresh transport for each recording session.
// logger is already tagged with the session ID.
type Factory func(logger zerolog.Logger) Transport

// SpeakerState is the session's current speaker tag.
// The zero value is Doctor.
type SpeakerState struct {
	v atomic.Int32
}

// SetCurrentSpeaker updates the tag used for the next completed segment
func (s *SpeakerState) SetCurrentSpeaker(speaker transcript.Speaker) {
	s.v.Store(int32(speaker))
}

// CurrentSpeaker returns the current tag
func (s *SpeakerState) CurrentSpeaker() transcript.Speaker {
	return transcript.Speaker(s.v.Load())
}
