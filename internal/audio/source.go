package audio

import "time"

// Source is an acquired audio input (a microphone track).
// Frames delivers mono 16-bit PCM frames at SampleRate until Close is called,
// after which the channel is closed. Close releases the device and is idempotent.
type Source interface {
	Frames() <-chan []int16
	SampleRate() int
	Close() error
}

// Sink plays remote audio (the assistant's voice) for the current session.
// Write takes mono PCM at SampleRate; Close releases the output device.
type Sink interface {
	Write(samples []int16) error
	SampleRate() int
	Close() error
}

// SourceOpener acquires a microphone. Implementations return an error when
// the device is missing or access is denied.
type SourceOpener func() (Source, error)

// SinkOpener acquires a playback device for remote audio
type SinkOpener func() (Sink, error)

// FrameDuration returns the playback duration of a frame
func FrameDuration(samples, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
