package realtime

import (
	"encoding/json"
	"fmt"
)

// Control-channel event types understood by the router
const (
	TypeSessionCreated         = "session.created"
	TypeSessionUpdated         = "session.updated"
	TypeSpeechStarted          = "input_audio_buffer.speech_started"
	TypeSpeechStopped          = "input_audio_buffer.speech_stopped"
	TypeTranscriptionDelta     = "conversation.item.input_audio_transcription.delta"
	TypeTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	TypeResponseAudioDelta     = "response.audio.delta"
	TypeResponseAudioDone      = "response.audio.done"
	TypeOutputAudioStarted     = "output_audio_buffer.started"
	TypeOutputAudioStopped     = "output_audio_buffer.stopped"
	TypeOutputAudioCleared     = "output_audio_buffer.cleared"
	TypeError                  = "error"
)

// Kind is the closed set of event kinds the router acts on
type Kind string

const (
	KindSessionReady           Kind = "session-ready"
	KindSpeechStarted          Kind = "speech-started"
	KindSpeechStopped          Kind = "speech-stopped"
	KindTranscriptionDelta     Kind = "transcription-delta"
	KindTranscriptionCompleted Kind = "transcription-completed"
	KindPlaybackDelta          Kind = "audio-playback-delta"
	KindPlaybackDone           Kind = "audio-playback-done"
	KindError                  Kind = "error"
	KindUnknown                Kind = "unknown"
)

var kindsByType = map[string]Kind{
	TypeSessionCreated:         KindSessionReady,
	TypeSessionUpdated:         KindSessionReady,
	TypeSpeechStarted:          KindSpeechStarted,
	TypeSpeechStopped:          KindSpeechStopped,
	TypeTranscriptionDelta:     KindTranscriptionDelta,
	TypeTranscriptionCompleted: KindTranscriptionCompleted,
	TypeResponseAudioDelta:     KindPlaybackDelta,
	TypeOutputAudioStarted:     KindPlaybackDelta,
	TypeResponseAudioDone:      KindPlaybackDone,
	TypeOutputAudioStopped:     KindPlaybackDone,
	TypeOutputAudioCleared:     KindPlaybackDone,
	TypeError:                  KindError,
}

// KindOf maps a wire type to its kind; unrecognized types are KindUnknown
func KindOf(eventType string) Kind {
	if kind, ok := kindsByType[eventType]; ok {
		return kind
	}
	return KindUnknown
}

// ErrorDetail is the payload of an error event
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Event is one inbound control-channel message
type Event struct {
	Type       string       `json:"type"`
	Delta      string       `json:"delta,omitempty"`
	Transcript string       `json:"transcript,omitempty"`
	Error      *ErrorDetail `json:"error,omitempty"`
}

// Kind returns the event's kind
func (e Event) Kind() Kind {
	return KindOf(e.Type)
}

// DecodeEvent parses one control-channel message
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("malformed event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("malformed event: missing type")
	}
	return ev, nil
}
