package gateway

import (
	"errors"

	"github.com/lexiqai/voice-scribe/internal/realtime"
	"github.com/lexiqai/voice-scribe/internal/recording"
	"github.com/lexiqai/voice-scribe/internal/transcript"
)

// Inbound actions
const (
	ActionStart         = "start"
	ActionStop          = "stop"
	ActionToggleSpeaker = "toggle_speaker"
	ActionSetSpeaker    = "set_speaker"
	ActionSnapshot      = "snapshot"
	ActionExport        = "export"
)

// Outbound message types
const (
	TypeSnapshot = "snapshot"
	TypeAck      = "ack"
	TypeError    = "error"
	TypeExport   = "export"
)

// Error kinds reported to the dashboard
const (
	ErrorKindBadRequest    = "bad_request"
	ErrorKindSessionActive = "session_active"
	ErrorKindPermission    = "permission"
	ErrorKindConnection    = "connection"
	ErrorKindUpstream      = "upstream"
	ErrorKindValidation    = "validation"
	ErrorKindNotRecording  = "not_recording"
)

// Command is a message from the dashboard
type Command struct {
	Action   string `json:"action"`
	ID       string `json:"id,omitempty"`        // Echoed in the reply
	Speaker  string `json:"speaker,omitempty"`   // set_speaker
	MinChars int    `json:"min_chars,omitempty"` // export
}

// Message is a message to the dashboard
type Message struct {
	Type     string              `json:"type"`
	ID       string              `json:"id,omitempty"`
	Action   string              `json:"action,omitempty"`
	Snapshot *recording.Snapshot `json:"snapshot,omitempty"`
	Speaker  *transcript.Speaker `json:"speaker,omitempty"`
	Error    *ErrorPayload       `json:"error,omitempty"`
	Export   *ExportPayload      `json:"export,omitempty"`
}

// ErrorPayload describes a failed command
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Op      string `json:"op,omitempty"`
	Message string `json:"message"`
}

// ExportPayload carries the rendered transcript for downstream services
type ExportPayload struct {
	Text    string             `json:"text"`
	Entries []transcript.Entry `json:"entries"`
	Valid   bool               `json:"valid"`
	Reason  string             `json:"reason,omitempty"`
}

// errorPayload classifies err for the dashboard
func errorPayload(err error) *ErrorPayload {
	payload := &ErrorPayload{Kind: ErrorKindConnection, Message: err.Error()}

	var (
		permErr     *realtime.PermissionError
		connErr     *realtime.ConnectionError
		upstreamErr *realtime.UpstreamError
		validErr    *transcript.ValidationError
	)
	switch {
	case errors.Is(err, recording.ErrSessionActive):
		payload.Kind = ErrorKindSessionActive
	case errors.As(err, &permErr):
		payload.Kind = ErrorKindPermission
		payload.Op = "microphone"
	case errors.As(err, &upstreamErr):
		payload.Kind = ErrorKindUpstream
	case errors.As(err, &connErr):
		payload.Op = connErr.Op
	case errors.As(err, &validErr):
		payload.Kind = ErrorKindValidation
	}
	return payload
}
