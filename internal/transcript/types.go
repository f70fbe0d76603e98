package transcript

import (
	"fmt"
	"strings"
	"time"
)

// Speaker identifies which participant of the consultation produced an utterance
type Speaker int32

const (
	Doctor  Speaker = iota // Clinician running the consultation (session default)
	Patient                // The other participant
)

// String returns the lowercase speaker tag used on the wire
func (s Speaker) String() string {
	switch s {
	case Doctor:
		return "doctor"
	case Patient:
		return "patient"
	default:
		return "unknown"
	}
}

// Other returns the opposite participant
func (s Speaker) Other() Speaker {
	if s == Doctor {
		return Patient
	}
	return Doctor
}

// Label returns the display label used when rendering the transcript as text
func (s Speaker) Label() string {
	switch s {
	case Doctor:
		return "Doctor"
	case Patient:
		return "Patient"
	default:
		return "Unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Speaker) MarshalText() ([]byte, error) {
	if s != Doctor && s != Patient {
		return nil, fmt.Errorf("invalid speaker %d", int32(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Speaker) UnmarshalText(text []byte) error {
	parsed, err := ParseSpeaker(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSpeaker parses a speaker tag ("doctor" or "patient", case-insensitive)
func ParseSpeaker(v string) (Speaker, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "doctor":
		return Doctor, nil
	case "patient":
		return Patient, nil
	}
	return Doctor, fmt.Errorf("unknown speaker %q", v)
}

// Segment is one finalized unit of recognized speech
type Segment struct {
	Speaker   Speaker
	Text      string
	Timestamp time.Time
}

// Entry is one coalesced, speaker-attributed block of merged segments
type Entry struct {
	Speaker        Speaker   `json:"speaker"`
	Text           string    `json:"text"`
	FirstTimestamp time.Time `json:"first_timestamp"`
	LastTimestamp  time.Time `json:"last_timestamp"`
}

// ValidationError reports a transcript that is not fit for downstream processing
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid transcript: " + e.Reason
}

// ValidateForSubmission checks that a rendered transcript carries enough text
// to be handed to the task-detection or note-generation services
func ValidateForSubmission(text string, minChars int) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return &ValidationError{Reason: "transcript is empty"}
	}
	if n := len([]rune(trimmed)); n < minChars {
		return &ValidationError{Reason: fmt.Sprintf("transcript too short (%d < %d characters)", n, minChars)}
	}
	return nil
}
