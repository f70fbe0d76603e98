package realtime

import (
	"context"
	"errors"
	"fmt"
)

// PermissionError reports that the microphone could not be acquired
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("microphone access denied: %v", e.Err)
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}

// ConnectionError reports a failed or lost realtime session.
// Op names the step that failed (credential, handshake, media, timeout, ...).
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("realtime connection failed: %v", e.Err)
	}
	return fmt.Sprintf("realtime connection failed (%s): %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// UpstreamError carries an explicit error event from the remote service
type UpstreamError struct {
	Message string
	Code    string
}

func (e *UpstreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream error [%s]: %s", e.Code, e.Message)
	}
	return "upstream error: " + e.Message
}

// ErrTransportClosed is returned when a disconnected transport is reused
var ErrTransportClosed = errors.New("transport is closed")

// AsConnectionError normalizes any init failure into a ConnectionError.
// Permission failures stay reachable through errors.As.
func AsConnectionError(op string, err error) *ConnectionError {
	if err == nil {
		return nil
	}
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return connErr
	}
	var permErr *PermissionError
	if errors.As(err, &permErr) {
		return &ConnectionError{Op: "microphone", Err: permErr}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ConnectionError{Op: "timeout", Err: err}
	}
	return &ConnectionError{Op: op, Err: err}
}
