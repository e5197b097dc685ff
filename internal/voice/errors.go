package voice

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyInput         = errors.New("empty input")
	ErrTooShortIdentifier = errors.New("task name too short")
	ErrNoMatch            = errors.New("no matching task")
	ErrAlreadyActive      = errors.New("voice session already active")
	ErrDevice             = errors.New("capture device error")
)

// Reason classifies why speech capture failed.
type Reason string

const (
	ReasonNoSpeech            Reason = "no-speech"
	ReasonAudioCaptureFailure Reason = "audio-capture"
	ReasonPermissionDenied    Reason = "not-allowed"
	ReasonNetworkError        Reason = "network"
	ReasonOther               Reason = "other"
)

// ParseReason maps a platform error code onto the fixed reason taxonomy.
// Unknown codes become ReasonOther.
func ParseReason(code string) Reason {
	switch Reason(strings.ToLower(strings.TrimSpace(code))) {
	case ReasonNoSpeech:
		return ReasonNoSpeech
	case ReasonAudioCaptureFailure:
		return ReasonAudioCaptureFailure
	case ReasonPermissionDenied:
		return ReasonPermissionDenied
	case ReasonNetworkError:
		return ReasonNetworkError
	default:
		return ReasonOther
	}
}

// Message is the user-facing text for a capture failure.
func (r Reason) Message() string {
	switch r {
	case ReasonNoSpeech:
		return "No speech."
	case ReasonAudioCaptureFailure:
		return "Mic error."
	case ReasonPermissionDenied:
		return "Permission denied."
	case ReasonNetworkError:
		return "Network error."
	default:
		return "Speech Error: " + string(r)
	}
}

// DeviceError reports a capture failure. It satisfies errors.Is(err, ErrDevice).
type DeviceError struct {
	Reason Reason
	Err    error
}

func (e *DeviceError) Error() string {
	if e == nil {
		return ErrDevice.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", ErrDevice, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s (%s)", ErrDevice, e.Reason)
}

func (e *DeviceError) Is(target error) bool {
	return target == ErrDevice
}

func (e *DeviceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CollaboratorError wraps a failure returned by the task store or another
// injected collaborator.
type CollaboratorError struct {
	Op     string
	TaskID string
	Err    error
}

func (e *CollaboratorError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.TaskID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }
