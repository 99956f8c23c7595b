package capture

import (
	"errors"
	"fmt"
)

// ErrorKind classifies capture failures.
type ErrorKind int

const (
	// KindNotSupported means the recognition engine or microphone is unavailable.
	KindNotSupported ErrorKind = iota + 1
	// KindPermissionRequired means microphone consent was never given.
	KindPermissionRequired
	// KindPermissionDenied means microphone consent was refused or revoked.
	KindPermissionDenied
	// KindTransientNoSpeech means the engine heard nothing for a while.
	KindTransientNoSpeech
	// KindRecognitionFailed is any other engine error.
	KindRecognitionFailed
	// KindStartFailed means the first stream could not be opened.
	KindStartFailed
	// KindRestartFailed means recovery gave up and capture stopped.
	KindRestartFailed
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotSupported:
		return "not_supported"
	case KindPermissionRequired:
		return "permission_required"
	case KindPermissionDenied:
		return "permission_denied"
	case KindTransientNoSpeech:
		return "no_speech"
	case KindRecognitionFailed:
		return "recognition_failed"
	case KindStartFailed:
		return "start_failed"
	case KindRestartFailed:
		return "restart_failed"
	default:
		return "unknown"
	}
}

// Sentinel errors returned by Session.Start and Gate.RequestAccess.
var (
	ErrNotSupported       = errors.New("speech recognition is not supported")
	ErrPermissionRequired = errors.New("microphone permission is required")
	ErrPermissionDenied   = errors.New("microphone permission denied")
	ErrStartFailed        = errors.New("failed to start speech recognition")
	ErrRestartFailed      = errors.New("speech recognition stopped and could not restart")
)

// Error is a classified capture error kept as session state.
type Error struct {
	Kind ErrorKind
	// Code is the engine error code, if any.
	Code string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Code != "":
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.Code, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Code != "":
		return fmt.Sprintf("%s (%s)", e.Kind, e.Code)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel error for the kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == sentinel(e.Kind)
}

// Fatal reports whether the error ended capture.
func (e *Error) Fatal() bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case KindRestartFailed, KindPermissionDenied, KindPermissionRequired, KindNotSupported:
		return true
	default:
		return false
	}
}

func sentinel(kind ErrorKind) error {
	switch kind {
	case KindNotSupported:
		return ErrNotSupported
	case KindPermissionRequired:
		return ErrPermissionRequired
	case KindPermissionDenied:
		return ErrPermissionDenied
	case KindStartFailed:
		return ErrStartFailed
	case KindRestartFailed:
		return ErrRestartFailed
	default:
		return nil
	}
}

// Engine error codes with special handling.
const (
	CodeNoSpeech          = "no-speech"
	CodeNotAllowed        = "not-allowed"
	CodeServiceNotAllowed = "service-not-allowed"
)

func classify(code string) ErrorKind {
	switch code {
	case CodeNoSpeech:
		return KindTransientNoSpeech
	case CodeNotAllowed, CodeServiceNotAllowed:
		return KindPermissionDenied
	default:
		return KindRecognitionFailed
	}
}
