// Package capture manages live speech recognition and microphone consent.
//
// A Session owns one continuous recognition stream at a time. Engines and
// microphones are injected through narrow interfaces; engine callbacks only
// enqueue events, and all state changes happen in Session.Handle, which the
// caller runs from a single event loop.
package capture

import (
	"context"
	"io"
	"strings"
)

// EventKind tells what an engine event carries.
type EventKind int

const (
	// EventResult carries the current recognition results of the stream.
	EventResult EventKind = iota + 1
	// EventError reports an engine error code.
	EventError
	// EventEnd reports that the engine stream ended.
	EventEnd
)

func (k EventKind) String() string {
	switch k {
	case EventResult:
		return "result"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Segment is one recognized span of speech.
type Segment struct {
	Text       string
	Final      bool
	Confidence float64
}

// Event is emitted by an Engine.
//
// A result event holds every segment the stream has buffered so far, interim
// and final, in order. Engines re-deliver earlier segments with each result.
type Event struct {
	Kind     EventKind
	Segments []Segment
	Code     string
	Message  string

	stream uint64
}

// Engine is a streaming speech-to-text backend.
//
// Start begins recognizing audio read from the channel until it is closed or
// Stop is called. Events must be emitted from the engine's own goroutines,
// never from within Start. emit may block until the session accepts the event.
type Engine interface {
	Start(ctx context.Context, audio <-chan []byte, emit func(Event)) error
	Stop() error
}

// Checker is implemented by engines and microphones that can report whether
// they are usable at all (credentials present, device command installed).
type Checker interface {
	Check() error
}

// Microphone opens an audio capture stream. Closing the stream releases the device.
type Microphone interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Permissions reports the current microphone consent state.
type Permissions interface {
	State() PermissionState
}

// Phase is the lifecycle position of a Session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStarting
	PhaseListening
	PhaseEnding
	PhaseRecovering
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStarting:
		return "starting"
	case PhaseListening:
		return "listening"
	case PhaseEnding:
		return "ending"
	case PhaseRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// State is a snapshot of a Session.
type State struct {
	Phase      Phase
	Transcript string
	Listening  bool
	LastError  *Error
	Supported  bool
	Restarts   int
}

func joinSegments(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, s.Text)
	}
	return collapse(strings.Join(parts, " "))
}

func joinText(a, b string) string {
	return collapse(a + " " + b)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
