// Package live defines the provider interface for bidirectional speech
// streaming sessions.
//
// A live session carries microphone audio up to a remote speech model and
// streams synthesized audio plus transcriptions back. Raw transport messages
// are normalized into a small tagged [Event] union so that session consumers
// (and their tests) never touch provider wire formats.
package live

import (
	"context"

	"github.com/legalsathi/sathi/pkg/audio"
)

// Status is the lifecycle state of a session. A session never returns to
// StatusOpen after reaching StatusClosed or StatusErrored; reconnecting
// means constructing a new session.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusOpen
	StatusClosed
	StatusErrored
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// EventKind tags the variants of [Event].
type EventKind int

const (
	// KindOpened is emitted once, when the remote service acknowledges the
	// session setup. Capture must not start before this event.
	KindOpened EventKind = iota

	// KindContent carries incremental model output; see [ContentDelta].
	KindContent

	// KindInterrupted signals that the user barged in over model playback.
	KindInterrupted

	// KindClosed is the final event of a session that ended normally.
	KindClosed

	// KindErrored is the final event of a session that failed; Event.Err
	// carries the reason.
	KindErrored
)

// ContentDelta is one increment of model output. Any combination of fields
// may be set in a single event.
type ContentDelta struct {
	// InputText is a fragment of the transcription of the user's speech.
	InputText string

	// OutputText is a fragment of the transcription of the model's speech.
	OutputText string

	// AudioPayload is base64-encoded PCM of synthesized speech at
	// [audio.OutputSampleRate], empty when the event carries no audio.
	AudioPayload string

	// TurnComplete is true when the model's conversational turn finished.
	TurnComplete bool
}

// Event is one normalized session event.
type Event struct {
	Kind    EventKind
	Content ContentDelta // set for KindContent
	Err     error        // set for KindErrored
}

// SessionConfig carries everything needed to open a session.
type SessionConfig struct {
	// Instructions is the system instruction, already combined with the
	// active language directive. Immutable for the session's lifetime.
	Instructions string

	// Voice is the prebuilt voice profile identifier.
	Voice string
}

// Session is one live connection to the speech service.
//
// Implementations must be safe for concurrent use.
type Session interface {
	// Send delivers one encoded capture frame. Frames are silently dropped
	// unless the session is Open: real-time audio has no value once stale,
	// so nothing is buffered while connecting. A non-nil error indicates a
	// transport failure on an open session.
	Send(frame audio.EncodedFrame) error

	// Events returns the session's event stream. The channel is closed
	// after the terminal KindClosed or KindErrored event is delivered.
	Events() <-chan Event

	// Status returns the current lifecycle state.
	Status() Status

	// Close terminates the session and releases its resources. Idempotent.
	Close() error
}

// Provider opens live sessions.
type Provider interface {
	// Connect establishes a new session. The returned session is in
	// StatusConnecting; it becomes Open when KindOpened is emitted.
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
}
