package event

import "errors"

// Domain errors for event handling.
var (
	// ErrInvalidEvent is returned when an event is malformed.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrUnknownKind is returned for an event kind the agent does not handle.
	ErrUnknownKind = errors.New("unknown event kind")

	// ErrNoReply is returned by Wait on an event built without a constructor.
	ErrNoReply = errors.New("event has no reply channel")

	// ErrLoopStopped is returned when an event is submitted after the loop stopped.
	ErrLoopStopped = errors.New("event loop stopped")
)
