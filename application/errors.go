package application

import "errors"

var (
	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("event loop already running")

	// ErrHandlerPanic wraps a recovered panic.
	ErrHandlerPanic = errors.New("event handler panicked")
)
