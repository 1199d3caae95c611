package queue

import "errors"

// Domain errors for queue operations.
var (
	// ErrEmpty is returned by Peek on an empty queue.
	ErrEmpty = errors.New("queue is empty")

	// ErrNotFound is returned when an operation with the given sequence is not queued.
	ErrNotFound = errors.New("operation not found")

	// ErrInvalidOperation is returned for operations that cannot be replayed.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrQueueClosed is returned when a closed queue is used.
	ErrQueueClosed = errors.New("queue is closed")
)
