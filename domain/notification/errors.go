package notification

import "errors"

// Domain errors for notification operations.
var (
	// ErrEndpointUnavailable indicates the presenter endpoint is not reachable.
	ErrEndpointUnavailable = errors.New("presenter endpoint unavailable")

	// ErrEndpointRejected indicates the endpoint rejected the notification.
	ErrEndpointRejected = errors.New("presenter endpoint rejected notification")

	// ErrPresenterClosed indicates the presenter has been closed.
	ErrPresenterClosed = errors.New("presenter is closed")

	// ErrInvalidEndpoint indicates the endpoint configuration is invalid.
	ErrInvalidEndpoint = errors.New("invalid endpoint configuration")

	// ErrSigningFailed indicates payload signing failed.
	ErrSigningFailed = errors.New("payload signing failed")
)
