package notification

import (
	"context"
)

// Presenter receives acknowledged push messages for display.
// The agent acknowledges a push before handing it off; a presenter error
// is logged and never un-acknowledges the push.
type Presenter interface {
	// Present hands the descriptor to the display layer.
	Present(ctx context.Context, d Descriptor) error

	// Close releases any resources held by the presenter.
	Close() error
}

// Endpoint represents a webhook endpoint configuration.
type Endpoint struct {
	// URL is the webhook endpoint URL.
	URL string `json:"url"`
	// Secret is the shared secret for HMAC signing.
	Secret string `json:"secret,omitempty"`
	// Headers are additional HTTP headers to include.
	Headers map[string]string `json:"headers,omitempty"`
	// Name is an optional friendly name for the endpoint.
	Name string `json:"name,omitempty"`
}

// Validate checks the endpoint configuration.
func (e Endpoint) Validate() error {
	if e.URL == "" {
		return ErrInvalidEndpoint
	}
	return nil
}
