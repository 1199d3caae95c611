// Package api provides the public API for the offline agent.
// This file provides push hand-off exports.
package api

import (
	"time"

	domainnotif "github.com/felixgeelhaar/offline-agent/domain/notification"
	infranotif "github.com/felixgeelhaar/offline-agent/infrastructure/notification"
)

// Re-export domain notification types.
type (
	// PushDescriptor describes a received push message.
	PushDescriptor = domainnotif.Descriptor
	// PushPresenter receives acknowledged push messages for display.
	PushPresenter = domainnotif.Presenter
	// Endpoint represents a webhook endpoint configuration.
	Endpoint = domainnotif.Endpoint
)

// Re-export infrastructure notification types.
type (
	// WebhookPresenter delivers push messages to a webhook.
	WebhookPresenter = infranotif.WebhookPresenter
	// WebhookConfig configures the webhook presenter.
	WebhookConfig = infranotif.WebhookConfig
	// LogPresenter logs push messages.
	LogPresenter = infranotif.LogPresenter
	// Signer signs webhook payloads.
	Signer = infranotif.Signer
)

// Signature headers set on webhook deliveries.
const (
	HeaderSignature = infranotif.HeaderSignature
	HeaderTimestamp = infranotif.HeaderTimestamp
)

// NewWebhookPresenter creates a presenter that POSTs push descriptors to
// endpoint.
func NewWebhookPresenter(endpoint Endpoint, config WebhookConfig) (*WebhookPresenter, error) {
	return infranotif.NewWebhookPresenter(endpoint, config)
}

// DefaultWebhookConfig returns the default webhook configuration.
func DefaultWebhookConfig() WebhookConfig {
	return infranotif.DefaultWebhookConfig()
}

// NewSigner creates a webhook payload signer.
func NewSigner(secret string) *Signer {
	return infranotif.NewSigner(secret)
}

// VerifyWebhook checks a delivery's signature headers against payload.
// Receivers call this before trusting a push.
func VerifyWebhook(secret string, payload []byte, signature string, timestamp int64, tolerance time.Duration) bool {
	return infranotif.NewSigner(secret).Verify(payload, signature, timestamp, tolerance)
}
