package response

import (
	"encoding/json"
	"net/http"
	"time"
)

// Values of HeaderAgent on synthesized responses.
const (
	MarkerUnavailable = "unavailable"
	MarkerOffline     = "offline"
	MarkerFailure     = "failure"
	MarkerQueued      = "queued"
)

// OfflineIndicator is the structured body returned when API data cannot be
// obtained from either the network or a store.
type OfflineIndicator struct {
	Offline   bool      `json:"offline"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// QueuedReceipt is the body returned when a state-changing request was
// deferred for later replay.
type QueuedReceipt struct {
	Queued         bool   `json:"queued"`
	Sequence       uint64 `json:"sequence"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Unavailable builds the plain-text response for a static asset that is
// neither cached nor reachable.
func Unavailable() *Response {
	r := synthesize(http.StatusServiceUnavailable, MarkerUnavailable, "text/plain; charset=utf-8")
	r.Body = []byte("resource unavailable offline\n")
	return r
}

// Offline builds the offline indicator response. The cause is optional.
func Offline(at time.Time, cause error) *Response {
	body := OfflineIndicator{Offline: true, Timestamp: at.UTC()}
	if cause != nil {
		body.Error = cause.Error()
	}
	return jsonResponse(http.StatusServiceUnavailable, MarkerOffline, body)
}

// Failure builds a generic failure response.
func Failure(status int, message string) *Response {
	if status == 0 {
		status = http.StatusServiceUnavailable
	}
	r := synthesize(status, MarkerFailure, "text/plain; charset=utf-8")
	r.Body = []byte(message + "\n")
	return r
}

// Queued builds the receipt returned for a deferred operation.
func Queued(sequence uint64, idempotencyKey string) *Response {
	return jsonResponse(http.StatusAccepted, MarkerQueued, QueuedReceipt{
		Queued:         true,
		Sequence:       sequence,
		IdempotencyKey: idempotencyKey,
	})
}

// IsSynthesized reports whether the response was produced by the agent.
func (r *Response) IsSynthesized() bool {
	return r != nil && r.Header.Get(HeaderAgent) != ""
}

func synthesize(status int, marker, contentType string) *Response {
	r := New(status, nil)
	r.Header.Set(HeaderAgent, marker)
	r.Header.Set("Content-Type", contentType)
	r.Header.Set("Cache-Control", "no-store")
	r.Source = SourceSynthesized
	return r
}

func jsonResponse(status int, marker string, body any) *Response {
	r := synthesize(status, marker, "application/json")
	data, err := json.Marshal(body)
	if err != nil {
		data = []byte(`{"offline":true}`)
	}
	r.Body = data
	return r
}
