// Package notification provides the push message model and the hand-off
// interface for presenting it. Presentation itself happens elsewhere.
package notification

import (
	"encoding/json"
	"time"
)

// Descriptor describes a received push message to be presented.
type Descriptor struct {
	// ID is assigned on receipt.
	ID string `json:"id"`
	// Title is the headline, if the payload carried one.
	Title string `json:"title,omitempty"`
	// Body is the message text.
	Body string `json:"body,omitempty"`
	// Tag groups related notifications.
	Tag string `json:"tag,omitempty"`
	// URL is opened when the notification is activated.
	URL string `json:"url,omitempty"`
	// Data holds any additional structured payload.
	Data json.RawMessage `json:"data,omitempty"`
	// ReceivedAt is when the push arrived.
	ReceivedAt time.Time `json:"received_at"`
}

// wirePayload is the JSON shape a push payload may take.
type wirePayload struct {
	Title string          `json:"title"`
	Body  string          `json:"body"`
	Tag   string          `json:"tag"`
	URL   string          `json:"url"`
	Data  json.RawMessage `json:"data"`
}

// Parse builds a descriptor from a raw push payload. JSON objects are read
// field by field; anything else becomes the body verbatim.
func Parse(id string, payload []byte) Descriptor {
	d := Descriptor{ID: id, ReceivedAt: time.Now().UTC()}

	var w wirePayload
	if len(payload) > 0 && payload[0] == '{' && json.Unmarshal(payload, &w) == nil {
		d.Title = w.Title
		d.Body = w.Body
		d.Tag = w.Tag
		d.URL = w.URL
		d.Data = w.Data
		return d
	}

	d.Body = string(payload)
	return d
}
