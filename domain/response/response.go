// Package response provides the response value returned to callers and the
// stored form of cached responses.
package response

import (
	"encoding/json"
	"net/http"
	"time"
)

// HeaderAgent marks responses synthesized by the agent rather than received
// from the network or read from a store.
const HeaderAgent = "X-Offline-Agent"

// Source describes where a response came from.
type Source string

// Response sources.
const (
	SourceNetwork     Source = "network"
	SourceCache       Source = "cache"
	SourceSynthesized Source = "synthesized"
)

// Response is the value returned to the intercepted caller.
type Response struct {
	Status int         `json:"status"`
	Header http.Header `json:"header,omitempty"`
	Body   []byte      `json:"body,omitempty"`

	// Source is informational and never persisted with an entry.
	Source Source `json:"-"`
}

// New creates a response with an empty header set.
func New(status int, body []byte) *Response {
	return &Response{Status: status, Header: make(http.Header), Body: body}
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Clone returns a deep copy of the response.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	c := *r
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = make(http.Header)
	}
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return &c
}

// Entry is a response as persisted in a cache store.
type Entry struct {
	Key      string      `json:"key"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header,omitempty"`
	Body     []byte      `json:"body,omitempty"`
	StoredAt time.Time   `json:"stored_at"`
}

// NewEntry captures a response for storage under key.
func NewEntry(key string, resp *Response) Entry {
	c := resp.Clone()
	return Entry{
		Key:      key,
		Status:   c.Status,
		Header:   c.Header,
		Body:     c.Body,
		StoredAt: time.Now().UTC(),
	}
}

// Response rebuilds a response from the entry.
func (e Entry) Response() *Response {
	r := &Response{
		Status: e.Status,
		Header: e.Header.Clone(),
		Body:   append([]byte(nil), e.Body...),
		Source: SourceCache,
	}
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	return r
}

// Encode serializes the entry for a storage backend.
func (e Entry) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEntry parses an entry previously produced by Encode.
func DecodeEntry(data []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, err
	}
	return e, nil
}
