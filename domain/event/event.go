// Package event provides the inbound events handled by the agent's event
// loop and the results reported back to their senders.
package event

import (
	"context"
	"time"

	"github.com/felixgeelhaar/offline-agent/domain/cache"
	"github.com/felixgeelhaar/offline-agent/domain/queue"
	"github.com/felixgeelhaar/offline-agent/domain/request"
	"github.com/felixgeelhaar/offline-agent/domain/response"
)

// Kind discriminates event variants.
type Kind string

// Event kinds.
const (
	KindRequest              Kind = "request"
	KindInstall              Kind = "install"
	KindActivate             Kind = "activate"
	KindConnectivityRestored Kind = "connectivity_restored"
	KindPush                 Kind = "push"
	KindEnqueue              Kind = "enqueue"
)

// Event is a tagged variant. Only the fields belonging to Kind are set.
type Event struct {
	Kind Kind

	// Request is set for KindRequest and KindEnqueue.
	Request request.Request

	// Version is set for KindInstall and KindActivate.
	Version cache.VersionTag

	// Manifest is the ordered list of static asset URLs for KindInstall.
	Manifest []string

	// Payload is the raw push payload for KindPush.
	Payload []byte

	// ReceivedAt is when the event was created.
	ReceivedAt time.Time

	reply chan Result
}

// DrainReport summarizes one drain pass over the deferred queue.
type DrainReport struct {
	Replayed  int  `json:"replayed"`
	Remaining int  `json:"remaining"`
	Stopped   bool `json:"stopped"`
	Skipped   bool `json:"skipped,omitempty"`

	// Error describes the replay failure that stopped the pass.
	Error string `json:"error,omitempty"`
}

// Result is reported back to the sender of an event.
type Result struct {
	Kind Kind

	// Response is set for KindRequest.
	Response *response.Response

	// Purged lists store names removed by KindActivate.
	Purged []string

	// Drain is set for KindConnectivityRestored.
	Drain DrainReport

	// Operation is the queued operation for KindEnqueue.
	Operation queue.Operation

	// PushID is the acknowledgment id for KindPush.
	PushID string

	// Err is the failure, if any.
	Err error
}

func newEvent(kind Kind) Event {
	return Event{Kind: kind, ReceivedAt: time.Now(), reply: make(chan Result, 1)}
}

// NewRequest creates an intercepted-request event.
func NewRequest(req request.Request) Event {
	e := newEvent(KindRequest)
	e.Request = req
	return e
}

// NewInstall creates an install event for a version and its manifest.
func NewInstall(tag cache.VersionTag, manifest []string) Event {
	e := newEvent(KindInstall)
	e.Version = tag
	e.Manifest = append([]string(nil), manifest...)
	return e
}

// NewActivate creates an activate event.
func NewActivate(tag cache.VersionTag) Event {
	e := newEvent(KindActivate)
	e.Version = tag
	return e
}

// NewConnectivityRestored creates the trigger that drains the deferred queue.
func NewConnectivityRestored() Event {
	return newEvent(KindConnectivityRestored)
}

// NewPush creates a push event.
func NewPush(payload []byte) Event {
	e := newEvent(KindPush)
	e.Payload = append([]byte(nil), payload...)
	return e
}

// NewEnqueue creates an event that records req in the deferred queue.
func NewEnqueue(req request.Request) Event {
	e := newEvent(KindEnqueue)
	e.Request = req
	return e
}

// Validate checks that the fields required by Kind are present.
func (e Event) Validate() error {
	switch e.Kind {
	case KindRequest, KindEnqueue:
		if e.Request.URL == "" {
			return ErrInvalidEvent
		}
	case KindInstall, KindActivate:
		if err := e.Version.Validate(); err != nil {
			return err
		}
	case KindConnectivityRestored, KindPush:
	default:
		return ErrUnknownKind
	}
	return nil
}

// Complete delivers the result to the sender. Only the first call has an
// effect; events built without a constructor have nowhere to deliver.
func (e Event) Complete(r Result) {
	if e.reply == nil {
		return
	}
	r.Kind = e.Kind
	select {
	case e.reply <- r:
	default:
	}
}

// Wait blocks until the event is completed or ctx is done.
func (e Event) Wait(ctx context.Context) (Result, error) {
	if e.reply == nil {
		return Result{}, ErrNoReply
	}
	select {
	case r := <-e.reply:
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
