// Package queue provides the durable deferred-operation queue abstraction.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/offline-agent/domain/request"
)

// HeaderIdempotencyKey carries an operation's idempotency key on replay.
const HeaderIdempotencyKey = "Idempotency-Key"

// Operation is a state-changing request recorded for later replay.
type Operation struct {
	// Sequence orders operations; assigned by the queue on append.
	Sequence uint64 `json:"sequence"`

	// Payload is the recorded request.
	Payload request.Request `json:"payload"`

	// EnqueuedAt is when the operation was appended.
	EnqueuedAt time.Time `json:"enqueued_at"`

	// IdempotencyKey is sent with every replay so the remote side can
	// recognize repeats of the same operation.
	IdempotencyKey string `json:"idempotency_key"`
}

// NewOperation records req for deferred replay.
func NewOperation(req request.Request) Operation {
	return Operation{
		Payload:        req.Clone(),
		EnqueuedAt:     time.Now().UTC(),
		IdempotencyKey: uuid.NewString(),
	}
}

// ReplayRequest returns the payload to send, carrying the idempotency key.
func (o Operation) ReplayRequest() request.Request {
	req := o.Payload.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	req.Header.Set(HeaderIdempotencyKey, o.IdempotencyKey)
	return req
}

// Validate checks that the operation can be replayed.
func (o Operation) Validate() error {
	if o.Payload.URL == "" {
		return errors.Join(ErrInvalidOperation, errors.New("payload has no url"))
	}
	return nil
}

// Encode serializes the operation for a storage backend.
func (o Operation) Encode() ([]byte, error) {
	return json.Marshal(o)
}

// Decode parses an operation produced by Encode.
func Decode(data []byte) (Operation, error) {
	var o Operation
	if err := json.Unmarshal(data, &o); err != nil {
		return Operation{}, err
	}
	return o, nil
}

// Queue is a durable FIFO of deferred operations. Operations leave the queue
// only through Remove, after a confirmed replay.
type Queue interface {
	// Append persists op at the tail and returns it with its sequence set.
	// A missing idempotency key or timestamp is filled in.
	Append(ctx context.Context, op Operation) (Operation, error)

	// Peek returns the head without removing it. Returns ErrEmpty when
	// the queue holds nothing.
	Peek(ctx context.Context) (Operation, error)

	// Remove deletes the operation with the given sequence.
	Remove(ctx context.Context, sequence uint64) error

	// List returns all operations in order.
	List(ctx context.Context) ([]Operation, error)

	// Len returns the number of queued operations.
	Len(ctx context.Context) (int, error)

	// Close releases queue resources.
	Close() error
}

// Prepare fills defaults on an operation about to be appended.
func Prepare(op Operation) (Operation, error) {
	if err := op.Validate(); err != nil {
		return Operation{}, err
	}
	if op.IdempotencyKey == "" {
		op.IdempotencyKey = uuid.NewString()
	}
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = time.Now().UTC()
	}
	return op, nil
}
