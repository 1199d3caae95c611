package memory

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/offline-agent/domain/queue"
)

// Queue is an in-memory implementation of queue.Queue.
// Contents do not survive a restart; use it for tests and ephemeral agents.
type Queue struct {
	ops    []queue.Operation
	seq    uint64
	closed bool
	mu     sync.Mutex
}

// NewQueue creates a new in-memory queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Append adds an operation at the tail.
func (q *Queue) Append(ctx context.Context, op queue.Operation) (queue.Operation, error) {
	if err := ctx.Err(); err != nil {
		return queue.Operation{}, err
	}

	op, err := queue.Prepare(op)
	if err != nil {
		return queue.Operation{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return queue.Operation{}, queue.ErrQueueClosed
	}

	q.seq++
	op.Sequence = q.seq
	op.Payload = op.Payload.Clone()
	q.ops = append(q.ops, op)
	return op, nil
}

// Peek returns the head operation.
func (q *Queue) Peek(ctx context.Context) (queue.Operation, error) {
	if err := ctx.Err(); err != nil {
		return queue.Operation{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return queue.Operation{}, queue.ErrQueueClosed
	}
	if len(q.ops) == 0 {
		return queue.Operation{}, queue.ErrEmpty
	}
	return q.ops[0], nil
}

// Remove deletes the operation with the given sequence.
func (q *Queue) Remove(ctx context.Context, sequence uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return queue.ErrQueueClosed
	}
	for i, op := range q.ops {
		if op.Sequence == sequence {
			q.ops = append(q.ops[:i], q.ops[i+1:]...)
			return nil
		}
	}
	return queue.ErrNotFound
}

// List returns all operations in order.
func (q *Queue) List(ctx context.Context) ([]queue.Operation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, queue.ErrQueueClosed
	}
	out := make([]queue.Operation, len(q.ops))
	copy(out, q.ops)
	return out, nil
}

// Len returns the number of queued operations.
func (q *Queue) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, queue.ErrQueueClosed
	}
	return len(q.ops), nil
}

// Close marks the queue closed.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	return nil
}

var _ queue.Queue = (*Queue)(nil)
