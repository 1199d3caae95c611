package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/felixgeelhaar/offline-agent/domain/queue"
	"github.com/felixgeelhaar/offline-agent/domain/request"
)

// Queue is a SQLite-backed implementation of queue.Queue. Sequences come
// from an AUTOINCREMENT key, so they are never reused after a removal.
type Queue struct {
	db    *sql.DB
	owned bool
}

// NewQueue opens a database and creates a queue that owns it.
func NewQueue(cfg Config, opts ...Option) (*Queue, error) {
	db, err := Open(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Queue{db: db, owned: true}, nil
}

// NewQueueFromDB creates a queue over an existing database connection.
func NewQueueFromDB(db *sql.DB) (*Queue, error) {
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return &Queue{db: db}, nil
}

// Append persists op at the tail.
func (q *Queue) Append(ctx context.Context, op queue.Operation) (queue.Operation, error) {
	if err := ctx.Err(); err != nil {
		return queue.Operation{}, err
	}

	op, err := queue.Prepare(op)
	if err != nil {
		return queue.Operation{}, err
	}

	payload, err := json.Marshal(op.Payload)
	if err != nil {
		return queue.Operation{}, err
	}

	res, err := q.db.ExecContext(ctx,
		"INSERT INTO deferred_operations (payload, idempotency_key, enqueued_at) VALUES (?, ?, ?)",
		payload, op.IdempotencyKey, op.EnqueuedAt.UnixNano(),
	)
	if err != nil {
		return queue.Operation{}, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return queue.Operation{}, err
	}
	op.Sequence = uint64(id)
	return op, nil
}

// Peek returns the head operation.
func (q *Queue) Peek(ctx context.Context) (queue.Operation, error) {
	if err := ctx.Err(); err != nil {
		return queue.Operation{}, err
	}

	row := q.db.QueryRowContext(ctx,
		"SELECT sequence, payload, idempotency_key, enqueued_at FROM deferred_operations ORDER BY sequence LIMIT 1",
	)
	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return queue.Operation{}, queue.ErrEmpty
	}
	return op, err
}

// Remove deletes the operation with the given sequence.
func (q *Queue) Remove(ctx context.Context, sequence uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res, err := q.db.ExecContext(ctx, "DELETE FROM deferred_operations WHERE sequence = ?", int64(sequence))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return queue.ErrNotFound
	}
	return nil
}

// List returns all operations in order.
func (q *Queue) List(ctx context.Context) ([]queue.Operation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := q.db.QueryContext(ctx,
		"SELECT sequence, payload, idempotency_key, enqueued_at FROM deferred_operations ORDER BY sequence",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []queue.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// Len returns the number of queued operations.
func (q *Queue) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var n int
	err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM deferred_operations").Scan(&n)
	return n, err
}

// Close closes the database connection if the queue owns it.
func (q *Queue) Close() error {
	if q.owned {
		return q.db.Close()
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOperation(s scanner) (queue.Operation, error) {
	var (
		seq        int64
		payload    []byte
		key        string
		enqueuedAt int64
	)
	if err := s.Scan(&seq, &payload, &key, &enqueuedAt); err != nil {
		return queue.Operation{}, err
	}

	var req request.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return queue.Operation{}, err
	}

	return queue.Operation{
		Sequence:       uint64(seq),
		Payload:        req,
		IdempotencyKey: key,
		EnqueuedAt:     time.Unix(0, enqueuedAt).UTC(),
	}, nil
}

var _ queue.Queue = (*Queue)(nil)
