package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/felixgeelhaar/offline-agent/domain/queue"
)

// Queue is a BadgerDB-backed implementation of queue.Queue.
// Operations are keyed by 8-byte big-endian sequence so iteration order is
// append order.
type Queue struct {
	db        *badger.DB
	keyPrefix string
	owned     bool

	// appendMu serializes sequence assignment so concurrent appends never
	// conflict on the counter key.
	appendMu sync.Mutex
}

// NewQueue opens a database and creates a queue that owns it.
func NewQueue(cfg Config, opts ...Option) (*Queue, error) {
	db, err := Open(cfg, opts...)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Queue{db: db, keyPrefix: cfg.KeyPrefix, owned: true}, nil
}

// NewQueueFromDB creates a queue over an existing database.
// Closing the queue does not close db.
func NewQueueFromDB(db *badger.DB, keyPrefix string) *Queue {
	return &Queue{db: db, keyPrefix: keyPrefix}
}

// Key format: prefix + "queue:op:" + sequence (8 bytes, big-endian)
func (q *Queue) opPrefix() []byte {
	return []byte(q.keyPrefix + "queue:op:")
}

func (q *Queue) opKey(seq uint64) []byte {
	seqBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(seqBytes, seq)
	return append(q.opPrefix(), seqBytes...)
}

// Key format: prefix + "queue:seq" for the last assigned sequence
func (q *Queue) seqKey() []byte {
	return []byte(q.keyPrefix + "queue:seq")
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

	q.appendMu.Lock()
	defer q.appendMu.Unlock()

	err = q.db.Update(func(txn *badger.Txn) error {
		var seq uint64

		item, err := txn.Get(q.seqKey())
		if err == nil {
			err = item.Value(func(val []byte) error {
				if len(val) == 8 {
					seq = binary.BigEndian.Uint64(val)
				}
				return nil
			})
			if err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		seq++
		op.Sequence = seq

		data, err := op.Encode()
		if err != nil {
			return err
		}
		if err := txn.Set(q.opKey(seq), data); err != nil {
			return err
		}

		seqBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(seqBytes, seq)
		return txn.Set(q.seqKey(), seqBytes)
	})
	if err != nil {
		return queue.Operation{}, fmt.Errorf("append operation: %w", err)
	}

	return op, nil
}

// Peek returns the head operation.
func (q *Queue) Peek(ctx context.Context) (queue.Operation, error) {
	if err := ctx.Err(); err != nil {
		return queue.Operation{}, err
	}

	var op queue.Operation
	found := false

	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = q.opPrefix()
		opts.PrefetchSize = 1

		it := txn.NewIterator(opts)
		defer it.Close()

		it.Rewind()
		if !it.Valid() {
			return nil
		}

		return it.Item().Value(func(val []byte) error {
			var err error
			op, err = queue.Decode(val)
			found = err == nil
			return err
		})
	})
	if err != nil {
		return queue.Operation{}, err
	}
	if !found {
		return queue.Operation{}, queue.ErrEmpty
	}
	return op, nil
}

// Remove deletes the operation with the given sequence.
func (q *Queue) Remove(ctx context.Context, sequence uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := q.opKey(sequence)
	return q.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return queue.ErrNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
}

// List returns all operations in order.
func (q *Queue) List(ctx context.Context) ([]queue.Operation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ops []queue.Operation
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = q.opPrefix()

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				op, err := queue.Decode(val)
				if err != nil {
					return err
				}
				ops = append(ops, op)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	return ops, err
}

// Len returns the number of queued operations.
func (q *Queue) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n := 0
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = q.opPrefix()

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})

	return n, err
}

// Close closes the database if the queue owns it.
func (q *Queue) Close() error {
	if q.owned {
		return q.db.Close()
	}
	return nil
}

var _ queue.Queue = (*Queue)(nil)
