package database

import (
	"context"
	"sync"
)

// QueryFunc reads a full snapshot of a query's result set.
type QueryFunc[T any] func(ctx context.Context) ([]T, error)

// LiveQuery delivers a fresh snapshot of a query every time one of its tables
// is written. The first snapshot is delivered as soon as it has been read.
type LiveQuery[T any] struct {
	updates chan []T
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	err     error
}

// Watch starts a live query. The subscription is registered before the first
// read, so a write that commits while the initial snapshot is being read
// still triggers a re-read. Cancelling ctx or calling Close ends the stream.
func Watch[T any](ctx context.Context, db *Database, query QueryFunc[T], tables ...string) (*LiveQuery[T], error) {
	sub, err := db.tracker.Subscribe(tables...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	q := &LiveQuery[T]{
		updates: make(chan []T),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		// done closes before updates so Err is final once Updates is drained
		defer close(q.updates)
		defer close(q.done)
		defer db.tracker.Unsubscribe(sub)

		for {
			snapshot, err := query(ctx)
			if err != nil {
				if ctx.Err() == nil {
					db.logger.Error("Live query failed", "tables", tables, "error", err)
					q.err = err
				}
				return
			}
			select {
			case q.updates <- snapshot:
			case <-ctx.Done():
				return
			}
			select {
			case <-sub.Invalidated():
			case <-ctx.Done():
				return
			}
		}
	}()

	return q, nil
}

// Updates returns the snapshot channel. It is closed when the query ends.
func (q *LiveQuery[T]) Updates() <-chan []T {
	return q.updates
}

// Err returns the error that ended the query, if any. It is final once
// Updates has been closed.
func (q *LiveQuery[T]) Err() error {
	select {
	case <-q.done:
		return q.err
	default:
		return nil
	}
}

// Close stops the query and waits for its goroutine to exit.
func (q *LiveQuery[T]) Close() {
	q.once.Do(q.cancel)
	<-q.done
}
