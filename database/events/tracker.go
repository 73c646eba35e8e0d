package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Subscription receives a signal whenever one of its tables is invalidated.
// The signal channel has room for a single pending notification, so any
// number of writes between two reads collapse into one re-query.
type Subscription struct {
	ID     string
	tables map[string]struct{}
	ch     chan struct{}
}

// Invalidated returns the channel that is signalled on table changes. It is
// closed when the subscription is removed from the tracker.
func (s *Subscription) Invalidated() <-chan struct{} {
	return s.ch
}

// Tracker records table invalidations and fans them out to subscribers.
type Tracker struct {
	mutex       sync.RWMutex
	versions    TableVersions
	subscribers map[string]*Subscription
	logger      *slog.Logger
}

// NewTracker creates a tracker that knows about the given tables. Subscribing
// to or notifying any other table is an error.
func NewTracker(logger *slog.Logger, tables ...string) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	versions := make(TableVersions, len(tables))
	for _, table := range tables {
		versions[table] = 0
	}
	return &Tracker{
		versions:    versions,
		subscribers: make(map[string]*Subscription),
		logger:      logger,
	}
}

// Subscribe registers interest in a set of tables.
func (t *Tracker) Subscribe(tables ...string) (*Subscription, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	sub := &Subscription{
		ID:     uuid.New().String(),
		tables: make(map[string]struct{}, len(tables)),
		ch:     make(chan struct{}, 1),
	}
	for _, table := range tables {
		if _, ok := t.versions[table]; !ok {
			return nil, &UnknownTableError{Table: table}
		}
		sub.tables[table] = struct{}{}
	}
	t.subscribers[sub.ID] = sub
	t.logger.Debug("Subscribed to tables", "subscription", sub.ID, "tables", tables)
	return sub, nil
}

// Unsubscribe removes the subscription and closes its channel. Calling it
// more than once is harmless.
func (t *Tracker) Unsubscribe(sub *Subscription) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, ok := t.subscribers[sub.ID]; !ok {
		return
	}
	delete(t.subscribers, sub.ID)
	close(sub.ch)
	t.logger.Debug("Unsubscribed", "subscription", sub.ID)
}

// Notify marks the given tables as changed. Unknown table names are ignored.
func (t *Tracker) Notify(tables ...string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	changed := make(map[string]struct{}, len(tables))
	for _, table := range tables {
		if _, ok := t.versions[table]; !ok {
			t.logger.Warn("Ignoring invalidation of unknown table", "table", table)
			continue
		}
		t.versions[table]++
		changed[table] = struct{}{}
	}
	if len(changed) == 0 {
		return
	}

	for _, sub := range t.subscribers {
		if !sub.interestedIn(changed) {
			continue
		}
		select {
		case sub.ch <- struct{}{}:
		default:
			// Already pending, the next re-read will see this change too
		}
	}
}

func (s *Subscription) interestedIn(changed map[string]struct{}) bool {
	for table := range changed {
		if _, ok := s.tables[table]; ok {
			return true
		}
	}
	return false
}

// Version returns the current version of a table.
func (t *Tracker) Version(table string) (int, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	version, ok := t.versions[table]
	if !ok {
		return 0, &UnknownTableError{Table: table}
	}
	return version, nil
}

// Versions returns a snapshot of all table versions.
func (t *Tracker) Versions() TableVersions {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.versions.Clone()
}

// PollForVersion blocks until the table's version is greater than after, or
// the context is done. It returns the latest version and whether it advanced.
func (t *Tracker) PollForVersion(ctx context.Context, table string, after int) (int, bool, error) {
	// Subscribe before reading the version so no change can slip in between
	sub, err := t.Subscribe(table)
	if err != nil {
		return 0, false, err
	}
	defer t.Unsubscribe(sub)

	for {
		version, err := t.Version(table)
		if err != nil {
			return 0, false, err
		}
		if version > after {
			return version, true, nil
		}
		select {
		case <-sub.Invalidated():
		case <-ctx.Done():
			return version, false, nil
		}
	}
}
