package watchlog

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by callers that require a watching entry to exist.
var ErrNotFound = errors.New("no watching entry")

// Locker serialises read-modify-write cycles on the log.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

const lockKey = "watchlog"

// Log applies watch lifecycle transitions on top of a Store.
//
// Without a Locker the transitions keep the log's historical behaviour:
// whole-log read-modify-write with last writer wins.
type Log struct {
	store  Store
	locker Locker
}

type Option func(*Log)

// WithLocker guards every transition with l.
func WithLocker(l Locker) Option {
	return func(g *Log) { g.locker = l }
}

func New(store Store, opts ...Option) *Log {
	l := &Log{store: store}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Log) Store() Store { return l.store }

func (l *Log) Entries(ctx context.Context) ([]Entry, error) {
	return l.store.LoadAll(ctx)
}

// Begin records a new watching entry.
func (l *Log) Begin(ctx context.Context, e Entry) error {
	e.Status = StatusWatching
	return l.locked(ctx, func(ctx context.Context) error {
		return l.store.Append(ctx, e)
	})
}

// Record appends an entry as-is, e.g. a booking made outside a watch.
func (l *Log) Record(ctx context.Context, e Entry) error {
	return l.locked(ctx, func(ctx context.Context) error {
		return l.store.Append(ctx, e)
	})
}

// MarkStopped moves the first watching entry for venueID/date to stopped.
func (l *Log) MarkStopped(ctx context.Context, venueID int64, date string, at time.Time) (bool, error) {
	return l.transition(ctx, venueID, date, func(e *Entry) {
		e.Status = StatusStopped
		e.StoppedAt = Timestamp(at)
	})
}

// MarkBooked moves the first watching entry for venueID/date to booked.
func (l *Log) MarkBooked(ctx context.Context, venueID int64, date string, b Booking) (bool, error) {
	return l.transition(ctx, venueID, date, func(e *Entry) {
		e.Status = StatusBooked
		e.Time = b.Time
		e.ConfirmationToken = b.ConfirmationToken
		e.BookedAt = Timestamp(b.At)
	})
}

// transition mutates only the first match; duplicate watches for the same
// venue and date are not distinguished.
func (l *Log) transition(ctx context.Context, venueID int64, date string, mutate func(*Entry)) (bool, error) {
	var found bool
	err := l.locked(ctx, func(ctx context.Context) error {
		entries, err := l.store.LoadAll(ctx)
		if err != nil {
			return err
		}
		i := FirstWatching(entries, venueID, date)
		if i < 0 {
			return nil
		}
		mutate(&entries[i])
		found = true
		return l.store.SaveAll(ctx, entries)
	})
	return found, err
}

func (l *Log) locked(ctx context.Context, fn func(ctx context.Context) error) error {
	if l.locker == nil {
		return fn(ctx)
	}
	return l.locker.WithLock(ctx, lockKey, fn)
}
