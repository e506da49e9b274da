package watchlog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var at = time.Date(2026, 3, 1, 18, 30, 5, 123456000, time.UTC)

func watching(venueID int64, date, venue string) Entry {
	return Entry{
		Status:         StatusWatching,
		Venue:          venue,
		VenueID:        venueID,
		Date:           date,
		PartySize:      2,
		PreferredTimes: []string{"19:00", "19:30"},
		CreatedAt:      Timestamp(at),
	}
}

// storeCases runs fn against every local backend.
func storeCases(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("file", func(t *testing.T) {
		fn(t, NewFileStore(filepath.Join(t.TempDir(), "reservations_log.json")))
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "reservations_log.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
}

func TestStore_EmptyThenAppend(t *testing.T) {
	storeCases(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		entries, err := s.LoadAll(ctx)
		require.NoError(t, err)
		require.Empty(t, entries)

		require.NoError(t, s.Append(ctx, watching(1, "2026-03-08", "Lilia")))
		require.NoError(t, s.Append(ctx, watching(2, "2026-03-09", "Via Carota")))

		entries, err = s.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		require.Equal(t, "Lilia", entries[0].Venue)
		require.Equal(t, []string{"19:00", "19:30"}, entries[0].PreferredTimes)
		require.Equal(t, int64(2), entries[1].VenueID)
	})
}

func TestLog_MarkStoppedFirstMatchOnly(t *testing.T) {
	storeCases(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		l := New(s)
		require.NoError(t, l.Begin(ctx, watching(42, "2026-03-08", "first")))
		require.NoError(t, l.Begin(ctx, watching(42, "2026-03-08", "second")))

		found, err := l.MarkStopped(ctx, 42, "2026-03-08", at)
		require.NoError(t, err)
		require.True(t, found)

		entries, err := l.Entries(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		require.Equal(t, StatusStopped, entries[0].Status)
		require.Equal(t, "2026-03-01T18:30:05.123456", entries[0].StoppedAt)
		require.Equal(t, StatusWatching, entries[1].Status)

		found, err = l.MarkStopped(ctx, 42, "2026-03-08", at)
		require.NoError(t, err)
		require.True(t, found)
		found, err = l.MarkStopped(ctx, 42, "2026-03-08", at)
		require.NoError(t, err)
		require.False(t, found)
	})
}

func TestLog_MarkBooked(t *testing.T) {
	storeCases(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		l := New(s)
		require.NoError(t, l.Begin(ctx, watching(7, "2026-03-08", "Lilia")))

		found, err := l.MarkBooked(ctx, 7, "2026-03-09", Booking{Time: "x", ConfirmationToken: "y", At: at})
		require.NoError(t, err)
		require.False(t, found)

		found, err = l.MarkBooked(ctx, 7, "2026-03-08", Booking{Time: "2026-03-08 19:00:00", ConfirmationToken: "tok", At: at})
		require.NoError(t, err)
		require.True(t, found)

		entries, err := l.Entries(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		e := entries[0]
		require.Equal(t, StatusBooked, e.Status)
		require.Equal(t, "2026-03-08 19:00:00", e.Time)
		require.Equal(t, "tok", e.ConfirmationToken)
		require.Equal(t, Timestamp(at), e.BookedAt)
		require.Empty(t, e.StoppedAt)
	})
}

func TestLog_BeginForcesWatching(t *testing.T) {
	l := New(NewMemoryStore())
	e := watching(1, "2026-03-08", "Lilia")
	e.Status = StatusBooked
	require.NoError(t, l.Begin(context.Background(), e))

	entries, err := l.Entries(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusWatching, entries[0].Status)
}

type countingLocker struct{ keys []string }

func (c *countingLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	c.keys = append(c.keys, key)
	return fn(ctx)
}

func TestLog_TransitionsUseLocker(t *testing.T) {
	lk := &countingLocker{}
	l := New(NewMemoryStore(), WithLocker(lk))
	ctx := context.Background()

	require.NoError(t, l.Begin(ctx, watching(1, "2026-03-08", "Lilia")))
	_, err := l.MarkStopped(ctx, 1, "2026-03-08", at)
	require.NoError(t, err)
	require.NoError(t, l.Record(ctx, Entry{Status: StatusBooked, VenueID: 2}))

	require.Equal(t, []string{"watchlog", "watchlog", "watchlog"}, lk.keys)
}

func TestFileStore_CompatibleFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reservations_log.json")
	legacy := `[
  {
    "status": "booked",
    "venue": "Carbone",
    "venue_id": 6194,
    "date": "2026-02-14",
    "time": "2026-02-14 20:00:00",
    "party_size": 2,
    "confirmation_token": "abc",
    "booked_at": "2026-02-01T10:00:00.000001",
    "created_at": "2026-02-01T10:00:00.000001"
  }
]`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	s := NewFileStore(path)
	entries, err := s.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, StatusBooked, entries[0].Status)
	require.Equal(t, int64(6194), entries[0].VenueID)
	require.Nil(t, entries[0].PreferredTimes)

	require.NoError(t, s.Append(context.Background(), watching(1, "2026-03-08", "Lilia")))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), "\n  {\n    \"status\": \"booked\"")
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reservations_log.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path).LoadAll(context.Background())
	require.Error(t, err)
}

func TestFileStore_KeepsFileMode(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	fresh := filepath.Join(dir, "new.json")
	require.NoError(t, NewFileStore(fresh).Append(ctx, watching(1, "2026-03-08", "Lilia")))
	fi, err := os.Stat(fresh)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o644), fi.Mode().Perm())

	existing := filepath.Join(dir, "existing.json")
	require.NoError(t, os.WriteFile(existing, []byte("[]"), 0o600))
	require.NoError(t, os.Chmod(existing, 0o640))
	require.NoError(t, NewFileStore(existing).Append(ctx, watching(1, "2026-03-08", "Lilia")))
	fi, err = os.Stat(existing)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o640), fi.Mode().Perm())
}
