package watchlog

import "context"

// Store is whole-log persistence. There is no transaction across calls:
// callers read-modify-write, and concurrent writers lose updates unless a
// Locker is configured on the Log.
type Store interface {
	LoadAll(ctx context.Context) ([]Entry, error)
	SaveAll(ctx context.Context, entries []Entry) error
	Append(ctx context.Context, e Entry) error
}

func cloneEntries(in []Entry) []Entry {
	if in == nil {
		return nil
	}
	out := make([]Entry, len(in))
	for i, e := range in {
		e.PreferredTimes = append([]string(nil), e.PreferredTimes...)
		out[i] = e
	}
	return out
}
