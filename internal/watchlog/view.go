package watchlog

import (
	"fmt"
	"io"
	"strings"
)

// Groups splits entries by status, keeping log order inside each group.
type Groups struct {
	Watching []Entry
	Booked   []Entry
	Stopped  []Entry
}

func Group(entries []Entry) Groups {
	var g Groups
	for _, e := range entries {
		switch e.Status {
		case StatusWatching:
			g.Watching = append(g.Watching, e)
		case StatusBooked:
			g.Booked = append(g.Booked, e)
		case StatusStopped:
			g.Stopped = append(g.Stopped, e)
		}
	}
	return g
}

func (g Groups) Empty() bool {
	return len(g.Watching) == 0 && len(g.Booked) == 0 && len(g.Stopped) == 0
}

// WriteText renders the human log view.
func WriteText(w io.Writer, entries []Entry) error {
	g := Group(entries)
	if g.Empty() {
		_, err := fmt.Fprintln(w, "No entries yet.")
		return err
	}
	var b strings.Builder
	if len(g.Watching) > 0 {
		b.WriteString("\n--- Watching for cancellations ---\n")
		for _, e := range g.Watching {
			fmt.Fprintf(&b, "  %s | %s | party of %d | looking for: %s\n", e.Venue, e.Date, e.PartySize, strings.Join(e.PreferredTimes, ", "))
			fmt.Fprintf(&b, "    started: %s\n", e.CreatedAt)
		}
	}
	if len(g.Booked) > 0 {
		b.WriteString("\n--- Confirmed reservations ---\n")
		for _, e := range g.Booked {
			fmt.Fprintf(&b, "  %s | %s | %s | party of %d\n", e.Venue, e.Date, orNA(e.Time), e.PartySize)
			fmt.Fprintf(&b, "    confirmed: %s | token: %s\n", orNA(e.BookedAt), orNA(e.ConfirmationToken))
		}
	}
	if len(g.Stopped) > 0 {
		b.WriteString("\n--- Stopped watches ---\n")
		for _, e := range g.Stopped {
			fmt.Fprintf(&b, "  %s | %s | was looking for: %s\n", e.Venue, e.Date, strings.Join(e.PreferredTimes, ", "))
			fmt.Fprintf(&b, "    stopped: %s\n", orNA(e.StoppedAt))
		}
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
