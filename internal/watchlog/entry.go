package watchlog

import "time"

type Status string

const (
	StatusWatching Status = "watching"
	StatusBooked   Status = "booked"
	StatusStopped  Status = "stopped"
)

// Entry is one record in the reservation log. Watch entries are created in
// watching and mutated in place exactly once to booked or stopped; direct
// bookings are appended already booked. Entries are never deleted.
type Entry struct {
	Status         Status   `json:"status" yaml:"status"`
	Venue          string   `json:"venue" yaml:"venue"`
	VenueID        int64    `json:"venue_id" yaml:"venue_id"`
	Date           string   `json:"date" yaml:"date"`
	PartySize      int      `json:"party_size" yaml:"party_size"`
	PreferredTimes []string `json:"preferred_times,omitempty" yaml:"preferred_times,omitempty"`
	CreatedAt      string   `json:"created_at" yaml:"created_at"`

	StoppedAt string `json:"stopped_at,omitempty" yaml:"stopped_at,omitempty"`

	Time              string `json:"time,omitempty" yaml:"time,omitempty"`
	ConfirmationToken string `json:"confirmation_token,omitempty" yaml:"confirmation_token,omitempty"`
	BookedAt          string `json:"booked_at,omitempty" yaml:"booked_at,omitempty"`
}

// Booking is the data written when a watch ends booked.
type Booking struct {
	Time              string
	ConfirmationToken string
	At                time.Time
}

// Timestamp formats t the way the log has always stored it (local ISO-8601, microseconds).
func Timestamp(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.000000")
}

// FirstWatching returns the index of the first watching entry for venueID
// and date in insertion order, or -1.
func FirstWatching(entries []Entry, venueID int64, date string) int {
	for i, e := range entries {
		if e.VenueID == venueID && e.Date == date && e.Status == StatusWatching {
			return i
		}
	}
	return -1
}
