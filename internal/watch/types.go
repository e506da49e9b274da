package watch

import (
	"context"
	"strings"
	"time"
)

// Request is a standing request to be told when a preferred slot opens up.
// It is owned by exactly one engine run for its whole lifetime.
type Request struct {
	VenueID        int64    `json:"venue_id"`
	VenueName      string   `json:"venue_name"`
	PartySize      int      `json:"party_size"`
	Date           string   `json:"date"`            // YYYY-MM-DD
	PreferredTimes []string `json:"preferred_times"` // HH:MM, priority order
}

// Validate rejects malformed requests before a watch is started.
func (r Request) Validate() error {
	if r.VenueID <= 0 {
		return &ValidationError{Field: "venue_id", Msg: "must be a positive provider id"}
	}
	if r.PartySize < 1 {
		return &ValidationError{Field: "party_size", Msg: "must be >= 1"}
	}
	if _, err := time.Parse("2006-01-02", r.Date); err != nil {
		return &ValidationError{Field: "date", Msg: "want YYYY-MM-DD"}
	}
	if len(r.PreferredTimes) == 0 {
		return &ValidationError{Field: "preferred_times", Msg: "at least one time required"}
	}
	for _, t := range r.PreferredTimes {
		if _, err := time.Parse("15:04", t); err != nil {
			return &ValidationError{Field: "preferred_times", Msg: "invalid time " + t + " (want HH:MM)"}
		}
	}
	return nil
}

// DisplayName falls back to the venue id when no name was supplied.
func (r Request) DisplayName() string {
	if strings.TrimSpace(r.VenueName) != "" {
		return r.VenueName
	}
	return "venue " + itoa(r.VenueID)
}

func (r Request) matchFor(s Slot) Match {
	return Match{
		Time:        s.Start,
		ConfigToken: s.ConfigToken,
		VenueName:   r.VenueName,
		VenueID:     r.VenueID,
		Date:        r.Date,
		PartySize:   r.PartySize,
	}
}

// Slot is one bookable configuration returned by the availability provider.
// Start embeds date and time, e.g. "2026-03-08 14:30:00".
type Slot struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	Type        string `json:"type"`
	ConfigToken string `json:"config_token"`
}

// Match is the structured payload delivered alongside a match notification.
type Match struct {
	Time        string `json:"time"`
	ConfigToken string `json:"config_token"`
	VenueName   string `json:"venue_name"`
	VenueID     int64  `json:"venue_id"`
	Date        string `json:"date"`
	PartySize   int    `json:"party_size"`
}

// BookingDetails is what the provider hands back for a config token.
type BookingDetails struct {
	BookToken       string
	PaymentMethodID int64
}

// BookingOutcome carries the provider's confirmation for a completed booking.
type BookingOutcome struct {
	ConfirmationToken string
}

// AvailabilityProvider returns the currently open slots for a venue/date/party size.
type AvailabilityProvider interface {
	FindSlots(ctx context.Context, venueID int64, partySize int, date string) ([]Slot, error)
}

// BookingProvider turns a config token into a confirmed reservation.
type BookingProvider interface {
	GetBookingDetails(ctx context.Context, configToken, date string, partySize int) (BookingDetails, error)
	Book(ctx context.Context, bookToken string, paymentMethodID int64) (BookingOutcome, error)
}

// State is the engine-side lifecycle of a single watch.
type State string

const (
	StateWatching State = "watching"
	StateBooked   State = "booked"
	StateStopped  State = "stopped"
	StateFailed   State = "failed"
)

// Policy decides what happens when a preferred slot shows up.
type Policy int

const (
	// PolicyNotify reports the match and keeps watching; acting on it is the caller's job.
	PolicyNotify Policy = iota
	// PolicyAutoBook books the match and ends the watch.
	PolicyAutoBook
)

func (p Policy) String() string {
	switch p {
	case PolicyAutoBook:
		return "auto-book"
	default:
		return "notify"
	}
}

// Result is the terminal outcome of Engine.Run.
type Result struct {
	State        State
	Confirmation string
	// Err is set for StateFailed, and for terminal states whose log write failed.
	Err error
}
