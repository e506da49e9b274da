package watch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/resy-watch/internal/watchlog"
)

// ErrNoMatch is returned when none of the preferred times is open.
var ErrNoMatch = errors.New("no slot at a preferred time")

// Booker makes one-off bookings outside a watch: a direct booking from the
// CLI, or a "book it" reply to a match notification. Each success appends
// a booked entry to the log.
type Booker struct {
	Availability AvailabilityProvider
	Booking      BookingProvider
	Log          *watchlog.Log
	Now          func() time.Time
}

// BookPreferred books the best open slot for req.
func (b *Booker) BookPreferred(ctx context.Context, req Request) (Match, string, error) {
	if err := req.Validate(); err != nil {
		return Match{}, "", err
	}
	slots, err := b.Availability.FindSlots(ctx, req.VenueID, req.PartySize, req.Date)
	if err != nil {
		return Match{}, "", &ProviderError{Op: "find slots", Err: err}
	}
	s, ok := FindMatch(slots, req.PreferredTimes)
	if !ok {
		return Match{}, "", ErrNoMatch
	}
	m := req.matchFor(s)
	token, err := b.BookMatch(ctx, m)
	return m, token, err
}

// BookMatch books the slot behind m and returns the confirmation token.
func (b *Booker) BookMatch(ctx context.Context, m Match) (string, error) {
	d, err := b.Booking.GetBookingDetails(ctx, m.ConfigToken, m.Date, m.PartySize)
	if err != nil {
		return "", &BookingError{Stage: StageDetails, Err: err}
	}
	if d.BookToken == "" {
		return "", &BookingError{Stage: StageDetails, Err: ErrNoBookToken}
	}
	out, err := b.Booking.Book(ctx, d.BookToken, d.PaymentMethodID)
	if err != nil {
		return "", &BookingError{Stage: StageBook, Err: err}
	}
	token := out.ConfirmationToken
	if token == "" {
		token = "N/A"
	}

	now := b.now()
	venue := m.VenueName
	if venue == "" {
		venue = "Unknown"
	}
	err = b.Log.Record(ctx, watchlog.Entry{
		Status:            watchlog.StatusBooked,
		Venue:             venue,
		VenueID:           m.VenueID,
		Date:              m.Date,
		Time:              m.Time,
		PartySize:         m.PartySize,
		ConfirmationToken: token,
		BookedAt:          watchlog.Timestamp(now),
		CreatedAt:         watchlog.Timestamp(now),
	})
	if err != nil {
		return token, fmt.Errorf("record booking: %w", err)
	}
	return token, nil
}

func (b *Booker) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}
