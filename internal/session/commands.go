package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/example/resy-watch/internal/resy"
	"github.com/example/resy-watch/internal/watch"
	"github.com/example/resy-watch/internal/watchlog"
)

const HelpText = `Commands:
  search <restaurant name>
  slots <venue_id> <YYYY-MM-DD> <party_size>
  watch <venue_id> <YYYY-MM-DD> <party_size> <HH:MM[,HH:MM...]> [venue name]
  book <venue_id> <YYYY-MM-DD> <party_size> <HH:MM[,HH:MM...]> [venue name]
  book it      book the last match you were sent
  log          show bookings and watches
  stop watching`

// VenueSearcher finds venues by name.
type VenueSearcher interface {
	SearchVenues(ctx context.Context, query string, perPage int) ([]resy.Venue, error)
}

// CommandProcessor understands a fixed command grammar. Every field is
// optional; commands whose collaborator is missing say so.
type CommandProcessor struct {
	Venues VenueSearcher
	Slots  watch.AvailabilityProvider
	Booker *watch.Booker
	Log    *watchlog.Log

	mu   sync.Mutex
	last *watch.Match
}

func (p *CommandProcessor) Remember(m watch.Match) {
	p.mu.Lock()
	p.last = &m
	p.mu.Unlock()
}

// Pending reports whether a remembered match is waiting for "book it".
func (p *CommandProcessor) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last != nil
}

func (p *CommandProcessor) Process(ctx context.Context, text string) ([]Event, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, nil
	}
	switch strings.ToLower(fields[0]) {
	case "help", "?":
		return []Event{Text(HelpText)}, nil
	case "log":
		return p.log(ctx)
	case "search":
		return p.search(ctx, strings.Join(fields[1:], " "))
	case "slots":
		return p.slots(ctx, fields[1:])
	case "watch":
		req, err := parseRequest(fields[1:])
		if err != nil {
			return []Event{Text(err.Error())}, nil
		}
		return []Event{Watch(req)}, nil
	case "book":
		if len(fields) == 2 && strings.EqualFold(fields[1], "it") {
			return p.bookLast(ctx)
		}
		return p.book(ctx, fields[1:])
	}
	return []Event{Text("Sorry, I didn't understand that.\n\n" + HelpText)}, nil
}

// parseRequest reads <venue_id> <date> <party_size> <times> [name...].
func parseRequest(args []string) (watch.Request, error) {
	if len(args) < 4 {
		return watch.Request{}, errors.New("usage: <venue_id> <YYYY-MM-DD> <party_size> <HH:MM[,HH:MM...]> [venue name]")
	}
	venueID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return watch.Request{}, fmt.Errorf("venue_id %q is not a number", args[0])
	}
	party, err := strconv.Atoi(args[2])
	if err != nil {
		return watch.Request{}, fmt.Errorf("party_size %q is not a number", args[2])
	}
	var times []string
	for _, t := range strings.Split(args[3], ",") {
		if t = strings.TrimSpace(t); t != "" {
			times = append(times, t)
		}
	}
	req := watch.Request{
		VenueID:        venueID,
		VenueName:      strings.Join(args[4:], " "),
		PartySize:      party,
		Date:           args[1],
		PreferredTimes: times,
	}
	if err := req.Validate(); err != nil {
		return watch.Request{}, err
	}
	return req, nil
}

func (p *CommandProcessor) log(ctx context.Context) ([]Event, error) {
	if p.Log == nil {
		return []Event{Text("The reservation log is not available.")}, nil
	}
	entries, err := p.Log.Entries(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return []Event{Text("No reservation log entries yet.")}, nil
	}
	var b bytes.Buffer
	if err := watchlog.WriteText(&b, entries); err != nil {
		return nil, err
	}
	return []Event{Text(strings.TrimSpace(b.String()))}, nil
}

func (p *CommandProcessor) search(ctx context.Context, q string) ([]Event, error) {
	if p.Venues == nil {
		return []Event{Text("Venue search is not available.")}, nil
	}
	if strings.TrimSpace(q) == "" {
		return []Event{Text("usage: search <restaurant name>")}, nil
	}
	venues, err := p.Venues.SearchVenues(ctx, q, 5)
	if err != nil {
		return nil, err
	}
	if len(venues) == 0 {
		return []Event{Text("No restaurants found matching that search.")}, nil
	}
	var b strings.Builder
	for i, v := range venues {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s (id %d)", i+1, v.Name, v.ID)
		if loc := strings.Trim(strings.Join([]string{v.Neighborhood, v.Location}, ", "), ", "); loc != "" {
			fmt.Fprintf(&b, " - %s", loc)
		}
		if len(v.Cuisine) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(v.Cuisine, ", "))
		}
	}
	return []Event{Text(b.String())}, nil
}

func (p *CommandProcessor) slots(ctx context.Context, args []string) ([]Event, error) {
	if p.Slots == nil {
		return []Event{Text("Slot lookup is not available.")}, nil
	}
	if len(args) < 3 {
		return []Event{Text("usage: slots <venue_id> <YYYY-MM-DD> <party_size>")}, nil
	}
	// reuse request validation with a placeholder time
	req, err := parseRequest(append(args[:3:3], "00:00"))
	if err != nil {
		return []Event{Text(err.Error())}, nil
	}
	slots, err := p.Slots.FindSlots(ctx, req.VenueID, req.PartySize, req.Date)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return []Event{Text("No available slots for that date.")}, nil
	}
	var b strings.Builder
	for i, s := range slots {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s  %s", s.Start, s.Type)
	}
	return []Event{Text(b.String())}, nil
}

func (p *CommandProcessor) book(ctx context.Context, args []string) ([]Event, error) {
	if p.Booker == nil {
		return []Event{Text("Booking is not available.")}, nil
	}
	req, err := parseRequest(args)
	if err != nil {
		return []Event{Text(err.Error())}, nil
	}
	_, token, err := p.Booker.BookPreferred(ctx, req)
	return booked(token, err)
}

func (p *CommandProcessor) bookLast(ctx context.Context) ([]Event, error) {
	if p.Booker == nil {
		return []Event{Text("Booking is not available.")}, nil
	}
	p.mu.Lock()
	last := p.last
	p.mu.Unlock()
	if last == nil {
		return []Event{Text("There is no match to book yet.")}, nil
	}
	token, err := p.Booker.BookMatch(ctx, *last)
	if err == nil {
		p.mu.Lock()
		p.last = nil
		p.mu.Unlock()
	}
	return booked(token, err)
}

func booked(token string, err error) ([]Event, error) {
	switch {
	case errors.Is(err, watch.ErrNoMatch):
		return []Event{Text("None of those times is available right now.")}, nil
	case errors.Is(err, watch.ErrNoBookToken):
		return []Event{Text("Could not obtain a booking token.")}, nil
	case watch.IsValidation(err):
		return []Event{Text(err.Error())}, nil
	case err != nil && token == "":
		return nil, err
	}
	// a booking whose log write failed is still a booking
	return []Event{Text(fmt.Sprintf("Reservation confirmed! Confirmation token: %s", token))}, nil
}
