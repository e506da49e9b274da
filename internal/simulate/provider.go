package simulate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/example/resy-watch/internal/resy"
	"github.com/example/resy-watch/internal/watch"
)

var ErrUpstream = errors.New("simulated upstream timeout")

var slotTypes = []string{"Dining Room", "Bar", "Patio", "Counter"}

// Provider is a fake Resy: each poll opens a random subset of the evening's
// half-hour slots. It implements the availability and booking providers
// and venue search.
type Provider struct {
	// OpenRate is the chance each candidate time is open on a poll.
	OpenRate float64
	// ErrorRate is the chance a poll fails outright.
	ErrorRate float64

	mu sync.Mutex
	f  *gofakeit.Faker
}

func New(seed uint64) *Provider {
	return &Provider{OpenRate: 0.2, ErrorRate: 0.1, f: gofakeit.New(seed)}
}

var (
	_ watch.AvailabilityProvider = (*Provider)(nil)
	_ watch.BookingProvider      = (*Provider)(nil)
)

// Times lists the candidate slot times, 17:00 through 22:30.
func Times() []string {
	var out []string
	for h := 17; h <= 22; h++ {
		out = append(out, fmt.Sprintf("%02d:00", h), fmt.Sprintf("%02d:30", h))
	}
	return out
}

func (p *Provider) FindSlots(ctx context.Context, venueID int64, partySize int, date string) ([]watch.Slot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.f.Float64Range(0, 1) < p.ErrorRate {
		return nil, ErrUpstream
	}
	var out []watch.Slot
	for i, t := range Times() {
		if p.f.Float64Range(0, 1) >= p.OpenRate {
			continue
		}
		end := fmt.Sprintf("%02d:%s", 18+i/2, t[3:])
		out = append(out, watch.Slot{
			Start:       date + " " + t + ":00",
			End:         date + " " + end + ":00",
			Type:        slotTypes[p.f.Number(0, len(slotTypes)-1)],
			ConfigToken: fmt.Sprintf("rgs://resy/%d/%s/%d", venueID, p.f.UUID(), partySize),
		})
	}
	return out, nil
}

func (p *Provider) GetBookingDetails(ctx context.Context, configToken, date string, partySize int) (watch.BookingDetails, error) {
	if err := ctx.Err(); err != nil {
		return watch.BookingDetails{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return watch.BookingDetails{
		BookToken:       p.f.UUID(),
		PaymentMethodID: int64(p.f.Number(100000, 999999)),
	}, nil
}

func (p *Provider) Book(ctx context.Context, bookToken string, paymentMethodID int64) (watch.BookingOutcome, error) {
	if err := ctx.Err(); err != nil {
		return watch.BookingOutcome{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return watch.BookingOutcome{ConfirmationToken: strings.ToUpper(p.f.LetterN(10))}, nil
}

func (p *Provider) SearchVenues(ctx context.Context, query string, perPage int) ([]resy.Venue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if perPage <= 0 {
		perPage = 5
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.f.Number(1, perPage)
	out := make([]resy.Venue, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, resy.Venue{
			ID:           int64(p.f.Number(1000, 99999)),
			Name:         strings.TrimSpace(query + " " + p.f.LastName()),
			Location:     p.f.City(),
			Neighborhood: p.f.StreetName(),
			Cuisine:      []string{p.f.RandomString([]string{"Italian", "Japanese", "Mexican", "French", "Korean"})},
		})
	}
	return out, nil
}
