package resy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/example/resy-watch/internal/watch"
)

const DefaultBaseURL = "https://api.resy.com"

// Client talks to the Resy API with an API key and auth token captured from
// an authenticated browser session. It implements watch.AvailabilityProvider
// and watch.BookingProvider.
type Client struct {
	hc      *http.Client
	creds   Credentials
	baseURL string
}

type Credentials struct {
	APIKey    string
	AuthToken string
}

type Option func(*Client)

// WithBaseURL points the client at another host, e.g. an httptest server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient replaces the default http client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

func New(creds Credentials, opts ...Option) *Client {
	c := &Client{
		hc:      &http.Client{Timeout: 30 * time.Second},
		creds:   creds,
		baseURL: DefaultBaseURL,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var (
	_ watch.AvailabilityProvider = (*Client)(nil)
	_ watch.BookingProvider      = (*Client)(nil)
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Op      string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("resy %s failed: %s (status=%d)", e.Op, e.Message, e.Status)
	}
	return fmt.Sprintf("resy %s failed (status=%d)", e.Op, e.Status)
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, "ping", http.MethodGet, "/2/user", "", nil, nil)
	return err
}

// Venue is one venue search hit.
type Venue struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Location     string   `json:"location"`
	Neighborhood string   `json:"neighborhood"`
	Cuisine      []string `json:"cuisine"`
}

type searchResponse struct {
	Search struct {
		Hits []struct {
			ID struct {
				Resy int64 `json:"resy"`
			} `json:"id"`
			Name     string `json:"name"`
			Location struct {
				Name string `json:"name"`
			} `json:"location"`
			Neighborhood string   `json:"neighborhood"`
			Cuisine      []string `json:"cuisine"`
		} `json:"hits"`
	} `json:"search"`
}

// SearchVenues finds venues by name.
func (c *Client) SearchVenues(ctx context.Context, query string, perPage int) ([]Venue, error) {
	if perPage <= 0 {
		perPage = 5
	}
	jb, err := json.Marshal(map[string]any{
		"query":    query,
		"per_page": perPage,
		"types":    []string{"venue"},
	})
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, "venue search", http.MethodPost, "/3/venuesearch/search", "application/json", nil, jb)
	if err != nil {
		return nil, err
	}
	var res searchResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode venue search: %w", err)
	}
	out := make([]Venue, 0, len(res.Search.Hits))
	for _, h := range res.Search.Hits {
		out = append(out, Venue{
			ID:           h.ID.Resy,
			Name:         h.Name,
			Location:     h.Location.Name,
			Neighborhood: h.Neighborhood,
			Cuisine:      h.Cuisine,
		})
	}
	return out, nil
}

type slot struct {
	Date struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"date"`
	Config struct {
		Type  string `json:"type"`
		Token string `json:"token"`
	} `json:"config"`
}

type findResponse struct {
	Results struct {
		Venues []struct {
			Slots []slot `json:"slots"`
		} `json:"venues"`
	} `json:"results"`
}

// FindSlots returns the open slots for a venue. A venue with no
// availability yields an empty list, not an error.
func (c *Client) FindSlots(ctx context.Context, venueID int64, partySize int, date string) ([]watch.Slot, error) {
	q := url.Values{
		"venue_id":   {strconv.FormatInt(venueID, 10)},
		"party_size": {strconv.Itoa(partySize)},
		"day":        {date},
		// deprecated upstream but still required
		"lat":  {"0"},
		"long": {"0"},
	}
	body, err := c.do(ctx, "find", http.MethodGet, "/4/find", "", q, nil)
	if err != nil {
		return nil, err
	}
	var res findResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode find: %w", err)
	}
	if len(res.Results.Venues) == 0 {
		return []watch.Slot{}, nil
	}
	ss := res.Results.Venues[0].Slots
	out := make([]watch.Slot, 0, len(ss))
	for _, s := range ss {
		out = append(out, watch.Slot{
			Start:       s.Date.Start,
			End:         s.Date.End,
			Type:        s.Config.Type,
			ConfigToken: s.Config.Token,
		})
	}
	return out, nil
}

type detailsResponse struct {
	BookToken struct {
		Value string `json:"value"`
	} `json:"book_token"`
	User struct {
		PaymentMethods []struct {
			ID int64 `json:"id"`
		} `json:"payment_methods"`
	} `json:"user"`
}

// GetBookingDetails exchanges a config token for a book token. A response
// without a book token is not an error here; the caller decides.
func (c *Client) GetBookingDetails(ctx context.Context, configToken, date string, partySize int) (watch.BookingDetails, error) {
	q := url.Values{
		"config_id":  {configToken},
		"day":        {date},
		"party_size": {strconv.Itoa(partySize)},
	}
	body, err := c.do(ctx, "details", http.MethodGet, "/3/details", "", q, nil)
	if err != nil {
		return watch.BookingDetails{}, err
	}
	var res detailsResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return watch.BookingDetails{}, fmt.Errorf("decode details: %w", err)
	}
	d := watch.BookingDetails{BookToken: res.BookToken.Value}
	if len(res.User.PaymentMethods) > 0 {
		d.PaymentMethodID = res.User.PaymentMethods[0].ID
	}
	return d, nil
}

// Book submits the reservation. The confirmation is Resy's resy_token.
func (c *Client) Book(ctx context.Context, bookToken string, paymentMethodID int64) (watch.BookingOutcome, error) {
	pm, err := json.Marshal(struct {
		ID int64 `json:"id"`
	}{ID: paymentMethodID})
	if err != nil {
		return watch.BookingOutcome{}, err
	}
	form := url.Values{
		"book_token":            {bookToken},
		"struct_payment_method": {string(pm)},
	}
	body, err := c.do(ctx, "book", http.MethodPost, "/3/book", "application/x-www-form-urlencoded", nil, []byte(form.Encode()))
	if err != nil {
		return watch.BookingOutcome{}, err
	}
	var res struct {
		ResyToken string `json:"resy_token"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return watch.BookingOutcome{}, fmt.Errorf("decode book: %w", err)
	}
	return watch.BookingOutcome{ConfirmationToken: res.ResyToken}, nil
}

func (c *Client) do(ctx context.Context, op, method, path, contentType string, query url.Values, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("user-agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.6 Safari/605.1.15")
	req.Header.Set("accept", "application/json, text/plain, */*")
	req.Header.Set("origin", "https://resy.com")
	req.Header.Set("referer", "https://resy.com/")
	req.Header.Set("x-origin", "https://resy.com")
	req.Header.Set("cache-control", "no-cache")
	if contentType != "" {
		req.Header.Set("content-type", contentType)
	}
	req.Header.Set("authorization", fmt.Sprintf(`ResyAPI api_key="%s"`, c.creds.APIKey))
	req.Header.Set("x-resy-auth-token", c.creds.AuthToken)
	req.Header.Set("x-resy-universal-auth", c.creds.AuthToken)
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resy %s: %w", op, err)
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("resy %s: read body: %w", op, err)
	}
	if res.StatusCode >= 400 {
		var m struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(b, &m)
		return nil, &StatusError{Op: op, Status: res.StatusCode, Message: m.Message}
	}
	return b, nil
}
