package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/example/resy-watch/internal/watch"
	"github.com/rs/zerolog"
)

const DefaultTwilioBaseURL = "https://api.twilio.com"

// Twilio sends WhatsApp messages through the Twilio Messages API.
// A zero-value account (any credential missing) sends nothing.
type Twilio struct {
	AccountSID string
	AuthToken  string
	From       string
	// DefaultTo receives messages sent with an empty recipient.
	DefaultTo string
	BaseURL   string

	HTTP   *http.Client
	Logger zerolog.Logger
}

func (t *Twilio) Configured() bool {
	return t != nil && t.AccountSID != "" && t.AuthToken != "" && t.From != ""
}

func whatsappAddr(n string) string {
	if strings.HasPrefix(n, "whatsapp:") {
		return n
	}
	return "whatsapp:" + n
}

// Send posts one message. It is a no-op when the account or recipient is
// not configured.
func (t *Twilio) Send(ctx context.Context, to, body string) error {
	if !t.Configured() {
		return nil
	}
	if to == "" {
		to = t.DefaultTo
	}
	if to == "" {
		return nil
	}
	base := t.BaseURL
	if base == "" {
		base = DefaultTwilioBaseURL
	}
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", base, url.PathEscape(t.AccountSID))
	form := url.Values{
		"From": {whatsappAddr(t.From)},
		"To":   {whatsappAddr(to)},
		"Body": {body},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(t.AccountSID, t.AuthToken)
	req.Header.Set("content-type", "application/x-www-form-urlencoded")

	hc := t.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	res, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("twilio send: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("twilio send failed (status=%d): %s", res.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

// Reply sends and only logs a failure.
func (t *Twilio) Reply(ctx context.Context, to, body string) {
	if t == nil {
		return
	}
	if err := t.Send(ctx, to, body); err != nil {
		t.Logger.Warn().Err(err).Str("to", to).Msg("whatsapp reply failed")
	}
}

// Signature computes the X-Twilio-Signature Twilio sends with a webhook
// POST to fullURL: HMAC-SHA1 over the URL followed by every form key and
// value in key order, keyed by the auth token.
func (t *Twilio) Signature(fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		for _, v := range form[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}
	mac := hmac.New(sha1.New, []byte(t.AuthToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidSignature reports whether sig was produced by this account for a
// POST of form to fullURL.
func (t *Twilio) ValidSignature(fullURL string, form url.Values, sig string) bool {
	if t == nil || t.AuthToken == "" || sig == "" {
		return false
	}
	return hmac.Equal([]byte(t.Signature(fullURL, form)), []byte(sig))
}

// To returns the store-and-forward notifier for one recipient.
func (t *Twilio) To(recipient string) *WhatsApp {
	return &WhatsApp{twilio: t, to: recipient}
}

// WhatsApp is the store-and-forward notifier. Delivery is best effort:
// send failures are logged and swallowed, so they never end a watch.
type WhatsApp struct {
	twilio *Twilio
	to     string
}

func (w *WhatsApp) Deliver(ctx context.Context, text string, m *watch.Match) error {
	w.twilio.Reply(ctx, w.to, WhatsAppText(text, m))
	return nil
}

// WhatsAppText appends a plain-text summary of the match, since the
// channel cannot carry the structured payload.
func WhatsAppText(text string, m *watch.Match) string {
	if m == nil {
		return text
	}
	return fmt.Sprintf("%s\n\nMatch: %s on %s at %s for %d. Reply 'book it' to confirm.",
		text, m.VenueName, m.Date, m.Time, m.PartySize)
}
