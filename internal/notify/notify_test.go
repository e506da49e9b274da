package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/example/resy-watch/internal/watch"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var (
	_ watch.Notifier = (*Push)(nil)
	_ watch.Notifier = (*Console)(nil)
	_ watch.Notifier = (*WhatsApp)(nil)
)

var testMatch = &watch.Match{
	Time:        "2026-03-08 15:00:00",
	ConfigToken: "cfg-15",
	VenueName:   "Lilia",
	VenueID:     42,
	Date:        "2026-03-08",
	PartySize:   2,
}

func TestConsole(t *testing.T) {
	var b bytes.Buffer
	c := NewConsole(&b)
	require.NoError(t, c.Deliver(context.Background(), "[12:00:00] No match. Available: none", nil))
	require.NoError(t, c.Deliver(context.Background(), "[12:00:01] Match found: 2026-03-08 15:00:00", testMatch))
	require.Equal(t, "[12:00:00] No match. Available: none\n[12:00:01] Match found: 2026-03-08 15:00:00\n  config token: cfg-15\n", b.String())
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestConsole_WriteFailure(t *testing.T) {
	err := NewConsole(brokenWriter{}).Deliver(context.Background(), "hi", nil)
	require.Error(t, err)
}

func TestWhatsAppText(t *testing.T) {
	require.Equal(t, "hello", WhatsAppText("hello", nil))
	require.Equal(t,
		"Match found\n\nMatch: Lilia on 2026-03-08 at 2026-03-08 15:00:00 for 2. Reply 'book it' to confirm.",
		WhatsAppText("Match found", testMatch))
}

func TestTwilio_Send(t *testing.T) {
	var got struct {
		path, user, pass, from, to, body string
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.user, got.pass, _ = r.BasicAuth()
		_ = r.ParseForm()
		got.from = r.PostForm.Get("From")
		got.to = r.PostForm.Get("To")
		got.body = r.PostForm.Get("Body")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	tw := &Twilio{AccountSID: "AC1", AuthToken: "secret", From: "+15550001111", BaseURL: srv.URL}
	require.NoError(t, tw.To("whatsapp:+15552223333").Deliver(context.Background(), "Match found", testMatch))

	require.Equal(t, "/2010-04-01/Accounts/AC1/Messages.json", got.path)
	require.Equal(t, "AC1", got.user)
	require.Equal(t, "secret", got.pass)
	require.Equal(t, "whatsapp:+15550001111", got.from)
	require.Equal(t, "whatsapp:+15552223333", got.to)
	require.True(t, strings.HasPrefix(got.body, "Match found\n\nMatch: Lilia"))
}

func TestTwilio_DefaultRecipient(t *testing.T) {
	var to string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		to = r.PostForm.Get("To")
	}))
	defer srv.Close()

	tw := &Twilio{AccountSID: "AC1", AuthToken: "secret", From: "+1", DefaultTo: "+15559998888", BaseURL: srv.URL}
	require.NoError(t, tw.Send(context.Background(), "", "hi"))
	require.Equal(t, "whatsapp:+15559998888", to)
}

func TestTwilio_UnconfiguredIsSilent(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()

	tw := &Twilio{AccountSID: "AC1", BaseURL: srv.URL}
	require.False(t, tw.Configured())
	require.NoError(t, tw.Send(context.Background(), "+1555", "hi"))
	require.False(t, called)
}

func TestWhatsApp_SwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tw := &Twilio{AccountSID: "AC1", AuthToken: "x", From: "+1", BaseURL: srv.URL, Logger: zerolog.Nop()}
	require.Error(t, tw.Send(context.Background(), "+2", "hi"))
	require.NoError(t, tw.To("+2").Deliver(context.Background(), "hi", nil))
}

func dialPush(t *testing.T) (*Push, *websocket.Conn) {
	t.Helper()
	ready := make(chan *Push, 1)
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ready <- NewPush(conn)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case p := <-ready:
		return p, client
	case <-time.After(5 * time.Second):
		t.Fatal("server never upgraded")
		return nil, nil
	}
}

func TestPush_DeliverFrames(t *testing.T) {
	p, client := dialPush(t)
	ctx := context.Background()

	require.NoError(t, p.Typing(ctx))
	require.NoError(t, p.Reply(ctx, "Started watching for cancellations. I'll send updates here."))
	require.NoError(t, p.Deliver(ctx, "[12:00:00] Match found", testMatch))

	var f Frame
	require.NoError(t, client.ReadJSON(&f))
	require.Equal(t, FrameTyping, f.Type)

	require.NoError(t, client.ReadJSON(&f))
	require.Equal(t, FrameBotMessage, f.Type)

	f = Frame{}
	require.NoError(t, client.ReadJSON(&f))
	require.Equal(t, FrameWatchUpdate, f.Type)
	require.Equal(t, "[12:00:00] Match found", f.Text)
	require.Equal(t, testMatch, f.Match)
}

func TestPush_ClosedFailsDelivery(t *testing.T) {
	p, _ := dialPush(t)
	require.NoError(t, p.Close())
	require.ErrorIs(t, p.Deliver(context.Background(), "hi", nil), ErrClosed)
}

func TestTwilio_Signature(t *testing.T) {
	tw := &Twilio{AccountSID: "AC1", AuthToken: "secret", From: "+15550000000"}
	form := url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"book it"}}
	const u = "https://watch.example.com/whatsapp"

	mac := hmac.New(sha1.New, []byte("secret"))
	mac.Write([]byte(u + "Bodybook itFromwhatsapp:+15551234567"))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	require.Equal(t, want, tw.Signature(u, form))
	require.True(t, tw.ValidSignature(u, form, want))

	require.False(t, tw.ValidSignature(u, form, ""))
	require.False(t, tw.ValidSignature(u+"?x=1", form, want))
	tampered := url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"stop watching"}}
	require.False(t, tw.ValidSignature(u, tampered, want))
	require.False(t, (&Twilio{}).ValidSignature(u, form, want))
}
