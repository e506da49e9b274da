package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/resy-watch/internal/auth"
	"github.com/example/resy-watch/internal/notify"
	"github.com/example/resy-watch/internal/session"
	"github.com/example/resy-watch/internal/supervisor"
	"github.com/example/resy-watch/internal/watch"
	"github.com/example/resy-watch/internal/watchlog"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// matchRunner delivers one match, then waits for cancellation.
type matchRunner struct{}

func (matchRunner) Run(ctx context.Context, req watch.Request, n watch.Notifier) watch.Result {
	m := watch.Match{Time: req.Date + " 19:00:00", ConfigToken: "cfg", VenueName: req.VenueName, VenueID: req.VenueID, Date: req.Date, PartySize: req.PartySize}
	if err := n.Deliver(ctx, "[12:00:00] Match found: "+m.Time+"! Type 'book it' to confirm or I'll keep watching.", &m); err != nil {
		return watch.Result{State: watch.StateFailed, Err: err}
	}
	<-ctx.Done()
	return watch.Result{State: watch.StateStopped}
}

type twilioFake struct {
	mu   sync.Mutex
	msgs []url.Values
}

func (f *twilioFake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	f.mu.Lock()
	f.msgs = append(f.msgs, r.PostForm)
	f.mu.Unlock()
	w.WriteHeader(http.StatusCreated)
}

func (f *twilioFake) bodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.msgs {
		out = append(out, m.Get("Body"))
	}
	return out
}

type fixture struct {
	srv   *httptest.Server
	sup   *supervisor.Supervisor
	store *watchlog.MemoryStore
	tw    *twilioFake
	web   *Server
}

func newFixture(t *testing.T, mutate func(*Server)) *fixture {
	t.Helper()
	f := &fixture{
		sup:   supervisor.New(matchRunner{}, zerolog.Nop()),
		store: watchlog.NewMemoryStore(),
		tw:    &twilioFake{},
	}
	twSrv := httptest.NewServer(f.tw)
	t.Cleanup(twSrv.Close)

	log := watchlog.New(f.store)
	f.web = &Server{
		Auth:       auth.NewStore("", "", securecookie.GenerateRandomKey(32), nil),
		Log:        log,
		Supervisor: f.sup,
		Twilio:     &notify.Twilio{AccountSID: "AC1", AuthToken: "x", From: "+15550000000", BaseURL: twSrv.URL, Logger: zerolog.Nop()},
		NewProcessor: func() session.Processor {
			return &session.CommandProcessor{Log: log}
		},
		Logger: zerolog.Nop(),
	}
	if mutate != nil {
		mutate(f.web)
	}
	f.srv = httptest.NewServer(f.web.Routes())
	t.Cleanup(func() {
		f.srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = f.sup.Shutdown(ctx)
	})
	return f
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(f.srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	return c
}

func readFrame(t *testing.T, c *websocket.Conn) notify.Frame {
	t.Helper()
	var f notify.Frame
	require.NoError(t, c.ReadJSON(&f))
	return f
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)
	res, err := http.Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NotEmpty(t, res.Header.Get("X-Request-ID"))
}

func TestAPILog(t *testing.T) {
	f := newFixture(t, nil)

	get := func() []watchlog.Entry {
		res, err := http.Get(f.srv.URL + "/api/log")
		require.NoError(t, err)
		defer res.Body.Close()
		require.Equal(t, "application/json", res.Header.Get("Content-Type"))
		var out []watchlog.Entry
		require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
		return out
	}
	require.Empty(t, get())

	require.NoError(t, f.store.Append(context.Background(), watchlog.Entry{Status: watchlog.StatusBooked, Venue: "Lilia", VenueID: 418}))
	got := get()
	require.Len(t, got, 1)
	require.Equal(t, "Lilia", got[0].Venue)
}

func TestHome(t *testing.T) {
	f := newFixture(t, nil)
	res, err := http.Get(f.srv.URL + "/")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, res.Header.Get("Content-Type"), "text/html")
}

func TestAuthRequired(t *testing.T) {
	hash, err := auth.HashPassword("pw")
	require.NoError(t, err)
	f := newFixture(t, func(s *Server) {
		s.Auth = auth.NewStore("admin", hash, securecookie.GenerateRandomKey(32), nil)
	})

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	res, err := client.Get(f.srv.URL + "/")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusFound, res.StatusCode)
	require.Equal(t, "/login", res.Header.Get("Location"))

	res, err = client.PostForm(f.srv.URL+"/login", url.Values{"username": {"admin"}, "password": {"pw"}})
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusFound, res.StatusCode)
	require.Len(t, res.Cookies(), 1)

	req, _ := http.NewRequest(http.MethodGet, f.srv.URL+"/api/log", nil)
	req.AddCookie(res.Cookies()[0])
	res, err = client.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestWS_WatchMessageAndStop(t *testing.T) {
	f := newFixture(t, nil)
	c := f.dial(t)

	require.NoError(t, c.WriteJSON(map[string]string{"type": "message", "text": "watch 418 2026-03-08 2 19:00 Lilia"}))
	require.Equal(t, notify.FrameTyping, readFrame(t, c).Type)

	// the started reply and the first watch update race; accept either order
	var started, update *notify.Frame
	for i := 0; i < 2; i++ {
		fr := readFrame(t, c)
		switch fr.Type {
		case notify.FrameBotMessage:
			started = &fr
		case notify.FrameWatchUpdate:
			update = &fr
		}
	}
	require.NotNil(t, started)
	require.Equal(t, wsStartedText, started.Text)
	require.NotNil(t, update)
	require.NotNil(t, update.Match)
	require.Equal(t, "2026-03-08 19:00:00", update.Match.Time)
	require.Equal(t, "Lilia", update.Match.VenueName)

	require.NoError(t, c.WriteJSON(map[string]string{"type": "stop"}))
	fr := readFrame(t, c)
	require.Equal(t, notify.FrameBotMessage, fr.Type)
	require.Equal(t, "All watches cancelled.", fr.Text)
	require.Empty(t, f.sup.Active(""))
}

func TestWS_DirectWatchFrameAndDisconnect(t *testing.T) {
	f := newFixture(t, nil)
	c := f.dial(t)

	require.NoError(t, c.WriteJSON(map[string]any{
		"type":            "watch",
		"venue_id":        418,
		"venue_name":      "Lilia",
		"party_size":      2,
		"date":            "2026-03-08",
		"preferred_times": []string{"19:00"},
	}))
	require.Eventually(t, func() bool { return len(f.sup.Active("")) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())
	require.Eventually(t, func() bool { return len(f.sup.Active("")) == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestWS_ResyNotConfigured(t *testing.T) {
	f := newFixture(t, func(s *Server) {
		s.ResyErr = errors.New("RESY_API_KEY and RESY_AUTH_TOKEN must be set in .env")
	})
	c := f.dial(t)
	fr := readFrame(t, c)
	require.Equal(t, notify.FrameBotMessage, fr.Type)
	require.Equal(t, "Error: RESY_API_KEY and RESY_AUTH_TOKEN must be set in .env", fr.Text)
}

// sendWhatsApp posts a webhook form carrying sig and returns the status.
func sendWhatsApp(t *testing.T, f *fixture, form url.Values, sig string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/whatsapp", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if sig != "" {
		req.Header.Set("X-Twilio-Signature", sig)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	return res.StatusCode
}

func postWhatsApp(t *testing.T, f *fixture, from, body string) {
	t.Helper()
	form := url.Values{"From": {from}, "Body": {body}}
	sig := f.web.Twilio.Signature(f.srv.URL+"/whatsapp", form)
	require.Equal(t, http.StatusOK, sendWhatsApp(t, f, form, sig))
}

func TestWhatsApp_WatchAndStop(t *testing.T) {
	f := newFixture(t, nil)
	from := "whatsapp:+15551234567"

	postWhatsApp(t, f, from, "")
	require.Empty(t, f.tw.bodies())

	postWhatsApp(t, f, from, "stop watching")
	require.Equal(t, []string{"No active watches to cancel."}, f.tw.bodies())

	postWhatsApp(t, f, from, "watch 418 2026-03-08 2 19:00 Lilia")
	require.Eventually(t, func() bool { return len(f.tw.bodies()) == 3 }, 2*time.Second, 5*time.Millisecond)

	bodies := f.tw.bodies()
	require.Contains(t, bodies, waStartedText)
	var match string
	for _, b := range bodies {
		if strings.Contains(b, "Match:") {
			match = b
		}
	}
	require.Contains(t, match, "\n\nMatch: Lilia on 2026-03-08 at 2026-03-08 19:00:00 for 2. Reply 'book it' to confirm.")

	// another sender's stop does not touch this watch
	postWhatsApp(t, f, "whatsapp:+15550009999", "cancel watch")
	require.Len(t, f.sup.Active("wa:"+from), 1)
	// the idle sender is not kept
	require.Equal(t, 1, f.web.waSessionCount())

	postWhatsApp(t, f, from, "Stop Watching")
	require.Equal(t, "All watches cancelled.", f.tw.bodies()[len(f.tw.bodies())-1])
	require.Empty(t, f.sup.Active("wa:"+from))
	// the delivered match still waits for "book it"
	require.Equal(t, 1, f.web.waSessionCount())
}

func TestWhatsApp_RejectsUnsignedRequests(t *testing.T) {
	f := newFixture(t, nil)
	form := url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"watch 418 2026-03-08 2 19:00 Lilia"}}

	require.Equal(t, http.StatusForbidden, sendWhatsApp(t, f, form, ""))
	require.Equal(t, http.StatusForbidden, sendWhatsApp(t, f, form, "bm90LWEtc2lnbmF0dXJl"))

	other := &notify.Twilio{AuthToken: "someone-else"}
	require.Equal(t, http.StatusForbidden, sendWhatsApp(t, f, form, other.Signature(f.srv.URL+"/whatsapp", form)))

	require.Empty(t, f.tw.bodies())
	require.Empty(t, f.sup.Active(""))
	require.Zero(t, f.web.waSessionCount())
}

func TestWhatsApp_SignatureUsesBaseURL(t *testing.T) {
	f := newFixture(t, func(s *Server) { s.BaseURL = "https://watch.example.com/" })
	form := url.Values{"From": {"+15551234567"}, "Body": {"help"}}

	require.Equal(t, http.StatusForbidden, sendWhatsApp(t, f, form, f.web.Twilio.Signature(f.srv.URL+"/whatsapp", form)))
	require.Equal(t, http.StatusOK, sendWhatsApp(t, f, form, f.web.Twilio.Signature("https://watch.example.com/whatsapp", form)))
	require.Equal(t, []string{session.HelpText}, f.tw.bodies())
}

func TestWhatsApp_HelpReply(t *testing.T) {
	f := newFixture(t, nil)
	postWhatsApp(t, f, "+15551234567", "help")
	require.Equal(t, []string{session.HelpText}, f.tw.bodies())
	require.Equal(t, "whatsapp:+15551234567", f.tw.msgs[0].Get("To"))
	require.Zero(t, f.web.waSessionCount())
}
