package web

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/example/resy-watch/internal/session"
)

// waSession is one WhatsApp sender's processor. Requests from the same
// sender are handled one at a time.
type waSession struct {
	mu   sync.Mutex
	proc session.Processor
	refs int
}

// handleWhatsApp is the Twilio inbound-message webhook. Replies go out
// through the Twilio API, so a signed request always gets 200 with an
// empty body.
func (s *Server) handleWhatsApp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	if s.Twilio.Configured() && !s.Twilio.ValidSignature(s.webhookURL(r), r.PostForm, r.Header.Get("X-Twilio-Signature")) {
		s.Logger.Warn().Str("remote", r.RemoteAddr).Msg("whatsapp webhook: bad signature")
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}
	defer w.WriteHeader(http.StatusOK)

	body := strings.TrimSpace(r.PostForm.Get("Body"))
	from := r.PostForm.Get("From")
	if body == "" {
		return
	}
	ctx := r.Context()

	if s.ResyErr != nil {
		s.Twilio.Reply(ctx, from, s.ResyErr.Error())
		return
	}

	key := "wa:" + from
	ws := s.acquireWA(key)
	defer s.releaseWA(key, ws)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	d := &session.Dispatcher{
		Processor:  ws.proc,
		Supervisor: s.Supervisor,
		Session:    key,
		Reply: func(ctx context.Context, text string) error {
			s.Twilio.Reply(ctx, from, text)
			return nil
		},
		Notifier:    s.Twilio.To(from),
		StartedText: waStartedText,
		Logger:      s.Logger.With().Str("session", key).Logger(),
	}

	if session.IsStopCommand(body) {
		if err := d.Stop(ctx); err != nil {
			s.Logger.Warn().Err(err).Str("session", key).Msg("stop watches")
		}
		return
	}
	_ = d.HandleText(ctx, body)
}

// webhookURL rebuilds the URL Twilio signed. BASE_URL wins over the
// request host so a reverse proxy does not change it.
func (s *Server) webhookURL(r *http.Request) string {
	if s.BaseURL != "" {
		return strings.TrimRight(s.BaseURL, "/") + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// acquireWA returns the sender's session, creating it on first contact, so
// "book it" refers to that sender's last match.
func (s *Server) acquireWA(key string) *waSession {
	s.waMu.Lock()
	defer s.waMu.Unlock()
	if s.waSessions == nil {
		s.waSessions = map[string]*waSession{}
	}
	ws, ok := s.waSessions[key]
	if !ok {
		ws = &waSession{proc: s.NewProcessor()}
		s.waSessions[key] = ws
	}
	ws.refs++
	return ws
}

// releaseWA drops the sender's session once no request holds it, no watch
// runs for it and no match waits for "book it". A watch can only start
// while a request holds the session.
func (s *Server) releaseWA(key string, ws *waSession) {
	s.waMu.Lock()
	defer s.waMu.Unlock()
	ws.refs--
	if ws.refs > 0 || len(s.Supervisor.Active(key)) > 0 {
		return
	}
	if rec, ok := ws.proc.(session.MatchRecorder); ok && rec.Pending() {
		return
	}
	delete(s.waSessions, key)
}

func (s *Server) waSessionCount() int {
	s.waMu.Lock()
	defer s.waMu.Unlock()
	return len(s.waSessions)
}
