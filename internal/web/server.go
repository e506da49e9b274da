package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/example/resy-watch/internal/auth"
	"github.com/example/resy-watch/internal/notify"
	"github.com/example/resy-watch/internal/session"
	"github.com/example/resy-watch/internal/supervisor"
	"github.com/example/resy-watch/internal/watchlog"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

//go:embed templates/*.html static/*
var fs embed.FS

const (
	wsStartedText = "Started watching for cancellations. I'll send updates here."
	waStartedText = "Started watching for cancellations. I'll message you with updates."
)

type Server struct {
	Auth       *auth.Store
	Log        *watchlog.Log
	Supervisor *supervisor.Supervisor
	Twilio     *notify.Twilio
	// NewProcessor builds the per-session command processor.
	NewProcessor func() session.Processor
	// ResyErr, when set, is reported to every new session instead of
	// serving it, e.g. missing credentials.
	ResyErr error

	BaseURL string
	Logger  zerolog.Logger

	upgrader websocket.Upgrader

	waMu       sync.Mutex
	waSessions map[string]*waSession
}

type tmplData struct {
	Title string
	User  string
	Flash string
}

func (s *Server) Routes() http.Handler {
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(s.Logger))

	r.Handle("/static/*", http.FileServer(http.FS(fs)))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Get("/login", s.handleLogin)
	r.Post("/login", s.handleLogin)
	r.Get("/logout", s.handleLogout)

	// Twilio calls this directly; it is checked by signature, not session.
	r.Post("/whatsapp", s.handleWhatsApp)

	r.Group(func(r chi.Router) {
		r.Use(s.Auth.RequireAuth)
		r.Get("/", s.handleHome)
		r.Get("/api/log", s.handleLog)
		r.Get("/ws", s.handleWS)
	})
	return r
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.BaseURL == "" {
		return true
	}
	return strings.EqualFold(strings.TrimRight(origin, "/"), strings.TrimRight(s.BaseURL, "/")) ||
		strings.EqualFold(origin, "http://"+r.Host) || strings.EqualFold(origin, "https://"+r.Host)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UsernameFromContext(r.Context())
	s.render(w, "templates/index.html", tmplData{Title: "Reservations", User: u})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.Auth.Enabled() {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	if r.Method == http.MethodGet {
		s.render(w, "templates/login.html", tmplData{Title: "Login"})
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	username := strings.TrimSpace(r.FormValue("username"))
	if err := s.Auth.Authenticate(username, r.FormValue("password")); err != nil {
		s.render(w, "templates/login.html", tmplData{Title: "Login", Flash: "Invalid username/password"})
		return
	}
	if err := s.Auth.SetSession(w, r, username); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Auth.ClearSession(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Log.Entries(r.Context())
	if err != nil {
		s.Logger.Error().Err(err).Msg("load reservation log")
		http.Error(w, "failed to load reservation log", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []watchlog.Entry{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(entries)
}

func (s *Server) render(w http.ResponseWriter, name string, data tmplData) {
	t, err := template.ParseFS(fs,
		"templates/base.html",
		name,
	)
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
	}
}

// Start serves h on addr until ctx is done, then drains in-flight requests.
func Start(ctx context.Context, addr string, h http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info().Str("addr", addr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
