package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Store checks the single operator account and keeps the web session in a
// signed, encrypted cookie. A Store with no operator configured lets every
// request through.
type Store struct {
	sc           *securecookie.SecureCookie
	username     string
	passwordHash string
}

type ctxKey string

const usernameKey ctxKey = "username"

const sessionTTL = 14 * 24 * time.Hour

func NewStore(username, passwordHash string, hashKey, blockKey []byte) *Store {
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(sessionTTL.Seconds()))
	return &Store{sc: sc, username: username, passwordHash: passwordHash}
}

// Enabled reports whether an operator account is configured.
func (s *Store) Enabled() bool {
	return s.username != "" && s.passwordHash != ""
}

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(hash, pw string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw))
	return err == nil
}

func (s *Store) Authenticate(username, password string) error {
	if !s.Enabled() {
		return ErrInvalidCredentials
	}
	// bcrypt runs even for an unknown username
	okPw := CheckPassword(s.passwordHash, password)
	if !secureEq(username, s.username) || !okPw {
		return ErrInvalidCredentials
	}
	return nil
}

type Session struct {
	Username string
}

const cookieName = "resywatch_session"

func (s *Store) SetSession(w http.ResponseWriter, r *http.Request, username string) error {
	val := map[string]string{"u": username, "v": "1"}
	encoded, err := s.sc.Encode(cookieName, val)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		MaxAge:   int(sessionTTL.Seconds()),
	})
	return nil
}

func (s *Store) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func (s *Store) GetSession(r *http.Request) (Session, bool) {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return Session{}, false
	}
	val := map[string]string{}
	if err := s.sc.Decode(cookieName, c.Value, &val); err != nil {
		return Session{}, false
	}
	u := val["u"]
	if u == "" || u != s.username {
		return Session{}, false
	}
	return Session{Username: u}, true
}

// RequireAuth redirects browsers to /login, and answers 401 for requests
// that cannot follow a redirect (websocket upgrades, API calls).
func (s *Store) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		sess, ok := s.GetSession(r)
		if !ok {
			if r.Method == http.MethodGet && r.Header.Get("Upgrade") == "" && r.Header.Get("Accept") != "application/json" {
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), usernameKey, sess.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func UsernameFromContext(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(usernameKey).(string)
	return u, ok
}

func secureEq(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
