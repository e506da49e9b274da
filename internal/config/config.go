package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/joho/godotenv"
)

// Log backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

type Config struct {
	ListenAddr string
	BaseURL    string

	// resy
	ResyAPIKey      string
	ResyAuthToken   string
	PollInterval    time.Duration
	ProviderTimeout time.Duration

	// reservation log
	LogBackend  string
	LogPath     string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string
	LockTTL     time.Duration

	// whatsapp
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFromNumber  string
	NotifyPhoneNumber string

	// web ui
	WebUsername       string
	WebPasswordBcrypt string
	CookieHashKey     []byte
	CookieBlockKey    []byte

	LogLevel  string
	LogFormat string
}

// Load reads a .env file if one exists, then the environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Config{
		ListenAddr:        getenv("LISTEN_ADDR", ":8080"),
		BaseURL:           getenv("BASE_URL", "http://localhost:8080"),
		ResyAPIKey:        os.Getenv("RESY_API_KEY"),
		ResyAuthToken:     os.Getenv("RESY_AUTH_TOKEN"),
		LogBackend:        strings.ToLower(getenv("LOG_BACKEND", BackendFile)),
		LogPath:           getenv("LOG_PATH", "reservations_log.json"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		SQLitePath:        getenv("SQLITE_PATH", "reservations_log.db"),
		RedisURL:          os.Getenv("REDIS_URL"),
		TwilioAccountSID:  os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:  os.Getenv("TWILIO_FROM_NUMBER"),
		NotifyPhoneNumber: os.Getenv("NOTIFY_PHONE_NUMBER"),
		WebUsername:       os.Getenv("WEB_USERNAME"),
		WebPasswordBcrypt: os.Getenv("WEB_PASSWORD_BCRYPT"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		LogFormat:         getenv("LOG_FORMAT", "console"),
	}

	var err error
	if cfg.PollInterval, err = getSeconds("WATCH_POLL_SECONDS", 60*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PollInterval <= 0 {
		return Config{}, fmt.Errorf("invalid WATCH_POLL_SECONDS: must be positive")
	}
	if cfg.ProviderTimeout, err = getSeconds("PROVIDER_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.LockTTL, err = getSeconds("LOCK_TTL", 5*time.Second); err != nil {
		return Config{}, err
	}

	switch cfg.LogBackend {
	case BackendFile, BackendSQLite, BackendMemory:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("LOG_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return Config{}, fmt.Errorf("invalid LOG_BACKEND %q (want file, postgres, sqlite or memory)", cfg.LogBackend)
	}

	if cfg.CookieHashKey, err = cookieKey("COOKIE_HASH_KEY", 32); err != nil {
		return Config{}, err
	}
	if cfg.CookieBlockKey, err = cookieKey("COOKIE_BLOCK_KEY", 32); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RequireResy fails when the Resy credentials are missing.
func (c Config) RequireResy() error {
	if c.ResyAPIKey == "" || c.ResyAuthToken == "" {
		return fmt.Errorf("RESY_API_KEY and RESY_AUTH_TOKEN must be set in .env")
	}
	return nil
}

// cookieKey decodes a base64 key, or generates one for this process when
// unset. Sessions then do not survive a restart.
func cookieKey(name string, size int) ([]byte, error) {
	v := os.Getenv(name)
	if v == "" {
		return securecookie.GenerateRandomKey(size), nil
	}
	b, err := decodeB64(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	switch len(b) {
	case 16, 24, 32, 64:
	default:
		return nil, fmt.Errorf("%s: got %d bytes, want 16, 24, 32 or 64", name, len(b))
	}
	return b, nil
}

func decodeB64(s string) ([]byte, error) {
	if b, err := os.ReadFile(s); err == nil {
		// allow pointing to a file path for k8s secret mounts
		s = string(b)
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}

// getSeconds accepts a bare number of seconds or a Go duration.
func getSeconds(k string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("invalid %s: negative", k)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return d, nil
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
