package cmd

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/example/resy-watch/internal/config"
	"github.com/example/resy-watch/internal/db"
	"github.com/example/resy-watch/internal/migrate"
	"github.com/example/resy-watch/internal/redislock"
	"github.com/example/resy-watch/internal/resy"
	"github.com/example/resy-watch/internal/watch"
	"github.com/example/resy-watch/internal/watchlog"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// openLog builds the reservation log for the configured backend. The
// returned func releases whatever the backend holds open.
func openLog(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*watchlog.Log, func(), error) {
	var (
		store   watchlog.Store
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.LogBackend {
	case config.BackendMemory:
		store = watchlog.NewMemoryStore()
	case config.BackendSQLite:
		s, err := watchlog.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = s.Close() })
		store = s
	case config.BackendPostgres:
		d, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, d.Close)
		if err := d.Ping(ctx); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("db ping: %w", err)
		}
		if err := migrate.Up(ctx, d, logger); err != nil {
			closeAll()
			return nil, nil, err
		}
		store = watchlog.NewPGStore(d)
	default:
		store = watchlog.NewFileStore(cfg.LogPath)
	}

	var opts []watchlog.Option
	if cfg.RedisURL != "" {
		rdb, err := redislock.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = rdb.Close() })
		opts = append(opts, watchlog.WithLocker(redislock.New(rdb, cfg.LockTTL)))
	}

	logger.Debug().Str("component", "watchlog").Str("backend", cfg.LogBackend).Bool("locked", cfg.RedisURL != "").Msg("reservation log ready")
	return watchlog.New(store, opts...), closeAll, nil
}

func newResy(cfg config.Config) *resy.Client {
	hc := &http.Client{Timeout: cfg.ProviderTimeout}
	return resy.New(resy.Credentials{APIKey: cfg.ResyAPIKey, AuthToken: cfg.ResyAuthToken}, resy.WithHTTPClient(hc))
}

// requestFlags are the flags every command naming a venue, date and party
// shares.
type requestFlags struct {
	venueID   int64
	venueName string
	partySize int
	date      string
	times     string
}

func (f *requestFlags) register(cmd *cobra.Command, withTimes bool) {
	cmd.Flags().Int64Var(&f.venueID, "venue-id", 0, "Resy venue id")
	cmd.Flags().IntVar(&f.partySize, "party-size", 2, "number of guests")
	cmd.Flags().StringVar(&f.date, "date", "", "reservation date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("venue-id")
	_ = cmd.MarkFlagRequired("date")
	if withTimes {
		cmd.Flags().StringVar(&f.venueName, "venue-name", "", "display name for notifications and the log")
		cmd.Flags().StringVar(&f.times, "times", "", "preferred times in priority order (HH:MM,HH:MM)")
		_ = cmd.MarkFlagRequired("times")
	}
}

func (f *requestFlags) request() (watch.Request, error) {
	req := watch.Request{
		VenueID:   f.venueID,
		VenueName: f.venueName,
		PartySize: f.partySize,
		Date:      f.date,
	}
	for _, t := range strings.Split(f.times, ",") {
		if t = strings.TrimSpace(t); t != "" {
			req.PreferredTimes = append(req.PreferredTimes, t)
		}
	}
	return req, req.Validate()
}
