package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/resy-watch/internal/auth"
	"github.com/example/resy-watch/internal/notify"
	"github.com/example/resy-watch/internal/session"
	"github.com/example/resy-watch/internal/supervisor"
	"github.com/example/resy-watch/internal/watch"
	"github.com/example/resy-watch/internal/web"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServerCmd(a *app) *cobra.Command {
	var shutdownTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the web UI, websocket and WhatsApp endpoints and their watches",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			logger := log.Logger

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			wlog, closeLog, err := openLog(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeLog()

			resyErr := cfg.RequireResy()
			if resyErr != nil {
				logger.Warn().Err(resyErr).Msg("resy credentials missing; sessions will report the error")
			}
			rc := newResy(cfg)

			engine := &watch.Engine{
				Availability: rc,
				Booking:      rc,
				Log:          wlog,
				Interval:     cfg.PollInterval,
				CallTimeout:  cfg.ProviderTimeout,
				Policy:       watch.PolicyNotify,
				Logger:       logger,
			}
			sup := supervisor.New(engine, logger)
			booker := &watch.Booker{Availability: rc, Booking: rc, Log: wlog}

			srv := &web.Server{
				Auth:       auth.NewStore(cfg.WebUsername, cfg.WebPasswordBcrypt, cfg.CookieHashKey, cfg.CookieBlockKey),
				Log:        wlog,
				Supervisor: sup,
				Twilio: &notify.Twilio{
					AccountSID: cfg.TwilioAccountSID,
					AuthToken:  cfg.TwilioAuthToken,
					From:       cfg.TwilioFromNumber,
					DefaultTo:  cfg.NotifyPhoneNumber,
					Logger:     logger,
				},
				NewProcessor: func() session.Processor {
					return &session.CommandProcessor{Venues: rc, Slots: rc, Booker: booker, Log: wlog}
				},
				ResyErr: resyErr,
				BaseURL: cfg.BaseURL,
				Logger:  logger,
			}
			if !srv.Auth.Enabled() {
				logger.Warn().Msg("WEB_USERNAME/WEB_PASSWORD_BCRYPT unset; web UI is open")
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return web.Start(gctx, cfg.ListenAddr, srv.Routes(), logger)
			})
			g.Go(func() error {
				<-gctx.Done()
				sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer scancel()
				if err := sup.Shutdown(sctx); err != nil {
					logger.Warn().Err(err).Msg("watches did not stop in time")
				}
				return nil
			})
			return g.Wait()
		},
	}

	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 15*time.Second, "how long to wait for watches to record their stop")
	return cmd
}
