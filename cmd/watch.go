package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/resy-watch/internal/notify"
	"github.com/example/resy-watch/internal/watch"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		rf       requestFlags
		autoBook bool
		confirm  bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll a venue until a preferred time opens, then book it (Ctrl+C stops)",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := rf.request()
			if err != nil {
				return err
			}
			cfg := a.cfg
			if err := cfg.RequireResy(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger := log.Logger.With().Str("session", "cli").Logger()
			wlog, closeLog, err := openLog(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeLog()

			rc := newResy(cfg)
			engine := &watch.Engine{
				Availability:    rc,
				Booking:         rc,
				Log:             wlog,
				Interval:        cfg.PollInterval,
				CallTimeout:     cfg.ProviderTimeout,
				Policy:          watch.PolicyNotify,
				PollImmediately: true,
				Logger:          logger,
			}
			if autoBook {
				engine.Policy = watch.PolicyAutoBook
			}
			if confirm {
				engine.Confirm = newLineConfirm(cmd.InOrStdin(), cmd.OutOrStdout()).Confirm
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Watching %s on %s for %d (%v), every %s. Ctrl+C to stop.\n",
				req.DisplayName(), req.Date, req.PartySize, req.PreferredTimes, engine.Interval)

			res := engine.Run(logger.WithContext(ctx), req, notify.NewConsole(out))
			return reportResult(cmd, res)
		},
	}

	rf.register(cmd, true)
	cmd.Flags().BoolVar(&autoBook, "auto-book", true, "book the first match and stop")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "ask before booking")
	return cmd
}

func reportResult(cmd *cobra.Command, res watch.Result) error {
	out := cmd.OutOrStdout()
	switch res.State {
	case watch.StateStopped:
		fmt.Fprintln(out, "Stopped watching.")
	case watch.StateBooked:
		fmt.Fprintf(out, "Booked. Confirmation token: %s\n", res.Confirmation)
	}
	if res.Err != nil {
		return fmt.Errorf("watch %s: %w", res.State, res.Err)
	}
	return nil
}
