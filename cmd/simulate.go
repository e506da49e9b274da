package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/resy-watch/internal/notify"
	"github.com/example/resy-watch/internal/simulate"
	"github.com/example/resy-watch/internal/supervisor"
	"github.com/example/resy-watch/internal/watch"
	"github.com/example/resy-watch/internal/watchlog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newSimulateCmd(a *app) *cobra.Command {
	var (
		rf        requestFlags
		seed      uint64
		interval  time.Duration
		autoBook  bool
		openRate  float64
		errorRate float64
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a watch against a fake Resy with random openings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rf.date == "" {
				rf.date = time.Now().AddDate(0, 0, 1).Format("2006-01-02")
			}
			req, err := rf.request()
			if err != nil {
				return err
			}
			if seed == 0 {
				seed = uint64(time.Now().UnixNano())
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger := log.Logger
			p := simulate.New(seed)
			p.OpenRate = openRate
			p.ErrorRate = errorRate

			wlog := watchlog.New(watchlog.NewMemoryStore())
			engine := &watch.Engine{
				Availability:    p,
				Booking:         p,
				Log:             wlog,
				Interval:        interval,
				Policy:          watch.PolicyNotify,
				PollImmediately: true,
				Logger:          logger,
			}
			if autoBook {
				engine.Policy = watch.PolicyAutoBook
			}
			sup := supervisor.New(engine, logger)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Simulating %s on %s (seed %d), polling every %s. Ctrl+C to stop.\n", req.DisplayName(), req.Date, seed, interval)
			task, err := sup.Start("cli", req, notify.NewConsole(out))
			if err != nil {
				return err
			}

			select {
			case <-ctx.Done():
				sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer scancel()
				if err := sup.Shutdown(sctx); err != nil {
					return err
				}
			case <-task.Done():
			}
			res, _ := task.Result()
			if err := reportResult(cmd, res); err != nil {
				return err
			}

			entries, err := wlog.Entries(context.Background())
			if err != nil {
				return err
			}
			return watchlog.WriteText(out, entries)
		},
	}

	cmd.Flags().Int64Var(&rf.venueID, "venue-id", 1, "venue id to report")
	cmd.Flags().StringVar(&rf.venueName, "venue-name", "Simulated Bistro", "venue name to report")
	cmd.Flags().IntVar(&rf.partySize, "party-size", 2, "number of guests")
	cmd.Flags().StringVar(&rf.date, "date", "", "reservation date (default tomorrow)")
	cmd.Flags().StringVar(&rf.times, "times", "19:00,19:30,20:00", "preferred times in priority order")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed (0 picks one)")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval")
	cmd.Flags().BoolVar(&autoBook, "auto-book", true, "book the first match and stop")
	cmd.Flags().Float64Var(&openRate, "open-rate", 0.2, "chance each time is open on a poll")
	cmd.Flags().Float64Var(&errorRate, "error-rate", 0.1, "chance a poll fails")
	return cmd
}
