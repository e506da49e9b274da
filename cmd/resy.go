package cmd

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/example/resy-watch/internal/watch"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newSearchCmd(a *app) *cobra.Command {
	var perPage int
	cmd := &cobra.Command{
		Use:   "search <restaurant name>",
		Short: "Find Resy venue ids by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireResy(); err != nil {
				return err
			}
			venues, err := newResy(a.cfg).SearchVenues(cmd.Context(), strings.Join(args, " "), perPage)
			if err != nil {
				return err
			}
			if len(venues) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No venues found.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tNEIGHBORHOOD\tLOCATION\tCUISINE")
			for _, v := range venues {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", v.ID, v.Name, v.Neighborhood, v.Location, strings.Join(v.Cuisine, ", "))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&perPage, "limit", 5, "maximum number of venues")
	return cmd
}

func newSlotsCmd(a *app) *cobra.Command {
	var rf requestFlags
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List open slots for a venue, date and party size",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireResy(); err != nil {
				return err
			}
			slots, err := newResy(a.cfg).FindSlots(cmd.Context(), rf.venueID, rf.partySize, rf.date)
			if err != nil {
				return err
			}
			if len(slots) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No availability on %s for %d.\n", rf.date, rf.partySize)
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "START\tTYPE\tCONFIG TOKEN")
			for _, s := range slots {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Start, s.Type, s.ConfigToken)
			}
			return tw.Flush()
		},
	}
	rf.register(cmd, false)
	return cmd
}

func newBookCmd(a *app) *cobra.Command {
	var rf requestFlags
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book the first preferred time that is open right now",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := rf.request()
			if err != nil {
				return err
			}
			if err := a.cfg.RequireResy(); err != nil {
				return err
			}
			ctx := cmd.Context()
			wlog, closeLog, err := openLog(ctx, a.cfg, log.Logger)
			if err != nil {
				return err
			}
			defer closeLog()

			rc := newResy(a.cfg)
			b := &watch.Booker{Availability: rc, Booking: rc, Log: wlog}
			m, token, err := b.BookPreferred(ctx, req)
			if errors.Is(err, watch.ErrNoMatch) {
				return fmt.Errorf("none of %s is available on %s", strings.Join(req.PreferredTimes, ", "), req.Date)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Booked %s at %s. Confirmation token: %s\n", req.DisplayName(), m.Time, token)
			return nil
		},
	}
	rf.register(cmd, true)
	return cmd
}

func newPingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the Resy credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireResy(); err != nil {
				return err
			}
			if err := newResy(a.cfg).Ping(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}
