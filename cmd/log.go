package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/resy-watch/internal/watchlog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newLogCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show watches and confirmed reservations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			wlog, closeLog, err := openLog(ctx, a.cfg, log.Logger)
			if err != nil {
				return err
			}
			defer closeLog()

			entries, err := wlog.Entries(ctx)
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []watchlog.Entry{}
			}
			out := cmd.OutOrStdout()
			switch format {
			case "text":
				return watchlog.WriteText(out, entries)
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			case "yaml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(entries); err != nil {
					return err
				}
				return enc.Close()
			default:
				return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json or yaml")
	return cmd
}

// newStopCmd closes out a watching entry whose process is gone, e.g. after
// a crash.
func newStopCmd(a *app) *cobra.Command {
	var (
		venueID int64
		date    string
	)
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Mark the oldest watching entry for a venue and date as stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			wlog, closeLog, err := openLog(ctx, a.cfg, log.Logger)
			if err != nil {
				return err
			}
			defer closeLog()

			found, err := wlog.MarkStopped(ctx, venueID, date, time.Now())
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("venue %d on %s: %w", venueID, date, watchlog.ErrNotFound)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped watch for venue %d on %s.\n", venueID, date)
			return nil
		},
	}
	cmd.Flags().Int64Var(&venueID, "venue-id", 0, "Resy venue id")
	cmd.Flags().StringVar(&date, "date", "", "reservation date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("venue-id")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}
