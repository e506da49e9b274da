package cmd

import (
	"fmt"
	"os"

	"github.com/example/resy-watch/internal/config"
	"github.com/example/resy-watch/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

// noConfig marks commands that run without loading the environment.
const noConfig = "no-config"

// app carries what every subcommand needs once the root has loaded it.
type app struct {
	cfg     config.Config
	envFile string
}

func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "resywatch",
		Short:         "Watch Resy for cancellations and notify or book when a preferred time opens",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[noConfig] == "true" {
				return nil
			}
			var files []string
			if a.envFile != "" {
				if _, err := os.Stat(a.envFile); err != nil {
					return err
				}
				files = append(files, a.envFile)
			}
			cfg, err := config.Load(files...)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
			if err != nil {
				return err
			}
			log.Logger = logger
			a.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "dotenv file to load (default .env)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newHashPasswordCmd())
	root.AddCommand(newServerCmd(a))
	root.AddCommand(newWatchCmd(a))
	root.AddCommand(newSearchCmd(a))
	root.AddCommand(newSlotsCmd(a))
	root.AddCommand(newBookCmd(a))
	root.AddCommand(newLogCmd(a))
	root.AddCommand(newStopCmd(a))
	root.AddCommand(newPingCmd(a))
	root.AddCommand(newSimulateCmd(a))

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
