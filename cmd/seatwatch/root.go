package main

import (
	"os"

	"github.com/spf13/cobra"

	"seatwatch/internal/app"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "seatwatch",
		Short: "Watch University of Waterloo class sections for open seats",
		Long: `seatwatch polls the UWaterloo Open Data API for the sections people have
subscribed to and notifies each subscriber once when a full section gains
an open seat.

The API key is read from the config file or UWATERLOO_API_KEY.`,
		Example: `  # Run the watcher (poll loop, notifier, HTTP API)
  seatwatch run --config /etc/seatwatch/seatwatch.yaml

  # Show live availability for CS 135 in the current term
  seatwatch check CS 135

  # Subscribe to section 001
  seatwatch subscribe you@uwaterloo.ca CS 135 001 --term 1249`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("SEATWATCH_CONFIG"),
		"path to config file (.json, .yaml); defaults and environment only when empty")
	cmd.SuggestionsMinimumDistance = 2

	cmd.AddCommand(
		newRunCmd(opts),
		newCheckCmd(opts),
		newSubscribeCmd(opts),
		newTermsCmd(opts),
	)
	return cmd
}

// open builds the app for one-shot commands. The caller must Close it.
func (o *rootOptions) open() (*app.App, error) {
	return app.New(o.configPath)
}
