package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"seatwatch/internal/availability"
)

func newSubscribeCmd(opts *rootOptions) *cobra.Command {
	var term string
	cmd := &cobra.Command{
		Use:   "subscribe EMAIL SUBJECT CATALOG SECTION",
		Short: "Register an email for a one-time open-seat notification",
		Long: `Register an email for a one-time open-seat notification.

The subscription is written straight to storage, which a running
"seatwatch run" picks up on its next poll cycle. That needs sqlite storage;
with the file or memory driver, use POST /api/v1/subscriptions on the
running daemon instead.`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			if !a.SharedStorage() {
				return fmt.Errorf("storage driver %q cannot be shared with a running daemon; use sqlite storage or POST /api/v1/subscriptions", a.Config().Storage.Driver)
			}

			ctx := cmd.Context()
			svc := a.Availability()
			resolved, err := svc.ResolveTerm(ctx, term)
			if err != nil {
				return err
			}
			res, err := svc.Subscribe(ctx, args[0], resolved, args[1], args[2], args[3])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch res.Outcome {
			case availability.Created:
				fmt.Fprintf(out, "subscribed %s to %s (id %s)\n", res.Subscription.Email, res.Subscription.Key, res.Subscription.ID)
			case availability.Duplicate:
				fmt.Fprintln(out, "already subscribed")
			default:
				parts := make([]string, 0, len(res.Problems))
				for _, p := range res.Problems {
					parts = append(parts, p.Field+": "+p.Reason)
				}
				return fmt.Errorf("invalid request: %s", strings.Join(parts, "; "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&term, "term", "", "term code (default: current term)")
	return cmd
}
