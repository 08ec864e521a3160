package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newTermsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "terms",
		Short: "List academic terms known to the Open Data API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			terms, err := a.Upstream().Terms(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tNAME\tCURRENT")
			for _, t := range terms {
				cur := ""
				if t.IsCurrent {
					cur = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", t.Code(), t.Name, cur)
			}
			return w.Flush()
		},
	}
}
