package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var term string
	cmd := &cobra.Command{
		Use:   "check SUBJECT CATALOG [SECTION]",
		Short: "Show live seat availability for a course",
		Example: `  seatwatch check CS 135
  seatwatch check MATH 137 001 --term 1249`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			section := ""
			if len(args) == 3 {
				section = args[2]
			}
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			svc := a.Availability()
			resolved, err := svc.ResolveTerm(ctx, term)
			if err != nil {
				return err
			}
			views, err := svc.CheckAvailability(ctx, resolved, args[0], args[1], section)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Term %s\n", resolved)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SECTION\tTYPE\tCLASS\tENROLLED\tAVAILABLE\tSTATUS\tTIME\tLOCATION")
			for _, v := range views {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d/%d\t%d\t%s\t%s\t%s\n",
					v.Section, v.Component, v.ClassNumber, v.Enrolled, v.Capacity, v.Available, v.Status, v.Time, v.Location)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&term, "term", "", "term code (default: current term)")
	return cmd
}
