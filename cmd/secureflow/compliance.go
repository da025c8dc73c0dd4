package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hed1ad/secureflow/pkg/compliance"
)

func newComplianceCommand(a *app) *cobra.Command {
	var report string

	cmd := &cobra.Command{
		Use:   "compliance",
		Short: "Show the compliance checklist or render a report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			checks := compliance.Checks()

			if report == "" {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				for _, c := range checks {
					fmt.Fprintf(tw, "%s\t%s\n", c.Name, c.Status())
				}
				return tw.Flush()
			}

			rt, err := compliance.ParseReportType(report)
			if err != nil {
				return fmt.Errorf("%w (available: %q)", err, compliance.ReportTypes)
			}
			text, err := compliance.Render(rt, checks, a.now())
			if err != nil {
				return err
			}
			_, err = out.Write(text)
			return err
		},
	}

	cmd.Flags().StringVarP(&report, "report", "r", "", "report type to render")
	return cmd
}
