package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hed1ad/secureflow/pkg/performance"
)

func newPerformanceCommand(a *app) *cobra.Command {
	var (
		hours   int
		seed    int64
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "performance",
		Short: "Show network KPIs and the predicted load forecast",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			report, err := performance.NewReport(a.now(), hours, rand.New(rand.NewSource(seed)))
			if err != nil {
				return err
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return printPerformance(cmd.OutOrStdout(), report)
		},
	}

	f := cmd.Flags()
	f.IntVar(&hours, "hours", performance.DefaultHours, "forecast horizon in hours")
	f.Int64Var(&seed, "seed", 0, "forecast seed (0 picks one from the clock)")
	f.BoolVar(&jsonOut, "json", false, "print JSON instead of text")

	return cmd
}

func printPerformance(w io.Writer, r performance.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, k := range r.KPIs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", k.Name, k.Value, k.Delta)
	}
	fmt.Fprintln(tw)

	fmt.Fprintf(tw, "Predicted load (critical above %.0f%%)\n", r.CriticalThreshold)
	for _, p := range r.Forecast {
		mark := ""
		if p.Critical() {
			mark = "CRITICAL"
		}
		fmt.Fprintf(tw, "%s\t%.1f%%\t%s\n", p.Time.Format("2006-01-02 15:04"), p.LoadPercent, mark)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	for _, rec := range r.Recommendations {
		fmt.Fprintf(w, "- %s\n", rec)
	}
	return nil
}
