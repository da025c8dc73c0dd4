package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hed1ad/secureflow/pkg/alerts"
	"github.com/hed1ad/secureflow/pkg/ingest"
	sfio "github.com/hed1ad/secureflow/pkg/io"
	"github.com/hed1ad/secureflow/pkg/io/csv"
	"github.com/hed1ad/secureflow/pkg/io/pcap"
	"github.com/hed1ad/secureflow/pkg/session"
	"github.com/hed1ad/secureflow/pkg/telemetry"
)

type runOptions struct {
	pipeline pipelineFlags
	input    string
	pcap     string
	out      string
	jsonOut  bool
}

func newRunCommand(a *app) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Score a batch once and print the alert feed",
		Long: "Score the synthetic batch, or an external CSV or pcap file, and print the\n" +
			"ingestion outcome, headline metrics and the most recent threats.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.input != "" && opts.pcap != "" {
				return fmt.Errorf("--input and --pcap are mutually exclusive")
			}
			if err := opts.pipeline.apply(cmd, &a.cfg); err != nil {
				return err
			}
			return runOnce(cmd, a, opts)
		},
	}

	opts.pipeline.register(cmd)
	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "", "CSV file with packet_size and latency_ms columns")
	f.StringVar(&opts.pcap, "pcap", "", "pcap or pcapng capture file")
	f.StringVarP(&opts.out, "out", "o", "", "write the scored batch as CSV")
	f.BoolVar(&opts.jsonOut, "json", false, "print JSON instead of text")

	return cmd
}

type runReport struct {
	Outcome ingest.Outcome         `json:"outcome"`
	Summary alerts.Summary         `json:"summary"`
	Alerts  []telemetry.AlertEntry `json:"alerts"`
}

func runOnce(cmd *cobra.Command, a *app, opts runOptions) error {
	ctx := cmd.Context()
	sess := session.New(a.sessionOptions(nil)...)
	defer sess.Close()

	src, err := readSource(opts)
	if err != nil {
		return err
	}

	batch, outcome, err := sess.Ingest(ctx, src)
	if err != nil {
		if outcome.Kind == ingest.Rejected {
			return fmt.Errorf("input rejected: %w", err)
		}
		return err
	}
	feed, err := sess.Alerts(ctx)
	if err != nil {
		return err
	}

	if opts.out != "" {
		if err := writeBatchFile(opts.out, batch); err != nil {
			return err
		}
	}

	report := runReport{Outcome: outcome, Summary: alerts.Summarize(batch), Alerts: feed}
	if opts.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(cmd.OutOrStdout(), report)
	return nil
}

// readSource checks that the input file exists and defers reading it to the
// ingestion gate, so malformed content is reported as a rejected outcome.
func readSource(opts runOptions) (ingest.Source, error) {
	var (
		path string
		open func(string) (sfio.TableReader, error)
	)
	switch {
	case opts.input != "":
		path, open = opts.input, func(name string) (sfio.TableReader, error) { return csv.Open(name) }
	case opts.pcap != "":
		path, open = opts.pcap, func(name string) (sfio.TableReader, error) { return pcap.Open(name) }
	default:
		return ingest.Synthetic{}, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	return ingest.Stream{Read: func() (*telemetry.Table, error) {
		reader, err := open(path)
		if err != nil {
			return nil, err
		}
		defer reader.Close()
		return reader.ReadTable()
	}}, nil
}

func writeBatchFile(path string, batch *telemetry.Batch) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return writeBatch(csv.NewWriter(f), batch)
}

func writeBatch(w sfio.BatchWriter, batch *telemetry.Batch) error {
	if err := w.WriteBatch(batch); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func printReport(w io.Writer, r runReport) {
	if r.Outcome.Notify() {
		fmt.Fprintf(w, "WARNING: %s\n\n", r.Outcome.Reason)
	}

	s := r.Summary
	fmt.Fprintf(w, "Records:        %d\n", s.Records)
	fmt.Fprintf(w, "Threats:        %d (%.1f%%)\n", s.Threats, 100*s.ThreatRatio)
	fmt.Fprintf(w, "Avg latency:    %.1f ms\n", s.AvgLatencyMs)
	fmt.Fprintf(w, "Avg packet:     %.0f bytes\n", s.AvgPacketSize)
	fmt.Fprintln(w)

	if len(r.Alerts) == 0 {
		fmt.Fprintln(w, "No active threats.")
		return
	}
	fmt.Fprintln(w, "Live threat feed")
	fmt.Fprintln(w, strings.Repeat("-", 32))
	for _, alert := range r.Alerts {
		fmt.Fprintln(w, alert.String())
	}
}
