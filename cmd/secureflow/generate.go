package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hed1ad/secureflow/pkg/io/csv"
)

type generateOptions struct {
	pipeline pipelineFlags
	out      string
	score    bool
}

func newGenerateCommand(a *app) *cobra.Command {
	var opts generateOptions

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic traffic batch as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.pipeline.apply(cmd, &a.cfg); err != nil {
				return err
			}

			gc := a.cfg.SecureFlow.Generator
			batch, err := a.newGenerator().Generate(gc.SampleCount, gc.AnomalyCount)
			if err != nil {
				return err
			}
			if opts.score {
				if _, err := a.newEngine().Score(cmd.Context(), batch); err != nil {
					return err
				}
			}

			// Hide Close so stdout stays open.
			var w io.Writer = struct{ io.Writer }{cmd.OutOrStdout()}
			if opts.out != "" {
				f, err := os.Create(opts.out)
				if err != nil {
					return err
				}
				w = f
			}
			if err := writeBatch(csv.NewWriter(w), batch); err != nil {
				return err
			}

			a.logger.InfoContext(cmd.Context(), "batch generated",
				"records", batch.Len(),
				"scored", batch.Scored,
				"threats", batch.Threats(),
			)
			return nil
		},
	}

	opts.pipeline.register(cmd)
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&opts.score, "score", false, "label the batch before writing")

	return cmd
}
