package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kacperjurak/burstfit/pkg/batch"
	"github.com/kacperjurak/burstfit/pkg/manifest"
	"github.com/kacperjurak/burstfit/pkg/trace"
)

func newBatchCmd(opts *options) *cobra.Command {
	var (
		t0           float64
		fromManifest bool
	)

	cmd := &cobra.Command{
		Use:   "batch <manifest> <data_dir> <n_pulses> [-t t0 | -m]",
		Short: "Fit every trace listed in a manifest",
		Long: `Fit every trace listed in a manifest file.

Each manifest line holds a filename (relative to data_dir), a trace type in
uppercase and optionally the burst start t0. Lines starting with # are
comments. Start times come either from -t, shared by all traces, or from the
manifest with -m; giving both or neither is an error.

Amplitudes of all fitted traces are written as columns of
<output>/trace-amplitudes.csv in manifest order. Traces that fail are left
out and reported in <output>/fit-summary.csv.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			pulses, err := parsePulses(args[2])
			if err != nil {
				return err
			}

			policy := manifest.StartTimePolicy{FromManifest: fromManifest}
			if cmd.Flags().Changed("t0") {
				policy.CommandLine = &t0
			}

			cfg, log, cleanup, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			runner := batch.NewRunner(cfg, trace.NewLeCroyReader(), log)
			report, err := runner.RunManifest(cmd.Context(), batch.ManifestRequest{
				Manifest: args[0],
				DataDir:  args[1],
				Pulses:   pulses,
				Policy:   policy,
			})
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			if failed := report.Batch.Failed(); len(failed) > 0 {
				return fmt.Errorf("%d of %d traces failed", len(failed), len(report.Batch.Results))
			}
			return nil
		},
	}

	cmd.Flags().Float64VarP(&t0, "t0", "t", 0, "Burst start time (s) shared by all traces")
	cmd.Flags().BoolVarP(&fromManifest, "manifest-t0", "m", false, "Read each burst start time from the manifest")
	return cmd
}
