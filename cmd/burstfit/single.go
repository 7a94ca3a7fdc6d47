package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kacperjurak/burstfit"
	"github.com/kacperjurak/burstfit/pkg/batch"
	"github.com/kacperjurak/burstfit/pkg/trace"
)

func newSingleCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "single <trace_file> <t0> <n_pulses> <trace_type>",
		Short: "Fit the pulse amplitudes of one trace",
		Long: `Fit the pulse amplitudes of one LeCroy CSV trace.

t0 is the burst start in seconds, trace_type one of PUMP, REFLECTED or
TRANSMITTED (case-insensitive). The amplitudes are written to
<output>/<trace>-amplitudes.csv.`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			t0, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return usageError{fmt.Errorf("invalid t0 %q", args[1])}
			}
			pulses, err := parsePulses(args[2])
			if err != nil {
				return err
			}
			tt, err := burstfit.NormalizeTraceType(args[3])
			if err != nil {
				return usageError{err}
			}

			cfg, log, cleanup, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			runner := batch.NewRunner(cfg, trace.NewLeCroyReader(), log)
			report, err := runner.RunSingle(cmd.Context(), batch.SingleRequest{
				Path:   args[0],
				Type:   tt,
				T0:     t0,
				Pulses: pulses,
			})
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func parsePulses(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, usageError{fmt.Errorf("n_pulses must be a positive integer, got %q", s)}
	}
	return n, nil
}
