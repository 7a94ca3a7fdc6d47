package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kacperjurak/burstfit/pkg/batch"
	"github.com/kacperjurak/burstfit/pkg/output"
	"github.com/kacperjurak/burstfit/pkg/snapshot"
)

func newLoadCmd(opts *options) *cobra.Command {
	var traceName string

	cmd := &cobra.Command{
		Use:   "load <snapshot> [-t trace] [-p]",
		Short: "Inspect a saved snapshot without re-fitting",
		Long: `Print the fits stored in a snapshot written with --snapshot. With -p the
diagnostic plots are rendered again into the output directory; -t limits
both to one trace.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := snapshot.ReadFile(args[0])
			if err != nil {
				return err
			}

			fits := rec.Fits
			if traceName != "" {
				fit, ok := rec.Find(traceName)
				if !ok {
					return usageError{fmt.Errorf("snapshot %s has no trace %q", args[0], traceName)}
				}
				fits = []snapshot.Fit{*fit}
			}

			printSnapshot(cmd.OutOrStdout(), rec, fits)
			if !opts.plot {
				return nil
			}

			cfg, log, cleanup, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			target, err := output.Open(cfg.OutputPath, cfg.Overwrite)
			if err != nil {
				return err
			}
			defer target.Close()

			for i := range fits {
				fit := &fits[i]
				res := fit.Result()
				if res == nil || fit.State != "completed" {
					continue
				}
				model, err := fit.Model()
				if err != nil {
					return err
				}
				files, err := batch.WritePlots(target, fit.Name, fit.Trace(), model, res)
				if err != nil {
					return err
				}
				log.Info("plots written", zap.String("trace", fit.Name), zap.Int("files", len(files)))
				for _, f := range files {
					fmt.Fprintln(cmd.OutOrStdout(), f)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&traceName, "trace", "t", "", "Only show this trace")
	return cmd
}

func printReport(w io.Writer, report *batch.Report) {
	fmt.Fprintf(w, "run %s finished in %s\n", report.RunID, report.Duration.Round(time.Millisecond))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRACE\tTYPE\tSTATE\tR²\tNOTE")
	for _, r := range report.Batch.Results {
		r2, note := "-", ""
		if r.Fit != nil {
			r2 = fmt.Sprintf("%.5f", r.Fit.RSquared)
		}
		switch {
		case r.Err != nil:
			note = r.Err.Error()
		case len(r.Warnings) > 0:
			note = strings.Join(r.Warnings, "; ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Job.Name, r.Job.Type, r.State, r2, note)
	}
	tw.Flush()
	for _, f := range report.Files {
		fmt.Fprintln(w, f)
	}
}

func printSnapshot(w io.Writer, rec *snapshot.Record, fits []snapshot.Fit) {
	fmt.Fprintf(w, "run %s (%s, method %s)\n", rec.RunID, rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.Method)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRACE\tTYPE\tSTATE\tPULSES\tR²\tAMPLITUDES")
	for i := range fits {
		f := &fits[i]
		r2, amps := "-", "-"
		if res := f.Result(); res != nil {
			r2 = fmt.Sprintf("%.5f", res.RSquared)
			parts := make([]string, len(res.Amplitudes))
			for j, a := range res.Amplitudes {
				parts[j] = fmt.Sprintf("%.4g", a)
			}
			amps = strings.Join(parts, " ")
		}
		if f.Error != "" {
			amps = f.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", f.Name, f.Type, f.State, f.Burst.Pulses, r2, amps)
	}
	tw.Flush()
}
