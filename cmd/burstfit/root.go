package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kacperjurak/burstfit/internal/logger"
	"github.com/kacperjurak/burstfit/pkg/config"
)

// Version is set at build time
var Version = "0.1.0"

// options holds the persistent flags shared by every sub-command
type options struct {
	configPath string
	output     string
	force      bool
	yes        bool
	snapshot   bool
	plot       bool
	verbose    bool
	method     string
	threads    uint
	failFast   bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "burstfit",
		Short: "Fit per-pulse amplitudes of pump-probe burst traces",
		Long: `burstfit recovers one amplitude per laser pulse from oscilloscope traces
recorded during a plasma burst. Pulse shape and burst timing are fixed by the
configuration; only the amplitudes are fitted, by linear least squares.

Commands:
  single  - Fit one trace file
  batch   - Fit every trace listed in a manifest
  load    - Inspect or re-plot a saved snapshot

Example:
  burstfit single C1pump00000.csv 2.1e-8 24 pump
  burstfit batch manifest.txt data/ 24 -t 2.1e-8 -o results
  burstfit batch manifest.txt data/ 24 -m --snapshot -p
  burstfit load results/fit-snapshot.json -t C1pump00000 -p -o replot`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Config file (default ./burstfit.yaml)")
	flags.StringVarP(&opts.output, "output", "o", "output", "Output directory")
	flags.BoolVarP(&opts.force, "force", "f", false, "Allow writing into a non-empty output directory")
	flags.BoolVar(&opts.yes, "yes", false, "Do not ask before overwriting with --force")
	flags.BoolVar(&opts.snapshot, "snapshot", false, "Save a snapshot of the run for later inspection")
	flags.BoolVarP(&opts.plot, "plot", "p", false, "Save diagnostic plots for every fitted trace")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&opts.method, "method", "qr", "Solver: qr, svd or lm")
	flags.UintVar(&opts.threads, "threads", 5, "Number of traces fitted concurrently")
	flags.BoolVar(&opts.failFast, "fail-fast", false, "Abort the batch at the first failing trace")

	root.AddCommand(newSingleCmd(opts))
	root.AddCommand(newBatchCmd(opts))
	root.AddCommand(newLoadCmd(opts))
	return root
}

// setup loads the configuration, applies explicitly set flags on top of it
// and builds the logger. The returned cleanup flushes the logger.
func (o *options) setup(cmd *cobra.Command) (*config.Config, *zap.Logger, func(), error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.OutputPath = o.output
	}
	if flags.Changed("method") {
		cfg.Fit.Method = o.method
	}
	if flags.Changed("threads") {
		cfg.Threads = o.threads
	}
	if flags.Changed("fail-fast") {
		cfg.FailFast = o.failFast
	}
	cfg.Overwrite = o.force
	cfg.AssumeYes = o.yes
	cfg.Snapshot = o.snapshot
	cfg.Plot = o.plot
	cfg.Verbose = o.verbose
	if cfg.Verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	log, cleanup, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, nil, err
	}

	if cfg.Overwrite && !cfg.AssumeYes {
		ok, err := confirmOverwrite(cmd.InOrStdin(), cmd.ErrOrStderr(), cfg.OutputPath)
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		if !ok {
			cleanup()
			return nil, nil, nil, fmt.Errorf("overwrite of %s not confirmed", cfg.OutputPath)
		}
	}
	return cfg, log, cleanup, nil
}

// confirmOverwrite asks before --force replaces files in a directory that
// already has content. Missing or empty directories need no confirmation.
func confirmOverwrite(in io.Reader, out io.Writer, dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) == 0 {
		return true, nil
	}

	fmt.Fprintf(out, "%s already contains %d entries; files may be overwritten. Continue? [y/N] ", dir, len(entries))
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
