package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kacperjurak/burstfit"
	"github.com/kacperjurak/burstfit/internal/processing"
	"github.com/kacperjurak/burstfit/internal/utils"
	"github.com/kacperjurak/burstfit/pkg/config"
	"github.com/kacperjurak/burstfit/pkg/manifest"
	"github.com/kacperjurak/burstfit/pkg/models"
	"github.com/kacperjurak/burstfit/pkg/output"
	"github.com/kacperjurak/burstfit/pkg/plotting"
	"github.com/kacperjurak/burstfit/pkg/profiling"
	"github.com/kacperjurak/burstfit/pkg/snapshot"
	"github.com/kacperjurak/burstfit/pkg/trace"
)

// ErrNothingFitted is returned when every job of a run failed.
var ErrNothingFitted = errors.New("no trace could be fitted")

// Runner drives a complete run: validate inputs, claim the output
// directory, fit, write artifacts.
type Runner struct {
	cfg    *config.Config
	reader trace.Reader
	log    *zap.Logger
}

func NewRunner(cfg *config.Config, reader trace.Reader, log *zap.Logger) *Runner {
	if reader == nil {
		reader = trace.NewLeCroyReader()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{cfg: cfg, reader: reader, log: log}
}

// ManifestRequest describes a batch run.
type ManifestRequest struct {
	Manifest string
	DataDir  string
	Pulses   int
	Policy   manifest.StartTimePolicy
}

// SingleRequest describes the fit of one trace file.
type SingleRequest struct {
	Path   string
	Type   burstfit.TraceType
	T0     float64
	Pulses int
}

// Report summarizes a finished run.
type Report struct {
	RunID    string
	Batch    *models.BatchResult
	Files    []string
	Duration time.Duration
}

// RunManifest fits every trace listed in the manifest. Configuration errors
// abort before the output directory is touched; a failing trace only loses
// its own column.
func (r *Runner) RunManifest(ctx context.Context, req ManifestRequest) (*Report, error) {
	entries, err := manifest.ParseFile(req.Manifest)
	if err != nil {
		return nil, err
	}
	jobs, err := manifest.ResolveStartTimes(entries, req.DataDir, req.Pulses, req.Policy)
	if err != nil {
		return nil, err
	}
	return r.run(ctx, jobs, output.AmplitudeTable, true)
}

// RunSingle fits one trace. Any failure of the fit fails the run.
func (r *Runner) RunSingle(ctx context.Context, req SingleRequest) (*Report, error) {
	if req.Pulses <= 0 {
		return nil, fmt.Errorf("%w: pulse count must be positive, got %d", burstfit.ErrInvalidConfig, req.Pulses)
	}
	name := strings.TrimSuffix(filepath.Base(req.Path), filepath.Ext(req.Path))
	job := models.TraceJob{
		Name:   name,
		Path:   req.Path,
		Type:   req.Type,
		T0:     req.T0,
		Pulses: req.Pulses,
	}
	return r.run(ctx, []models.TraceJob{job}, output.AmplitudeTableName(name), false)
}

func (r *Runner) run(ctx context.Context, jobs []models.TraceJob, table string, summary bool) (*Report, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	processor, err := processing.NewFitProcessor(r.reader, r.cfg, r.log)
	if err != nil {
		return nil, err
	}

	target, err := output.Open(r.cfg.OutputPath, r.cfg.Overwrite)
	if err != nil {
		return nil, err
	}

	report := &Report{RunID: utils.GenerateID()}
	log := r.log.With(zap.String("run", report.RunID))
	log.Info("run started", zap.Int("traces", len(jobs)), zap.String("output", target.Dir()))

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	profiling.NewMemoryProfiler(log, 5*time.Second).Start(ctx)

	start := time.Now()
	orch := NewOrchestrator(processor.Process, Options{
		Workers:  int(r.cfg.Threads),
		FailFast: r.cfg.FailFast || len(jobs) == 1,
		Logger:   log,
	})
	batch, err := orch.Run(ctx, jobs)
	report.Batch = batch
	report.Duration = time.Since(start)
	if err != nil {
		target.Discard()
		return report, err
	}
	if batch.Completed() == 0 {
		target.Discard()
		return report, ErrNothingFitted
	}

	if err := r.writeArtifacts(target, report, table, summary); err != nil {
		_ = target.Close()
		return report, err
	}
	if err := target.Close(); err != nil {
		return report, err
	}

	profiling.LogGCStats(log)
	log.Info("run finished",
		zap.Int("completed", batch.Completed()),
		zap.Int("failed", len(batch.Failed())),
		zap.Duration("took", report.Duration),
	)
	return report, nil
}

func (r *Runner) writeArtifacts(target *output.Target, report *Report, table string, summary bool) error {
	batch := report.Batch
	write := func(name string, fn func(w io.Writer) error) error {
		if err := target.WriteFile(name, fn); err != nil {
			return err
		}
		report.Files = append(report.Files, target.Path(name))
		r.log.Debug("file written", zap.String("path", target.Path(name)))
		return nil
	}

	labels, columns := batch.Amplitudes()
	if err := write(table, func(w io.Writer) error {
		return output.WriteAmplitudes(w, labels, columns)
	}); err != nil {
		return err
	}

	if summary {
		timings := make([]models.JobTiming, 0, len(batch.Results))
		for _, res := range batch.Results {
			timings = append(timings, res.Timing())
		}
		workers := int(r.cfg.Threads)
		if err := write(output.SummaryTable, func(w io.Writer) error {
			return output.WriteSummary(w, timings, report.Duration, workers)
		}); err != nil {
			return err
		}
	}

	if r.cfg.Snapshot {
		rec := snapshot.New(report.RunID, r.cfg.Fit.Method, r.cfg.Physics.PulseWidth, batch)
		if err := write(snapshot.FileName, func(w io.Writer) error {
			return snapshot.Encode(w, rec)
		}); err != nil {
			return err
		}
	}

	if r.cfg.Plot {
		for _, res := range batch.Results {
			if !res.Succeeded() {
				continue
			}
			model, err := res.Model()
			if err != nil {
				return err
			}
			files, err := WritePlots(target, res.Job.Name, res.Trace, model, res.Fit)
			if err != nil {
				return err
			}
			report.Files = append(report.Files, files...)
		}
	}
	return nil
}

// WritePlots renders the diagnostic figures of one trace into target and
// returns the written paths.
func WritePlots(target *output.Target, name string, tr burstfit.Trace, model *burstfit.Model, res *burstfit.FitResult) ([]string, error) {
	figs, err := plotting.Diagnostics(name, tr, model, res)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, fig := range figs {
		file := fig.FileName(name)
		if err := target.WriteFile(file, func(w io.Writer) error {
			return plotting.Render(w, fig.Plot)
		}); err != nil {
			return files, err
		}
		files = append(files, target.Path(file))
	}
	return files, nil
}
