package processing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/kacperjurak/burstfit"
	"github.com/kacperjurak/burstfit/pkg/config"
	"github.com/kacperjurak/burstfit/pkg/models"
	"github.com/kacperjurak/burstfit/pkg/trace"
)

// FitProcessor runs one trace job from file to amplitudes
type FitProcessor struct {
	reader  trace.Reader
	physics config.Physics
	fit     config.FitConfig
	solver  *burstfit.Solver
	log     *zap.Logger
}

// NewFitProcessor creates a new fit processor
func NewFitProcessor(reader trace.Reader, cfg *config.Config, log *zap.Logger) (*FitProcessor, error) {
	method, err := burstfit.ParseMethod(cfg.Fit.Method)
	if err != nil {
		return nil, err
	}
	if err := cfg.Physics.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	solver := burstfit.NewSolver(method)
	solver.RCond = cfg.Fit.RCond
	solver.Uncertainty = cfg.Fit.Uncertainty

	return &FitProcessor{
		reader:  reader,
		physics: cfg.Physics,
		fit:     cfg.Fit,
		solver:  solver,
		log:     log,
	}, nil
}

// Model builds the burst model used for job. The start time is shifted by
// the cable delay of the job's trace type.
func (p *FitProcessor) Model(job models.TraceJob) (*burstfit.Model, error) {
	params, err := p.physics.Shape(job.Type)
	if err != nil {
		return nil, err
	}
	shape, err := burstfit.NewPulseShape(params)
	if err != nil {
		return nil, err
	}
	return burstfit.NewModel(shape, burstfit.BurstConfig{
		Pulses: job.Pulses,
		T0:     job.T0 - p.physics.Delay(job.Type),
		Timing: p.physics.Timing,
	})
}

// Process fits job. Failures are recorded in the result, never returned.
func (p *FitProcessor) Process(ctx context.Context, job models.TraceJob) *models.JobResult {
	start := time.Now()
	res := &models.JobResult{Job: job, State: models.Fitting}
	log := p.log.With(zap.String("trace", job.Name), zap.Stringer("type", job.Type))

	fail := func(err error) *models.JobResult {
		res.State = models.Failed
		res.Err = err
		res.ProcessingTime = time.Since(start)
		log.Warn("fit failed", zap.Error(err))
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	tr, err := p.reader.Read(job.Path)
	if err != nil {
		return fail(err)
	}
	log.Debug("trace loaded", zap.String("path", job.Path), zap.Int("samples", tr.Len()))

	model, err := p.Model(job)
	if err != nil {
		return fail(err)
	}
	res.Burst = model.Config()
	res.Shape = model.Shape().Params()

	if p.fit.RestrictWindow {
		// the window follows the trigger time; the cable delay only moves the
		// pulse grid
		delay := p.physics.Delay(job.Type)
		from, to := model.Window(p.physics.PulseWidth)
		from, to = from+delay, to+delay
		tr = tr.Restrict(from, to)
		log.Debug("trace restricted", zap.Float64("from", from), zap.Float64("to", to), zap.Int("samples", tr.Len()))
	}
	res.Trace = tr

	x, err := burstfit.BuildRegressors(tr.Times, model)
	if err != nil {
		return fail(err)
	}
	res.Regressors = x

	fit, err := p.solver.Fit(x, tr.Values)
	res.Fit = fit
	switch {
	case err == nil:
	case errors.Is(err, burstfit.ErrDegenerateFit) && fit != nil && p.fit.AllowDegenerate:
		res.Warnings = append(res.Warnings, err.Error())
	default:
		return fail(err)
	}

	if err := p.gate(res); err != nil {
		return fail(err)
	}

	res.State = models.Completed
	res.ProcessingTime = time.Since(start)
	for _, w := range res.Warnings {
		log.Warn(w)
	}
	log.Info("fit completed",
		zap.Int("samples", tr.Len()),
		zap.Float64("r2", fit.RSquared),
		zap.Float64("reduced_chi2", fit.ReducedChiSq),
		zap.Duration("took", res.ProcessingTime),
	)
	return res
}

// gate applies the R² thresholds: below MinRSquared the job fails, below
// WarnRSquared it only gains a warning.
func (p *FitProcessor) gate(res *models.JobResult) error {
	r2 := res.Fit.RSquared
	switch {
	case math.IsNaN(r2):
		res.Warnings = append(res.Warnings, "R² undefined: trace has no variance")
	case r2 < p.fit.MinRSquared:
		return fmt.Errorf("%w: R² = %.4f below %.4f", burstfit.ErrPoorFit, r2, p.fit.MinRSquared)
	case r2 < p.fit.WarnRSquared:
		res.Warnings = append(res.Warnings, fmt.Sprintf("low R² = %.4f (warning threshold %.4f)", r2, p.fit.WarnRSquared))
	}
	return nil
}
