// Package batch runs trace jobs concurrently and turns their results into
// the output artifacts of a run.
package batch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kacperjurak/burstfit/pkg/models"
	"github.com/kacperjurak/burstfit/pkg/worker"
)

// Orchestrator fans jobs out to a worker pool and joins them back in input
// order.
type Orchestrator struct {
	processor worker.ProcessorFunc
	workers   int
	failFast  bool
	log       *zap.Logger
}

type Options struct {
	Workers int
	// FailFast cancels outstanding jobs after the first failure and makes
	// Run return that failure.
	FailFast bool
	Logger   *zap.Logger
}

func NewOrchestrator(processor worker.ProcessorFunc, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Orchestrator{
		processor: processor,
		workers:   opts.Workers,
		failFast:  opts.FailFast,
		log:       opts.Logger,
	}
}

// Run fits every job. The result holds one entry per job, in the order of
// jobs, whatever order they complete in. A failing job only fails its own
// entry unless FailFast is set.
func (o *Orchestrator) Run(parent context.Context, jobs []models.TraceJob) (*models.BatchResult, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	workers := o.workers
	if workers <= 0 || workers > len(jobs) {
		workers = len(jobs)
	}
	pool := worker.New(ctx, worker.Options{
		Workers:   workers,
		Processor: o.processor,
		Logger:    o.log,
	})

	go func() {
		defer pool.Close()
		for i, job := range jobs {
			job.Index = i
			if err := pool.SubmitJob(ctx, job); err != nil {
				return
			}
		}
	}()

	results := make([]*models.JobResult, len(jobs))
	var failure error
	for r := range pool.Results() {
		results[r.Job.Index] = r
		if r.State != models.Failed {
			continue
		}
		if o.failFast && failure == nil {
			failure = fmt.Errorf("%s: %w", r.Job.Name, r.Err)
			o.log.Warn("cancelling remaining jobs", zap.String("failed", r.Job.Name))
			cancel()
		}
	}

	// jobs never submitted because the run was cancelled
	for i, r := range results {
		if r == nil {
			job := jobs[i]
			job.Index = i
			results[i] = &models.JobResult{Job: job, State: models.Failed, Err: context.Cause(ctx)}
		}
	}

	batch := &models.BatchResult{Results: results}
	if err := parent.Err(); err != nil {
		return batch, err
	}
	if failure != nil {
		return batch, failure
	}
	return batch, nil
}
