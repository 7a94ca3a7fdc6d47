package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kacperjurak/burstfit/pkg/models"
	"github.com/kacperjurak/burstfit/pkg/profiling"
)

// Pool manages concurrent trace fitting workers
type Pool struct {
	jobs      chan models.TraceJob
	results   chan *models.JobResult
	workers   int
	ctx       context.Context
	wg        sync.WaitGroup
	closeOnce sync.Once
	processor ProcessorFunc
	log       *zap.Logger
}

// ProcessorFunc fits one job. It must always return a result, recording
// failures in it rather than dropping the job.
type ProcessorFunc func(ctx context.Context, job models.TraceJob) *models.JobResult

// Options holds configuration for creating a new worker pool
type Options struct {
	Workers   int
	Processor ProcessorFunc
	Logger    *zap.Logger
}

// New creates a new worker pool with specified configuration. Jobs still
// queued when ctx is cancelled are returned as failed without running.
func New(ctx context.Context, opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 5
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	// do not block queueing new jobs and results while workers are busy
	pool := &Pool{
		jobs:      make(chan models.TraceJob, opts.Workers*2),
		results:   make(chan *models.JobResult, opts.Workers*2),
		workers:   opts.Workers,
		ctx:       ctx,
		processor: opts.Processor,
		log:       opts.Logger,
	}

	pool.start()
	return pool
}

// start launches the workers and closes the results channel once all of
// them have returned
func (p *Pool) start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	go func() {
		p.wg.Wait()
		close(p.results)
	}()

	p.log.Debug("worker pool started", zap.Int("workers", p.workers))
}

// worker fits jobs until the jobs channel is closed
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobs {
		p.results <- p.processJob(id, job)
	}
}

func (p *Pool) processJob(id int, job models.TraceJob) (result *models.JobResult) {
	if err := p.ctx.Err(); err != nil {
		return &models.JobResult{Job: job, State: models.Failed, Err: err}
	}

	profiler := profiling.NewJobProfiler(p.log, id, job.Name)
	defer func() {
		if r := recover(); r != nil {
			result = &models.JobResult{Job: job, State: models.Failed, Err: fmt.Errorf("worker %d: panic: %v", id, r)}
		}
		if result == nil {
			result = &models.JobResult{Job: job, State: models.Failed, Err: fmt.Errorf("worker %d: no result for %s", id, job.Name)}
		}
		metrics := profiler.Finish()
		if result.ProcessingTime == 0 {
			result.ProcessingTime = metrics.Duration
		}
	}()

	return p.processor(p.ctx, job)
}

// SubmitJob queues a job, blocking while the queue is full. It fails once
// ctx is done.
func (p *Pool) SubmitJob(ctx context.Context, job models.TraceJob) error {
	select {
	case p.jobs <- job:
		return nil
	default:
	}

	p.log.Debug("jobs channel full, waiting", zap.String("job", job.Name))
	start := time.Now()
	select {
	case p.jobs <- job:
		p.log.Debug("job queued", zap.String("job", job.Name), zap.Duration("waited", time.Since(start)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Results delivers one result per submitted job. The channel is closed
// after Close once every worker has finished.
func (p *Pool) Results() <-chan *models.JobResult {
	return p.results
}

// Close stops accepting jobs. Queued jobs are still processed.
func (p *Pool) Close() {
	p.closeOnce.Do(func() { close(p.jobs) })
}

// Shutdown closes the pool and waits for the workers. Results must be
// drained concurrently or by a prior reader.
func (p *Pool) Shutdown() {
	p.Close()
	p.wg.Wait()
	p.log.Debug("worker pool shutdown complete")
}
