package models

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/kacperjurak/burstfit"
)

// TraceJob represents a single trace fitting task. T0 is the effective
// burst start after command-line and manifest values were reconciled.
type TraceJob struct {
	Index  int
	Name   string
	Path   string
	Type   burstfit.TraceType
	T0     float64
	Pulses int
}

// JobState tracks a job through Pending → Fitting → Completed | Failed.
type JobState int

const (
	Pending JobState = iota
	Fitting
	Completed
	Failed
)

func (s JobState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fitting:
		return "fitting"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// JobResult contains the outcome of one trace fit
type JobResult struct {
	Job   TraceJob
	State JobState

	Fit        *burstfit.FitResult
	Trace      burstfit.Trace // samples the fit was run on
	Regressors *mat.Dense
	Burst      burstfit.BurstConfig // model configuration, t0 already delay-corrected
	Shape      burstfit.ShapeParams

	Err            error
	Warnings       []string
	ProcessingTime time.Duration
}

func (r *JobResult) Succeeded() bool {
	return r.State == Completed
}

// BatchResult holds job results in input order.
type BatchResult struct {
	Results []*JobResult
}

// Amplitudes returns the labels and amplitude columns of every completed
// job, in input order. Failed jobs are omitted.
func (b *BatchResult) Amplitudes() (labels []string, columns [][]float64) {
	for _, r := range b.Results {
		if r == nil || !r.Succeeded() {
			continue
		}
		labels = append(labels, r.Job.Name)
		columns = append(columns, r.Fit.Amplitudes)
	}
	return labels, columns
}

// Get returns the amplitude column of the completed job named name.
func (b *BatchResult) Get(name string) ([]float64, bool) {
	for _, r := range b.Results {
		if r != nil && r.Succeeded() && r.Job.Name == name {
			return r.Fit.Amplitudes, true
		}
	}
	return nil, false
}

func (b *BatchResult) Failed() []*JobResult {
	var res []*JobResult
	for _, r := range b.Results {
		if r != nil && r.State == Failed {
			res = append(res, r)
		}
	}
	return res
}

func (b *BatchResult) Completed() int {
	n := 0
	for _, r := range b.Results {
		if r != nil && r.Succeeded() {
			n++
		}
	}
	return n
}

// JobTiming is one row of the run summary
type JobTiming struct {
	Index          int           `json:"index"`
	Name           string        `json:"name"`
	Type           string        `json:"type"`
	State          string        `json:"state"`
	Samples        int           `json:"samples"`
	RSquared       float64       `json:"r_squared"`
	ReducedChiSq   float64       `json:"reduced_chi_sq"`
	ProcessingTime time.Duration `json:"processing_time_ms"`
	Error          string        `json:"error,omitempty"`
}

// Timing summarizes r for the run summary.
func (r *JobResult) Timing() JobTiming {
	t := JobTiming{
		Index:          r.Job.Index,
		Name:           r.Job.Name,
		Type:           r.Job.Type.String(),
		State:          r.State.String(),
		Samples:        r.Trace.Len(),
		ProcessingTime: r.ProcessingTime,
	}
	if r.Fit != nil {
		t.RSquared = r.Fit.RSquared
		t.ReducedChiSq = r.Fit.ReducedChiSq
	}
	if r.Err != nil {
		t.Error = r.Err.Error()
	}
	return t
}

// Model rebuilds the burst model the job was fitted with.
func (r *JobResult) Model() (*burstfit.Model, error) {
	shape, err := burstfit.NewPulseShape(r.Shape)
	if err != nil {
		return nil, err
	}
	return burstfit.NewModel(shape, r.Burst)
}
