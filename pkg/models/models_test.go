package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kacperjurak/burstfit"
)

func completed(index int, name string, amps ...float64) *JobResult {
	return &JobResult{
		Job:   TraceJob{Index: index, Name: name},
		State: Completed,
		Fit:   &burstfit.FitResult{Amplitudes: amps},
	}
}

func TestBatchResultAmplitudes(t *testing.T) {
	b := &BatchResult{Results: []*JobResult{
		completed(0, "pump", 1, 2),
		{Job: TraceJob{Index: 1, Name: "refl"}, State: Failed, Err: errors.New("boom")},
		completed(2, "trans", 3, 4),
	}}

	labels, cols := b.Amplitudes()
	assert.Equal(t, []string{"pump", "trans"}, labels)
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}}, cols)

	col, ok := b.Get("trans")
	assert.True(t, ok)
	assert.Equal(t, []float64{3, 4}, col)

	_, ok = b.Get("refl")
	assert.False(t, ok)

	assert.Len(t, b.Failed(), 1)
	assert.Equal(t, 2, b.Completed())
}

func TestJobTiming(t *testing.T) {
	r := &JobResult{
		Job:   TraceJob{Index: 3, Name: "x", Type: burstfit.REFLECTED},
		State: Failed,
		Err:   burstfit.ErrTraceRead,
	}
	timing := r.Timing()
	assert.Equal(t, "failed", timing.State)
	assert.Equal(t, "REFLECTED", timing.Type)
	assert.Equal(t, burstfit.ErrTraceRead.Error(), timing.Error)
}
