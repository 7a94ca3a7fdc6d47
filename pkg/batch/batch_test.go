package batch

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kacperjurak/burstfit"
	"github.com/kacperjurak/burstfit/pkg/config"
	"github.com/kacperjurak/burstfit/pkg/manifest"
	"github.com/kacperjurak/burstfit/pkg/models"
	"github.com/kacperjurak/burstfit/pkg/output"
	"github.com/kacperjurak/burstfit/pkg/snapshot"
)

const t0 = 20e-9

type fakeReader struct {
	traces map[string]burstfit.Trace
	reads  atomic.Int32
}

func (f *fakeReader) Read(path string) (burstfit.Trace, error) {
	f.reads.Add(1)
	tr, ok := f.traces[filepath.Base(path)]
	if !ok {
		return burstfit.Trace{}, burstfit.ErrTraceRead
	}
	return tr, nil
}

func synth(t *testing.T, amps []float64) burstfit.Trace {
	t.Helper()
	phys := config.DefaultPhysics()
	shape, err := burstfit.NewPulseShape(phys.Shapes[burstfit.PUMP])
	require.NoError(t, err)
	model, err := burstfit.NewModel(shape, burstfit.BurstConfig{Pulses: len(amps), T0: t0, Timing: phys.Timing})
	require.NoError(t, err)

	var times []float64
	for tm := 0.0; tm < 60e-9; tm += 0.25e-9 {
		times = append(times, tm)
	}
	return burstfit.Trace{Times: times, Values: model.Curve(times, amps)}
}

func TestOrchestratorPreservesOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	delays := make([]time.Duration, 20)
	for i := range delays {
		delays[i] = time.Duration(rng.Intn(5)) * time.Millisecond
	}

	orch := NewOrchestrator(func(_ context.Context, job models.TraceJob) *models.JobResult {
		time.Sleep(delays[job.Index])
		return &models.JobResult{Job: job, State: models.Completed, Fit: &burstfit.FitResult{Amplitudes: []float64{float64(job.Index)}}}
	}, Options{Workers: 4, Logger: zap.NewNop()})

	jobs := make([]models.TraceJob, len(delays))
	for i := range jobs {
		jobs[i] = models.TraceJob{Name: string(rune('a' + i))}
	}

	batch, err := orch.Run(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, batch.Results, len(jobs))

	labels, cols := batch.Amplitudes()
	for i := range jobs {
		assert.Equal(t, jobs[i].Name, labels[i])
		assert.Equal(t, []float64{float64(i)}, cols[i])
	}
}

func TestOrchestratorFailFast(t *testing.T) {
	var ran atomic.Int32
	orch := NewOrchestrator(func(ctx context.Context, job models.TraceJob) *models.JobResult {
		ran.Add(1)
		if job.Index == 0 {
			return &models.JobResult{Job: job, State: models.Failed, Err: burstfit.ErrPoorFit}
		}
		select {
		case <-ctx.Done():
			return &models.JobResult{Job: job, State: models.Failed, Err: ctx.Err()}
		case <-time.After(time.Second):
			return &models.JobResult{Job: job, State: models.Completed, Fit: &burstfit.FitResult{}}
		}
	}, Options{Workers: 1, FailFast: true})

	jobs := make([]models.TraceJob, 10)
	batch, err := orch.Run(context.Background(), jobs)
	require.ErrorIs(t, err, burstfit.ErrPoorFit)
	assert.Zero(t, batch.Completed())
	assert.Len(t, batch.Results, 10)
	assert.Less(t, ran.Load(), int32(10))
}

func writeManifest(t *testing.T, dir, text string) string {
	t.Helper()
	path := filepath.Join(dir, "manifest.txt")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func newRunner(t *testing.T, reader *fakeReader, modify func(*config.Config)) (*Runner, string) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.OutputPath = filepath.Join(t.TempDir(), "out")
	cfg.Threads = 3
	if modify != nil {
		modify(cfg)
	}
	return NewRunner(cfg, reader, zap.NewNop()), cfg.OutputPath
}

func TestRunManifestIsolatesFailures(t *testing.T) {
	reader := &fakeReader{traces: map[string]burstfit.Trace{
		"pump.csv":  synth(t, []float64{1, 2, 3, 4}),
		"short.csv": {Times: []float64{t0, t0 + 1e-9}, Values: []float64{1, 1}},
		"trans.csv": synth(t, []float64{4, 3, 2, 1}),
	}}
	runner, out := newRunner(t, reader, nil)
	dir := t.TempDir()
	path := writeManifest(t, dir, "pump.csv,PUMP\nshort.csv,REFLECTED\ntrans.csv,TRANSMITTED\n")

	report, err := runner.RunManifest(context.Background(), ManifestRequest{
		Manifest: path,
		DataDir:  dir,
		Pulses:   4,
		Policy:   manifest.StartTimePolicy{CommandLine: ptr(t0)},
	})
	require.NoError(t, err)

	failed := report.Batch.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "short", failed[0].Job.Name)
	assert.ErrorIs(t, failed[0].Err, burstfit.ErrSampleCountTooSmall)

	f, err := os.Open(filepath.Join(out, output.AmplitudeTable))
	require.NoError(t, err)
	defer f.Close()
	labels, cols, err := output.ReadAmplitudes(f)
	require.NoError(t, err)
	assert.Equal(t, []string{"pump", "trans"}, labels)
	assert.InDeltaSlice(t, []float64{1, 2, 3, 4}, cols[0], 1e-6)
	assert.InDeltaSlice(t, []float64{4, 3, 2, 1}, cols[1], 1e-6)

	assert.FileExists(t, filepath.Join(out, output.SummaryTable))
	assert.NoFileExists(t, filepath.Join(out, output.LockName))
}

func TestRunManifestAbortsBeforeOutput(t *testing.T) {
	reader := &fakeReader{traces: map[string]burstfit.Trace{"pump.csv": synth(t, []float64{1, 2, 3, 4})}}
	runner, out := newRunner(t, reader, nil)
	dir := t.TempDir()

	tests := []struct {
		name     string
		manifest string
		policy   manifest.StartTimePolicy
		want     error
	}{
		{"missing type", "pump.csv,PUMP\nrefl.csv\n", manifest.StartTimePolicy{CommandLine: ptr(t0)}, burstfit.ErrInvalidManifestRow},
		{"no start time", "pump.csv,PUMP\n", manifest.StartTimePolicy{}, burstfit.ErrMissingStartTime},
		{"ambiguous start time", "pump.csv,PUMP,2e-8\n", manifest.StartTimePolicy{CommandLine: ptr(t0)}, burstfit.ErrAmbiguousStartTime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runner.RunManifest(context.Background(), ManifestRequest{
				Manifest: writeManifest(t, dir, tt.manifest),
				DataDir:  dir,
				Pulses:   4,
				Policy:   tt.policy,
			})
			assert.ErrorIs(t, err, tt.want)
			assert.NoDirExists(t, out)
			assert.Zero(t, reader.reads.Load())
		})
	}
}

func TestRunRefusesUsedOutput(t *testing.T) {
	reader := &fakeReader{traces: map[string]burstfit.Trace{"pump.csv": synth(t, []float64{1, 2, 3, 4})}}
	runner, out := newRunner(t, reader, nil)
	require.NoError(t, os.MkdirAll(out, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(out, "old.csv"), []byte("keep"), 0o644))

	_, err := runner.RunSingle(context.Background(), SingleRequest{Path: "pump.csv", Type: burstfit.PUMP, T0: t0, Pulses: 4})
	require.ErrorIs(t, err, burstfit.ErrOutputAlreadyExists)
	assert.Zero(t, reader.reads.Load())

	data, err := os.ReadFile(filepath.Join(out, "old.csv"))
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
}

func TestRunSingleWithSnapshotAndPlots(t *testing.T) {
	reader := &fakeReader{traces: map[string]burstfit.Trace{"C1pump.csv": synth(t, []float64{1, 2, 3, 4})}}
	runner, out := newRunner(t, reader, func(c *config.Config) {
		c.Snapshot = true
		c.Plot = true
	})

	report, err := runner.RunSingle(context.Background(), SingleRequest{Path: "data/C1pump.csv", Type: burstfit.PUMP, T0: t0, Pulses: 4})
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)

	for _, name := range []string{"C1pump-amplitudes.csv", snapshot.FileName, "C1pump-fit.png", "C1pump-residuals.png", "C1pump-qq.png"} {
		assert.FileExists(t, filepath.Join(out, name))
	}
	assert.NoFileExists(t, filepath.Join(out, output.SummaryTable))

	rec, err := snapshot.ReadFile(filepath.Join(out, snapshot.FileName))
	require.NoError(t, err)
	assert.Equal(t, report.RunID, rec.RunID)
	fit, ok := rec.Find("C1pump")
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{1, 2, 3, 4}, fit.Amplitudes, 1e-6)
}

func TestRunSingleFailureWritesNothing(t *testing.T) {
	reader := &fakeReader{traces: map[string]burstfit.Trace{}}
	runner, out := newRunner(t, reader, nil)

	_, err := runner.RunSingle(context.Background(), SingleRequest{Path: "absent.csv", Type: burstfit.PUMP, T0: t0, Pulses: 4})
	assert.ErrorIs(t, err, burstfit.ErrTraceRead)
	assert.NoDirExists(t, out)
}

func TestRunManifestFailFast(t *testing.T) {
	reader := &fakeReader{traces: map[string]burstfit.Trace{"pump.csv": synth(t, []float64{1, 2, 3, 4})}}
	runner, out := newRunner(t, reader, func(c *config.Config) { c.FailFast = true })
	dir := t.TempDir()

	_, err := runner.RunManifest(context.Background(), ManifestRequest{
		Manifest: writeManifest(t, dir, "pump.csv,PUMP\nabsent.csv,REFLECTED\n"),
		DataDir:  dir,
		Pulses:   4,
		Policy:   manifest.StartTimePolicy{CommandLine: ptr(t0)},
	})
	assert.ErrorIs(t, err, burstfit.ErrTraceRead)
	assert.NoDirExists(t, out)
}

func ptr(v float64) *float64 { return &v }
