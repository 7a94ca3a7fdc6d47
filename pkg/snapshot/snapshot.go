// Package snapshot stores everything needed to inspect a run again without
// re-fitting: inputs, regressors, results and diagnostics.
package snapshot

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/kacperjurak/burstfit"
	"github.com/kacperjurak/burstfit/pkg/models"
)

const (
	// Version is the record layout written by this package.
	Version  = 1
	FileName = "fit-snapshot.json"
)

type Record struct {
	Version    int       `json:"version"`
	RunID      string    `json:"run_id"`
	CreatedAt  time.Time `json:"created_at"`
	Method     string    `json:"method"`
	PulseWidth float64   `json:"pulse_width"`
	Fits       []Fit     `json:"fits"`
}

// Fit is the stored state of one trace job.
type Fit struct {
	Index  int                  `json:"index"`
	Name   string               `json:"name"`
	Type   burstfit.TraceType   `json:"type"`
	State  string               `json:"state"`
	Burst  burstfit.BurstConfig `json:"burst"`
	Shape  burstfit.ShapeParams `json:"shape"`
	Times  []float64            `json:"times,omitempty"`
	Values []float64            `json:"values,omitempty"`

	Regressors *Matrix   `json:"regressors,omitempty"`
	Amplitudes []float64 `json:"amplitudes,omitempty"`
	Residuals  []float64 `json:"residuals,omitempty"`
	Fitted     []float64 `json:"fitted,omitempty"`
	Stats      *Stats    `json:"stats,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Matrix is a row-major dense matrix.
type Matrix struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// Stats are the fit statistics. Undefined values (NaN, ±Inf) are null.
type Stats struct {
	RSquared     *float64 `json:"r_squared"`
	AdjRSquared  *float64 `json:"adj_r_squared"`
	ReducedChiSq *float64 `json:"reduced_chi_sq"`
	PValue       *float64 `json:"p_value"`
	Rank         int      `json:"rank"`
	Degenerate   bool     `json:"degenerate"`
	Method       string   `json:"method"`
}

// New builds a record from a finished batch.
func New(runID string, method string, pulseWidth float64, batch *models.BatchResult) *Record {
	rec := &Record{
		Version:    Version,
		RunID:      runID,
		CreatedAt:  time.Now().UTC(),
		Method:     method,
		PulseWidth: pulseWidth,
	}
	for _, r := range batch.Results {
		if r == nil {
			continue
		}
		rec.Fits = append(rec.Fits, fromResult(r))
	}
	return rec
}

func fromResult(r *models.JobResult) Fit {
	f := Fit{
		Index:    r.Job.Index,
		Name:     r.Job.Name,
		Type:     r.Job.Type,
		State:    r.State.String(),
		Burst:    r.Burst,
		Shape:    r.Shape,
		Times:    r.Trace.Times,
		Values:   r.Trace.Values,
		Warnings: r.Warnings,
	}
	if r.Err != nil {
		f.Error = r.Err.Error()
	}
	if r.Regressors != nil {
		rows, cols := r.Regressors.Dims()
		data := make([]float64, 0, rows*cols)
		for i := 0; i < rows; i++ {
			data = append(data, r.Regressors.RawRowView(i)...)
		}
		f.Regressors = &Matrix{Rows: rows, Cols: cols, Data: data}
	}
	if fit := r.Fit; fit != nil {
		f.Amplitudes = fit.Amplitudes
		f.Residuals = fit.Residuals
		f.Fitted = fit.Fitted
		f.Stats = &Stats{
			RSquared:     finite(fit.RSquared),
			AdjRSquared:  finite(fit.AdjRSquared),
			ReducedChiSq: finite(fit.ReducedChiSq),
			PValue:       finite(fit.PValue),
			Rank:         fit.Rank,
			Degenerate:   fit.Degenerate,
			Method:       string(fit.Method),
		}
	}
	return f
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func value(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// Find returns the fit stored for the trace name.
func (r *Record) Find(name string) (*Fit, bool) {
	for i := range r.Fits {
		if r.Fits[i].Name == name {
			return &r.Fits[i], true
		}
	}
	return nil, false
}

// Model rebuilds the burst model the fit was run with.
func (f *Fit) Model() (*burstfit.Model, error) {
	shape, err := burstfit.NewPulseShape(f.Shape)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %s: %w", f.Name, err)
	}
	m, err := burstfit.NewModel(shape, f.Burst)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %s: %w", f.Name, err)
	}
	return m, nil
}

func (f *Fit) Trace() burstfit.Trace {
	return burstfit.Trace{Times: f.Times, Values: f.Values}
}

// Result returns the stored fit outcome, or nil for a job that never got
// that far.
func (f *Fit) Result() *burstfit.FitResult {
	if f.Stats == nil {
		return nil
	}
	return &burstfit.FitResult{
		Amplitudes:   f.Amplitudes,
		Residuals:    f.Residuals,
		Fitted:       f.Fitted,
		RSquared:     value(f.Stats.RSquared),
		AdjRSquared:  value(f.Stats.AdjRSquared),
		ReducedChiSq: value(f.Stats.ReducedChiSq),
		PValue:       value(f.Stats.PValue),
		Rank:         f.Stats.Rank,
		Degenerate:   f.Stats.Degenerate,
		Method:       burstfit.Method(f.Stats.Method),
	}
}

// validate checks that the stored arrays agree with each other, so that a
// decoded fit can be replotted.
func (f *Fit) validate() error {
	if len(f.Times) != len(f.Values) {
		return fmt.Errorf("snapshot: %s: %d times but %d values", f.Name, len(f.Times), len(f.Values))
	}
	if f.Stats == nil {
		return nil
	}
	if len(f.Amplitudes) != f.Burst.Pulses {
		return fmt.Errorf("snapshot: %s: %d amplitudes for %d pulses", f.Name, len(f.Amplitudes), f.Burst.Pulses)
	}
	if len(f.Fitted) != len(f.Values) || len(f.Residuals) != len(f.Values) {
		return fmt.Errorf("snapshot: %s: fitted and residual curves do not match %d samples", f.Name, len(f.Values))
	}
	return nil
}

// Dense returns the stored regressor matrix.
func (m *Matrix) Dense() (*mat.Dense, error) {
	if m.Rows <= 0 || m.Cols <= 0 || len(m.Data) != m.Rows*m.Cols {
		return nil, fmt.Errorf("snapshot: malformed %dx%d matrix with %d values", m.Rows, m.Cols, len(m.Data))
	}
	return mat.NewDense(m.Rows, m.Cols, m.Data), nil
}

func Encode(w io.Writer, rec *Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	return nil
}

// Decode reads a record and rejects layouts it does not know.
func Decode(r io.Reader) (*Record, error) {
	var rec Record
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nil, fmt.Errorf("snapshot: decode: %w", err)
	}
	if rec.Version != Version {
		return nil, fmt.Errorf("snapshot: unsupported version %d (want %d)", rec.Version, Version)
	}
	for i := range rec.Fits {
		if err := rec.Fits[i].validate(); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}

// ReadFile decodes the snapshot stored at path.
func ReadFile(path string) (*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer f.Close()
	return Decode(f)
}
