package burstfit

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// BuildRegressors returns the m×N design matrix X[i][j] = Basis(times[i], j).
// Fewer samples than pulses leaves the system under-determined and is
// reported as ErrSampleCountTooSmall instead of building a matrix.
func BuildRegressors(times []float64, m *Model) (*mat.Dense, error) {
	rows, cols := len(times), m.Pulses()
	if rows < cols {
		return nil, fmt.Errorf("%w: %d samples for %d pulses", ErrSampleCountTooSmall, rows, cols)
	}

	data := make([]float64, rows*cols)
	for i, t := range times {
		row := data[i*cols : (i+1)*cols]
		for j := range row {
			row[j] = m.Basis(t, j)
		}
	}
	return mat.NewDense(rows, cols, data), nil
}
