package burstfit

import (
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// NormalQQ pairs the sorted standardized residuals with the matching
// standard normal quantiles, using the (i+0.5)/n plotting positions.
func NormalQQ(residuals []float64) (theoretical, sample []float64) {
	n := len(residuals)
	if n == 0 {
		return nil, nil
	}

	sample = make([]float64, n)
	copy(sample, residuals)
	sort.Float64s(sample)

	mean, sd := stat.MeanStdDev(sample, nil)
	if sd > 0 {
		for i := range sample {
			sample[i] = (sample[i] - mean) / sd
		}
	}

	theoretical = make([]float64, n)
	for i := range theoretical {
		theoretical[i] = distuv.UnitNormal.Quantile((float64(i) + 0.5) / float64(n))
	}
	return theoretical, sample
}

// ResidualTrend fits residual = alpha + beta·fitted. A well specified model
// leaves both close to zero.
func ResidualTrend(fitted, residuals []float64) (alpha, beta float64) {
	if len(fitted) < 2 {
		return 0, 0
	}
	return stat.LinearRegression(fitted, residuals, nil, false)
}
