package burstfit

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestFitRecoversExactAmplitudes(t *testing.T) {
	m := newTestModel(t, 4, 0)
	times := sampleTimes(-5e-9, 25e-9)
	want := []float64{1, 2, 3, 4}
	y := m.Curve(times, want)

	x, err := BuildRegressors(times, m)
	require.NoError(t, err)

	for _, method := range []Method{QR, SVD, LM} {
		t.Run(string(method), func(t *testing.T) {
			res, err := NewSolver(method).Fit(x, y)
			require.NoError(t, err)

			assert.InDeltaSlice(t, want, res.Amplitudes, 1e-6)
			assert.InDelta(t, 1.0, res.RSquared, 1e-6)
			assert.Equal(t, 4, res.Rank)
			assert.False(t, res.Degenerate)
			assert.Equal(t, method, res.Method)
			assert.Len(t, res.Residuals, len(times))
			assert.Len(t, res.Fitted, len(times))
		})
	}
}

func TestFitRSquaredBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	m := newTestModel(t, 8, 1e-9)
	times := sampleTimes(-2e-9, 45e-9)
	y := m.Curve(times, []float64{1, 0.8, 1.2, 0.9, 1.1, 0.7, 1.3, 1})
	for i := range y {
		y[i] += 0.05 * rng.NormFloat64()
	}

	x, err := BuildRegressors(times, m)
	require.NoError(t, err)

	res, err := NewSolver(QR).Fit(x, y)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.RSquared, -1e-12)
	assert.LessOrEqual(t, res.RSquared, 1+1e-12)
	assert.Less(t, res.RSquared, 1.0)
}

func TestFitChiSquaredStatistics(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	m := newTestModel(t, 4, 0)
	times := sampleTimes(-5e-9, 25e-9)
	const sigma = 0.01
	y := m.Curve(times, []float64{1, 2, 3, 4})
	for i := range y {
		y[i] += sigma * rng.NormFloat64()
	}

	x, err := BuildRegressors(times, m)
	require.NoError(t, err)

	s := NewSolver(QR)
	s.Uncertainty = sigma
	res, err := s.Fit(x, y)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, res.ReducedChiSq, 0.4)
	assert.True(t, res.PValue >= 0 && res.PValue <= 1)
	assert.Less(t, res.AdjRSquared, res.RSquared)

	noSigma, err := NewSolver(QR).Fit(x, y)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(noSigma.ReducedChiSq))
}

func TestFitConstantObservationsHaveUndefinedRSquared(t *testing.T) {
	x := mat.NewDense(3, 2, []float64{
		1, 0,
		0, 1,
		1, 1,
	})
	res, err := NewSolver(QR).Fit(x, []float64{1, 1, 1})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(res.RSquared))
}

func TestFitRejectsNonFiniteObservations(t *testing.T) {
	x := mat.NewDense(3, 2, []float64{
		1, 0,
		0, 1,
		1, 1,
	})
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		for _, method := range []Method{QR, SVD, LM} {
			res, err := NewSolver(method).Fit(x, []float64{1, v, 2})
			assert.ErrorIs(t, err, ErrNonFinite)
			assert.Nil(t, res)
			assert.Equal(t, KindJob, Classify(err))
		}
	}
}

func TestFitDegenerate(t *testing.T) {
	x := mat.NewDense(3, 2, []float64{
		1, 1,
		2, 2,
		3, 3,
	})
	for _, method := range []Method{QR, SVD, LM} {
		s := NewSolver(method)
		s.RCond = 1e-10
		res, err := s.Fit(x, []float64{2, 4, 6})
		require.ErrorIs(t, err, ErrDegenerateFit)
		require.NotNil(t, res)

		assert.True(t, res.Degenerate)
		assert.Equal(t, 1, res.Rank)
		// minimum-norm solution splits the weight evenly
		assert.InDeltaSlice(t, []float64{1, 1}, res.Amplitudes, 1e-9)
		assert.InDelta(t, 1.0, res.RSquared, 1e-6)
	}
}

func TestFitUnreachablePulsesAreDegenerate(t *testing.T) {
	m := newTestModel(t, 8, 0)
	times := sampleTimes(-3e-9, 3e-9)

	x, err := BuildRegressors(times, m)
	require.NoError(t, err)

	_, err = NewSolver(QR).Fit(x, m.Curve(times, []float64{1, 1, 1, 1, 1, 1, 1, 1}))
	assert.ErrorIs(t, err, ErrDegenerateFit)
}

func TestFitRejectsUnderdetermined(t *testing.T) {
	x := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	_, err := NewSolver(QR).Fit(x, []float64{1, 2})
	assert.ErrorIs(t, err, ErrSampleCountTooSmall)

	_, err = NewSolver(QR).Fit(mat.NewDense(3, 1, []float64{1, 2, 3}), []float64{1})
	assert.Error(t, err)
}

func TestParseMethod(t *testing.T) {
	for in, want := range map[string]Method{"": QR, "QR": QR, "svd": SVD, " lm ": LM} {
		got, err := ParseMethod(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMethod("newton")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestClassify(t *testing.T) {
	cases := map[error]Kind{
		nil: KindUnknown,
		fmt.Errorf("row 3: %w", ErrInvalidManifestRow): KindConfig,
		ErrOutputAlreadyExists:                          KindConfig,
		fmt.Errorf("x: %w", ErrSampleCountTooSmall):     KindJob,
		ErrDegenerateFit:                                KindJob,
		context.Canceled:                                KindCancel,
		fmt.Errorf("plain"):                             KindUnknown,
	}
	for err, want := range cases {
		assert.Equal(t, want, Classify(err), "%v", err)
	}
}

func TestNormalQQ(t *testing.T) {
	theo, sample := NormalQQ([]float64{3, -1, 2, 0, 1})
	require.Len(t, theo, 5)
	require.Len(t, sample, 5)

	assert.InDelta(t, 0, theo[2], 1e-12)
	assert.InDelta(t, -theo[0], theo[4], 1e-12)
	for i := 1; i < len(sample); i++ {
		assert.Less(t, sample[i-1], sample[i])
	}

	theo, sample = NormalQQ(nil)
	assert.Nil(t, theo)
	assert.Nil(t, sample)
}

func TestResidualTrend(t *testing.T) {
	alpha, beta := ResidualTrend([]float64{0, 1, 2, 3}, []float64{1, 3, 5, 7})
	assert.InDelta(t, 1, alpha, 1e-12)
	assert.InDelta(t, 2, beta, 1e-12)
}
