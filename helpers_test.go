package burstfit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	testShape  = ShapeParams{A1: 1, C: 6e-10, Lambda: 5.014747090308123e8}
	testTiming = Timing{Period: 18.885e-9, Tau1: 4.98375e-9, Tau2: 9.71625e-9, Tau3: 14.12e-9}
)

func newTestModel(t *testing.T, pulses int, t0 float64) *Model {
	t.Helper()
	shape, err := NewPulseShape(testShape)
	require.NoError(t, err)
	m, err := NewModel(shape, BurstConfig{Pulses: pulses, T0: t0, Timing: testTiming})
	require.NoError(t, err)
	return m
}

// sampleTimes mimics a 4 GS/s scope record.
func sampleTimes(start, end float64) []float64 {
	const dt = 0.25e-9
	var res []float64
	for t := start; t < end; t += dt {
		res = append(res, t)
	}
	return res
}
