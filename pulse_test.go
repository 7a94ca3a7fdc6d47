package burstfit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPulseShapeContinuity(t *testing.T) {
	cases := []ShapeParams{
		testShape,
		{A1: 2.5, C: 1e-9, Lambda: 1e9},
		{A1: 0.3, C: 4e-10, Lambda: 2e8},
		{A1: -1, C: 1, Lambda: 0.5},
	}
	for _, p := range cases {
		s, err := NewPulseShape(p)
		require.NoError(t, err)

		dt := s.Junction()
		left := s.Eval(dt)
		right := s.Eval(math.Nextafter(dt, math.Inf(1)))
		assert.InDelta(t, left, right, 1e-9*math.Abs(p.A1), "params %+v", p)
		assert.InDelta(t, s.TailAmplitude(), left, 1e-12*math.Abs(p.A1))
	}
}

func TestPulseShapeSlopeMatchesAtJunction(t *testing.T) {
	s, err := NewPulseShape(testShape)
	require.NoError(t, err)

	h := testShape.C * 1e-5
	dt := s.Junction()
	leftSlope := (s.Eval(dt) - s.Eval(dt-h)) / h
	rightSlope := (s.Eval(dt+h) - s.Eval(dt)) / h
	assert.InEpsilon(t, leftSlope, rightSlope, 1e-3)
}

func TestPulseShapeValues(t *testing.T) {
	s, err := NewPulseShape(testShape)
	require.NoError(t, err)

	assert.Equal(t, testShape.A1, s.Eval(0))
	assert.InDelta(t, testShape.Lambda*testShape.C*testShape.C, s.Junction(), 1e-24)
	assert.Less(t, s.Eval(5e-9), s.Eval(2e-9))
	assert.Less(t, s.Eval(-2e-9), s.Eval(-1e-10))
	assert.Equal(t, 0.0, s.Eval(-1e-6))
}

func TestPulseShapeRejectsInvalidParams(t *testing.T) {
	for _, p := range []ShapeParams{
		{A1: 1, C: 0, Lambda: 1},
		{A1: 1, C: 1, Lambda: -1},
		{A1: math.NaN(), C: 1, Lambda: 1},
	} {
		_, err := NewPulseShape(p)
		assert.ErrorIs(t, err, ErrInvalidConfig, "params %+v", p)
	}
}
