package burstfit

import (
	"fmt"
	"math"
)

// ShapeParams are the fixed photodiode pulse constants. They describe the
// experimental setup and are never fit.
type ShapeParams struct {
	A1     float64 `json:"a1"`     // peak amplitude scale
	C      float64 `json:"c"`      // Gaussian width (s)
	Lambda float64 `json:"lambda"` // tail decay rate (1/s)
}

// Validate reports whether the parameters describe a usable pulse.
func (p ShapeParams) Validate() error {
	for name, v := range map[string]float64{"a1": p.A1, "c": p.C, "lambda": p.Lambda} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: pulse %s is not finite", ErrInvalidConfig, name)
		}
	}
	if p.C <= 0 {
		return fmt.Errorf("%w: pulse width c must be positive, got %g", ErrInvalidConfig, p.C)
	}
	if p.Lambda <= 0 {
		return fmt.Errorf("%w: decay rate lambda must be positive, got %g", ErrInvalidConfig, p.Lambda)
	}
	return nil
}

// PulseShape is a Gaussian rising edge joined to an exponential tail. The
// junction sits where both pieces have equal value and slope.
type PulseShape struct {
	params ShapeParams
	dt     float64 // junction offset, λc²
	a2     float64 // tail amplitude at the junction
}

func NewPulseShape(p ShapeParams) (PulseShape, error) {
	if err := p.Validate(); err != nil {
		return PulseShape{}, err
	}
	dt := p.Lambda * p.C * p.C
	return PulseShape{
		params: p,
		dt:     dt,
		a2:     p.A1 * math.Exp(-dt*dt/(2*p.C*p.C)),
	}, nil
}

// Eval returns the pulse value at x seconds after the pulse centre.
func (s PulseShape) Eval(x float64) float64 {
	if x <= s.dt {
		return s.params.A1 * math.Exp(-x*x/(2*s.params.C*s.params.C))
	}
	return s.a2 * math.Exp(-s.params.Lambda*(x-s.dt))
}

// Junction returns Δt, the offset where the Gaussian hands over to the tail.
func (s PulseShape) Junction() float64 { return s.dt }

// TailAmplitude returns a2.
func (s PulseShape) TailAmplitude() float64 { return s.a2 }

func (s PulseShape) Params() ShapeParams { return s.params }
