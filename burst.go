package burstfit

import (
	"fmt"
	"math"
)

// pulses per group in the laser burst pattern
const groupSize = 4

// Timing holds the inter-group period and the offsets of pulses 1..3 from
// the first pulse of their group.
type Timing struct {
	Period float64 `json:"period"`
	Tau1   float64 `json:"tau1"`
	Tau2   float64 `json:"tau2"`
	Tau3   float64 `json:"tau3"`
}

func (t Timing) Validate() error {
	for name, v := range map[string]float64{"period": t.Period, "tau1": t.Tau1, "tau2": t.Tau2, "tau3": t.Tau3} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: timing %s is not finite", ErrInvalidConfig, name)
		}
	}
	if t.Period <= 0 {
		return fmt.Errorf("%w: burst period must be positive, got %g", ErrInvalidConfig, t.Period)
	}
	return nil
}

// phase returns the intra-group offset of pulse n.
func (t Timing) phase(n int) float64 {
	switch n % groupSize {
	case 1:
		return t.Tau1
	case 2:
		return t.Tau2
	case 3:
		return t.Tau3
	}
	return 0
}

// Offset returns the delay of pulse n relative to the first pulse of the burst.
func (t Timing) Offset(n int) float64 {
	return t.Period*float64(n/groupSize) + t.phase(n)
}

// BurstConfig fully determines the regressor basis.
type BurstConfig struct {
	Pulses int     `json:"pulses"`
	T0     float64 `json:"t0"`
	Timing Timing  `json:"timing"`
}

func (c BurstConfig) Validate() error {
	if c.Pulses <= 0 {
		return fmt.Errorf("%w: pulse count must be positive, got %d", ErrInvalidConfig, c.Pulses)
	}
	if math.IsNaN(c.T0) || math.IsInf(c.T0, 0) {
		return fmt.Errorf("%w: start time is not finite", ErrInvalidConfig)
	}
	return c.Timing.Validate()
}

// Model is the multi-pulse comb used as the fit basis.
type Model struct {
	shape PulseShape
	cfg   BurstConfig
}

func NewModel(shape PulseShape, cfg BurstConfig) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Model{shape: shape, cfg: cfg}, nil
}

// Basis returns pulse n's unit waveform evaluated at time t.
func (m *Model) Basis(t float64, n int) float64 {
	return m.shape.Eval(t - m.cfg.T0 - m.cfg.Timing.Offset(n))
}

// Waveform evaluates Σ A_n·Basis(t, n). It panics if len(amps) differs from
// the pulse count.
func (m *Model) Waveform(t float64, amps []float64) float64 {
	if len(amps) != m.cfg.Pulses {
		panic("burstfit: amplitude count does not match pulse count")
	}
	var sum float64
	for n, a := range amps {
		sum += a * m.Basis(t, n)
	}
	return sum
}

// Curve evaluates the waveform at every time in times.
func (m *Model) Curve(times, amps []float64) []float64 {
	res := make([]float64, len(times))
	for i, t := range times {
		res[i] = m.Waveform(t, amps)
	}
	return res
}

// Window returns the time span covered by the burst: half a scope pulse
// width before t0 until the start of the group after the last pulse.
func (m *Model) Window(pulseWidth float64) (start, end float64) {
	start = m.cfg.T0 - pulseWidth/2
	end = start + m.cfg.Timing.Offset(m.cfg.Pulses)
	return start, end
}

func (m *Model) Pulses() int { return m.cfg.Pulses }
func (m *Model) Config() BurstConfig { return m.cfg }
func (m *Model) Shape() PulseShape { return m.shape }
