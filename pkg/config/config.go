package config

import (
	"fmt"

	"github.com/kacperjurak/burstfit"
	"github.com/kacperjurak/burstfit/internal/logger"
)

// Config holds all configuration settings for a fitting run
type Config struct {
	OutputPath string
	Overwrite  bool
	AssumeYes  bool
	Snapshot   bool
	Plot       bool
	Verbose    bool
	FailFast   bool
	Threads    uint

	Fit     FitConfig
	Physics Physics
	Log     logger.Config
}

// FitConfig tunes the solver and the quality gate
type FitConfig struct {
	Method          string
	RCond           float64
	Uncertainty     float64 // per-sample standard deviation (V)
	WarnRSquared    float64
	MinRSquared     float64
	RestrictWindow  bool
	AllowDegenerate bool
}

// Physics holds the experimental constants of the setup. They are turned
// into immutable model values before any fitting starts.
type Physics struct {
	Timing     burstfit.Timing
	PulseWidth float64 // scope pulse width (s)
	Shapes     map[burstfit.TraceType]burstfit.ShapeParams
	Delays     map[burstfit.TraceType]float64 // cable delay per trace type (s)
}

// Shape returns the pulse shape parameters for tt.
func (p Physics) Shape(tt burstfit.TraceType) (burstfit.ShapeParams, error) {
	params, ok := p.Shapes[tt]
	if !ok {
		return burstfit.ShapeParams{}, fmt.Errorf("%w: no pulse shape for %s", burstfit.ErrInvalidConfig, tt)
	}
	return params, nil
}

func (p Physics) Delay(tt burstfit.TraceType) float64 {
	return p.Delays[tt]
}

func (p Physics) Validate() error {
	if err := p.Timing.Validate(); err != nil {
		return err
	}
	if p.PulseWidth < 0 {
		return fmt.Errorf("%w: pulse width must not be negative", burstfit.ErrInvalidConfig)
	}
	for _, tt := range burstfit.TraceTypes() {
		params, err := p.Shape(tt)
		if err != nil {
			return err
		}
		if err := params.Validate(); err != nil {
			return fmt.Errorf("%s: %w", tt, err)
		}
	}
	return nil
}

// Validate checks the settings that would otherwise only fail mid-run.
func (c *Config) Validate() error {
	if _, err := burstfit.ParseMethod(c.Fit.Method); err != nil {
		return err
	}
	if c.Fit.RCond < 0 {
		return fmt.Errorf("%w: rcond must not be negative", burstfit.ErrInvalidConfig)
	}
	if c.Fit.Uncertainty < 0 {
		return fmt.Errorf("%w: uncertainty must not be negative", burstfit.ErrInvalidConfig)
	}
	if c.Fit.MinRSquared > c.Fit.WarnRSquared {
		return fmt.Errorf("%w: R² error threshold %g above warning threshold %g",
			burstfit.ErrInvalidConfig, c.Fit.MinRSquared, c.Fit.WarnRSquared)
	}
	if c.OutputPath == "" {
		return fmt.Errorf("%w: output path is empty", burstfit.ErrInvalidConfig)
	}
	return c.Physics.Validate()
}

const (
	defaultPeriod = 18.885e-9
	defaultTau1   = 4.98375e-9
	defaultTau2   = defaultTau1 + 4.7325e-9
	defaultTau3   = defaultTau2 + 4.40375e-9

	defaultPulseWidth = 4.72e-9
	defaultA1         = 1.0
	defaultC          = 6e-10
	defaultLambda     = 5.014747090308123e8

	defaultUncertainty = 0.001167
)

// DefaultPhysics returns the constants of the reference setup.
func DefaultPhysics() Physics {
	p := Physics{
		Timing: burstfit.Timing{
			Period: defaultPeriod,
			Tau1:   defaultTau1,
			Tau2:   defaultTau2,
			Tau3:   defaultTau3,
		},
		PulseWidth: defaultPulseWidth,
		Shapes:     make(map[burstfit.TraceType]burstfit.ShapeParams),
		Delays:     make(map[burstfit.TraceType]float64),
	}
	for _, tt := range burstfit.TraceTypes() {
		p.Shapes[tt] = burstfit.ShapeParams{A1: defaultA1, C: defaultC, Lambda: defaultLambda}
		p.Delays[tt] = 0
	}
	return p
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		OutputPath: "output",
		Threads:    5,
		Fit: FitConfig{
			Method:         string(burstfit.QR),
			Uncertainty:    defaultUncertainty,
			WarnRSquared:   0.95,
			MinRSquared:    0.5,
			RestrictWindow: true,
		},
		Physics: DefaultPhysics(),
		Log: logger.Config{
			Level:  "info",
			Format: "console",
		},
	}
}
