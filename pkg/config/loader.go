package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kacperjurak/burstfit"
)

// EnvPrefix is prepended to every environment override, e.g.
// BURSTFIT_FIT_METHOD=svd.
const EnvPrefix = "BURSTFIT"

// Load reads the configuration from defaults, an optional YAML file and
// environment variables, in increasing order of precedence. A .env file in
// the working directory is loaded into the environment first. An explicit
// path must exist; without one, burstfit.yaml is looked up in the working
// directory and $HOME/.config/burstfit.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: read config %s: %v", burstfit.ErrInvalidConfig, path, err)
		}
	} else {
		v.SetConfigName("burstfit")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/burstfit")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("%w: read config: %v", burstfit.ErrInvalidConfig, err)
			}
		}
	}

	cfg := DefaultConfig()

	// Run
	cfg.OutputPath = v.GetString("output")
	cfg.Threads = v.GetUint("threads")
	cfg.FailFast = v.GetBool("fail_fast")

	// Fit
	cfg.Fit.Method = v.GetString("fit.method")
	cfg.Fit.RCond = v.GetFloat64("fit.rcond")
	cfg.Fit.Uncertainty = v.GetFloat64("fit.uncertainty")
	cfg.Fit.WarnRSquared = v.GetFloat64("fit.warn_r2")
	cfg.Fit.MinRSquared = v.GetFloat64("fit.min_r2")
	cfg.Fit.RestrictWindow = v.GetBool("fit.restrict_window")
	cfg.Fit.AllowDegenerate = v.GetBool("fit.allow_degenerate")

	// Physics
	cfg.Physics.Timing = burstfit.Timing{
		Period: v.GetFloat64("physics.period"),
		Tau1:   v.GetFloat64("physics.tau1"),
		Tau2:   v.GetFloat64("physics.tau2"),
		Tau3:   v.GetFloat64("physics.tau3"),
	}
	cfg.Physics.PulseWidth = v.GetFloat64("physics.pulse_width")
	for _, tt := range burstfit.TraceTypes() {
		key := physicsKey(tt)
		cfg.Physics.Shapes[tt] = burstfit.ShapeParams{
			A1:     v.GetFloat64(key + ".a1"),
			C:      v.GetFloat64(key + ".c"),
			Lambda: v.GetFloat64(key + ".lambda"),
		}
		cfg.Physics.Delays[tt] = v.GetFloat64(key + ".delay")
	}

	// Logging
	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Format = v.GetString("log.format")
	cfg.Log.File = v.GetString("log.file")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// physicsKey returns the config section of a trace type, e.g. "physics.pump".
func physicsKey(tt burstfit.TraceType) string {
	return "physics." + strings.ToLower(tt.String())
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()

	// Run defaults
	v.SetDefault("output", def.OutputPath)
	v.SetDefault("threads", def.Threads)
	v.SetDefault("fail_fast", def.FailFast)

	// Fit defaults
	v.SetDefault("fit.method", def.Fit.Method)
	v.SetDefault("fit.rcond", def.Fit.RCond)
	v.SetDefault("fit.uncertainty", def.Fit.Uncertainty)
	v.SetDefault("fit.warn_r2", def.Fit.WarnRSquared)
	v.SetDefault("fit.min_r2", def.Fit.MinRSquared)
	v.SetDefault("fit.restrict_window", def.Fit.RestrictWindow)
	v.SetDefault("fit.allow_degenerate", def.Fit.AllowDegenerate)

	// Physics defaults
	v.SetDefault("physics.period", def.Physics.Timing.Period)
	v.SetDefault("physics.tau1", def.Physics.Timing.Tau1)
	v.SetDefault("physics.tau2", def.Physics.Timing.Tau2)
	v.SetDefault("physics.tau3", def.Physics.Timing.Tau3)
	v.SetDefault("physics.pulse_width", def.Physics.PulseWidth)
	for _, tt := range burstfit.TraceTypes() {
		key := physicsKey(tt)
		shape := def.Physics.Shapes[tt]
		v.SetDefault(key+".a1", shape.A1)
		v.SetDefault(key+".c", shape.C)
		v.SetDefault(key+".lambda", shape.Lambda)
		v.SetDefault(key+".delay", def.Physics.Delays[tt])
	}

	// Logging defaults
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("log.file", def.Log.File)
}
