package sim

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig is returned for a configuration that fails validation.
var ErrInvalidConfig = errors.New("invalid simulation config")

// Config controls tick rates and random event odds. Intervals are given at
// speed 1; the effective period of each loop is the interval divided by
// SpeedMultiplier.
type Config struct {
	TickInterval            time.Duration `mapstructure:"tick_interval" yaml:"tick_interval" validate:"gt=0"`
	TaskTickInterval        time.Duration `mapstructure:"task_tick_interval" yaml:"task_tick_interval" validate:"gt=0"`
	AlertTickInterval       time.Duration `mapstructure:"alert_tick_interval" yaml:"alert_tick_interval" validate:"gt=0"`
	SpeedMultiplier         float64       `mapstructure:"speed_multiplier" yaml:"speed_multiplier" validate:"gt=0,lte=100"`
	AlertProbabilityPerTick float64       `mapstructure:"alert_probability_per_tick" yaml:"alert_probability_per_tick" validate:"gte=0,lte=1"`
	RecoveryDelay           time.Duration `mapstructure:"recovery_delay" yaml:"recovery_delay" validate:"gte=0"`
	RecoverySuccessRate     float64       `mapstructure:"recovery_success_rate" yaml:"recovery_success_rate" validate:"gte=0,lte=1"`
}

// DefaultConfig returns the default simulation configuration.
func DefaultConfig() Config {
	return Config{
		TickInterval:            time.Second,
		TaskTickInterval:        time.Second,
		AlertTickInterval:       5 * time.Second,
		SpeedMultiplier:         1,
		AlertProbabilityPerTick: 0.02,
		RecoveryDelay:           3 * time.Second,
		RecoverySuccessRate:     0.7,
	}
}

var validate = validator.New()

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// scaled returns d shortened by the speed multiplier.
func (c Config) scaled(d time.Duration) time.Duration {
	s := time.Duration(float64(d) / c.SpeedMultiplier)
	if s <= 0 {
		s = time.Nanosecond
	}
	return s
}
