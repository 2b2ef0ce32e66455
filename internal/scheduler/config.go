// Package scheduler assigns idle robots to queued deliveries and advances
// in-progress deliveries toward completion.
package scheduler

// Config defines the scheduler configuration.
type Config struct {
	// MinBattery is the charge a robot must exceed to take a task.
	MinBattery float64 `yaml:"min_battery" mapstructure:"min_battery"`
	// MinETAMinutes is the shortest ETA given to a new assignment.
	MinETAMinutes int `yaml:"min_eta_minutes" mapstructure:"min_eta_minutes"`
	// ETASpreadMinutes is the width of the ETA draw; ETAs fall in
	// [MinETAMinutes, MinETAMinutes+ETASpreadMinutes).
	ETASpreadMinutes int `yaml:"eta_spread_minutes" mapstructure:"eta_spread_minutes"`
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		MinBattery:       30,
		MinETAMinutes:    5,
		ETASpreadMinutes: 8,
	}
}
