// Package config loads the fleetsim daemon configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fentz26/fleetsim/internal/sim"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds daemon configuration.
type Config struct {
	Listen     string     `mapstructure:"listen"`
	Registry   string     `mapstructure:"registry"`
	Facility   string     `mapstructure:"facility"`
	Autostart  bool       `mapstructure:"autostart"`
	Demo       bool       `mapstructure:"demo"`
	Simulation sim.Config `mapstructure:"simulation"`
}

// DefaultRegistryPath returns ~/.fleetsim/fleetsim.db.
func DefaultRegistryPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".fleetsim", "fleetsim.db")
}

// Load reads configuration from defaults, an optional YAML file, FLEETSIM_*
// env vars and the given flags, later sources overriding earlier ones.
// Flags are bound by name: listen, registry, facility, autostart, demo,
// speed. An empty path searches ./fleetsim.yaml and ~/.fleetsim/fleetsim.yaml.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()

	def := sim.DefaultConfig()
	v.SetDefault("listen", "127.0.0.1:7466")
	v.SetDefault("registry", DefaultRegistryPath())
	v.SetDefault("facility", "")
	v.SetDefault("autostart", true)
	v.SetDefault("demo", true)
	v.SetDefault("simulation.tick_interval", def.TickInterval)
	v.SetDefault("simulation.task_tick_interval", def.TaskTickInterval)
	v.SetDefault("simulation.alert_tick_interval", def.AlertTickInterval)
	v.SetDefault("simulation.speed_multiplier", def.SpeedMultiplier)
	v.SetDefault("simulation.alert_probability_per_tick", def.AlertProbabilityPerTick)
	v.SetDefault("simulation.recovery_delay", def.RecoveryDelay)
	v.SetDefault("simulation.recovery_success_rate", def.RecoverySuccessRate)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		home, _ := os.UserHomeDir()
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(home, ".fleetsim"))
		v.SetConfigName("fleetsim")
	}

	v.SetEnvPrefix("FLEETSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range map[string]string{
			"listen":                      "listen",
			"registry":                    "registry",
			"facility":                    "facility",
			"autostart":                   "autostart",
			"demo":                        "demo",
			"simulation.speed_multiplier": "speed",
		} {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Simulation.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
