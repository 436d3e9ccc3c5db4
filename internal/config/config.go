// Package config holds the engine configuration loaded through viper.
// Embedders and the CLI use it to construct a dyn-branch from a config
// file and WORKSPACE_* environment variables.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete workspace engine configuration.
type Config struct {
	Branch  BranchConfig  `mapstructure:"branch"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// BranchConfig controls the worker pool and its supervision.
type BranchConfig struct {
	// MinWorkers is the floor the supervisor never scales below.
	MinWorkers int `mapstructure:"min_workers"`
	// MaxWorkers is the ceiling the supervisor never scales above.
	MaxWorkers int `mapstructure:"max_workers"`
	// WaitStrategy selects how idle workers wait for tasks.
	// Options: "low_latency", "balance", "blocking"
	WaitStrategy string `mapstructure:"wait_strategy"`
	// IdleTimeoutMs is how long a worker must be idle before the
	// supervisor may retire it (in milliseconds).
	IdleTimeoutMs int `mapstructure:"idle_timeout_ms"`
	// TickIntervalMs is the tick-callback cadence (in milliseconds).
	TickIntervalMs int `mapstructure:"tick_interval_ms"`
	// CPUMultiple derives the worker limits from the core count instead
	// of MinWorkers/MaxWorkers when enabled.
	CPUMultiple CPUMultipleConfig `mapstructure:"cpu_multiple"`
}

// CPUMultipleConfig scales worker limits with hardware concurrency.
type CPUMultipleConfig struct {
	// Enabled switches limit derivation to core-count multiples.
	Enabled bool `mapstructure:"enabled"`
	// Min is the multiplier for the worker floor.
	Min float64 `mapstructure:"min"`
	// Max is the multiplier for the worker ceiling.
	Max float64 `mapstructure:"max"`
}

// LoggingConfig controls the error sink.
type LoggingConfig struct {
	// Level is the minimum record level (debug, info, warn, error).
	Level string `mapstructure:"level"`
	// Dir is where workspace.log is written. When empty, the CLI adds no
	// log option and the engine's error sink stays disabled.
	Dir string `mapstructure:"dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	maxWorkers := runtime.NumCPU()
	if maxWorkers < 2 {
		maxWorkers = 2
	}

	return &Config{
		Branch: BranchConfig{
			MinWorkers:     1,
			MaxWorkers:     maxWorkers,
			WaitStrategy:   "blocking",
			IdleTimeoutMs:  5000,
			TickIntervalMs: 1000,
			CPUMultiple: CPUMultipleConfig{
				Enabled: false,
				Min:     1,
				Max:     2,
			},
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "",
		},
	}
}

// SetDefaults registers the built-in defaults with viper so they apply
// even without a config file.
func SetDefaults() {
	defaults := Default()

	// Branch defaults
	viper.SetDefault("branch.min_workers", defaults.Branch.MinWorkers)
	viper.SetDefault("branch.max_workers", defaults.Branch.MaxWorkers)
	viper.SetDefault("branch.wait_strategy", defaults.Branch.WaitStrategy)
	viper.SetDefault("branch.idle_timeout_ms", defaults.Branch.IdleTimeoutMs)
	viper.SetDefault("branch.tick_interval_ms", defaults.Branch.TickIntervalMs)
	viper.SetDefault("branch.cpu_multiple.enabled", defaults.Branch.CPUMultiple.Enabled)
	viper.SetDefault("branch.cpu_multiple.min", defaults.Branch.CPUMultiple.Min)
	viper.SetDefault("branch.cpu_multiple.max", defaults.Branch.CPUMultiple.Max)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
}

// ConfigDir returns the default directory searched for config.yaml.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "workspace")
}

// Init wires viper for the engine: built-in defaults, the config-file
// search path (or an explicit file when cfgFile is non-empty), and
// WORKSPACE_* environment variables with dots mapped to underscores
// (e.g. WORKSPACE_BRANCH_MAX_WORKERS for branch.max_workers). A missing
// config file is not an error.
func Init(cfgFile string) {
	SetDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		if dir := ConfigDir(); dir != "" {
			viper.AddConfigPath(dir)
		}
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("WORKSPACE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	_ = viper.ReadInConfig()
}

// Load unmarshals the current viper state into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults if
// unmarshaling fails.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// IdleTimeout returns the idle timeout as a duration.
func (c *BranchConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMs) * time.Millisecond
}

// TickInterval returns the tick interval as a duration.
func (c *BranchConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}
