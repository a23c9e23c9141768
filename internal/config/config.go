package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// PHASEKIT_SCHEDULER_MAX_PARALLEL.
const EnvPrefix = "PHASEKIT"

// Config represents the complete phasekit configuration
type Config struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Runner    RunnerConfig    `mapstructure:"runner" yaml:"runner"`
	State     StateConfig     `mapstructure:"state" yaml:"state"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Output    OutputConfig    `mapstructure:"output" yaml:"output"`
}

// SchedulerConfig controls how plans are executed
type SchedulerConfig struct {
	// MaxParallel is the maximum number of concurrently running steps inside a
	// parallel group (default: 3)
	MaxParallel int `mapstructure:"max_parallel" yaml:"max_parallel"`
	// AutoThreshold is the description length in characters above which the
	// "auto" strategy picks the heavy resource class (default: 1000)
	AutoThreshold int `mapstructure:"auto_threshold" yaml:"auto_threshold"`
	// OutputLimit is the number of characters of runner output kept on a step
	// (default: 500, 0 = unlimited)
	OutputLimit int `mapstructure:"output_limit" yaml:"output_limit"`
}

// RunnerConfig controls the task runner that executes steps
type RunnerConfig struct {
	// Kind selects the runner implementation: "claude" or "shell" (default: "claude")
	Kind string `mapstructure:"kind" yaml:"kind"`
	// Command is the executable used by the claude runner (default: "claude")
	Command string `mapstructure:"command" yaml:"command"`
	// LightModel is the model used for the light resource class (default: "haiku")
	LightModel string `mapstructure:"light_model" yaml:"light_model"`
	// HeavyModel is the model used for the heavy resource class (default: "opus")
	HeavyModel string `mapstructure:"heavy_model" yaml:"heavy_model"`
	// MaxRetries is the number of extra attempts after a retryable runner error (default: 2)
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
	// RetryDelayMs is the pause between attempts in milliseconds (default: 2000)
	RetryDelayMs int `mapstructure:"retry_delay_ms" yaml:"retry_delay_ms"`
	// StepTimeoutMinutes bounds a single step's runtime (default: 0 = no limit)
	StepTimeoutMinutes int `mapstructure:"step_timeout_minutes" yaml:"step_timeout_minutes"`
	// TrackCommits records the git HEAD produced by a step as its commit ref (default: true)
	TrackCommits bool `mapstructure:"track_commits" yaml:"track_commits"`
}

// StateConfig controls where run progress is persisted
type StateConfig struct {
	// Backend is the store used for run state: "file", "sqlite" or "none" (default: "file")
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Dir is the directory holding state and logs. Relative paths are resolved
	// against the working directory. Supports ~ for home directory expansion.
	// (default: ".phasekit")
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logging to <state dir>/phasekit.log is enabled (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated log files (default: false)
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// OutputConfig controls terminal rendering of plans and results
type OutputConfig struct {
	// Color is "auto", "always" or "never" (default: "auto")
	Color string `mapstructure:"color" yaml:"color"`
	// ShowOutput includes step result summaries in run reports (default: false)
	ShowOutput bool `mapstructure:"show_output" yaml:"show_output"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			MaxParallel:   3,
			AutoThreshold: 1000,
			OutputLimit:   500,
		},
		Runner: RunnerConfig{
			Kind:               "claude",
			Command:            "claude",
			LightModel:         "haiku",
			HeavyModel:         "opus",
			MaxRetries:         2,
			RetryDelayMs:       2000,
			StepTimeoutMinutes: 0, // No limit by default
			TrackCommits:       true,
		},
		State: StateConfig{
			Backend: "file",
			Dir:     ".phasekit",
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
		Output: OutputConfig{
			Color:      "auto",
			ShowOutput: false,
		},
	}
}

// RetryDelay returns the retry delay as a time.Duration
func (c *RunnerConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// StepTimeout returns the per-step timeout as a time.Duration (0 means disabled)
func (c *RunnerConfig) StepTimeout() time.Duration {
	return time.Duration(c.StepTimeoutMinutes) * time.Minute
}

// ResolveDir returns the resolved state directory path.
// If Dir is empty, it returns ".phasekit" under baseDir.
// If Dir starts with ~, it expands to the user's home directory.
// If Dir is a relative path, it's resolved relative to baseDir.
func (c *StateConfig) ResolveDir(baseDir string) string {
	if c.Dir == "" {
		return filepath.Join(baseDir, ".phasekit")
	}

	path := c.Dir

	// Expand ~ to home directory
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	return path
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Scheduler defaults
	viper.SetDefault("scheduler.max_parallel", defaults.Scheduler.MaxParallel)
	viper.SetDefault("scheduler.auto_threshold", defaults.Scheduler.AutoThreshold)
	viper.SetDefault("scheduler.output_limit", defaults.Scheduler.OutputLimit)

	// Runner defaults
	viper.SetDefault("runner.kind", defaults.Runner.Kind)
	viper.SetDefault("runner.command", defaults.Runner.Command)
	viper.SetDefault("runner.light_model", defaults.Runner.LightModel)
	viper.SetDefault("runner.heavy_model", defaults.Runner.HeavyModel)
	viper.SetDefault("runner.max_retries", defaults.Runner.MaxRetries)
	viper.SetDefault("runner.retry_delay_ms", defaults.Runner.RetryDelayMs)
	viper.SetDefault("runner.step_timeout_minutes", defaults.Runner.StepTimeoutMinutes)
	viper.SetDefault("runner.track_commits", defaults.Runner.TrackCommits)

	// State defaults
	viper.SetDefault("state.backend", defaults.State.Backend)
	viper.SetDefault("state.dir", defaults.State.Dir)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// Output defaults
	viper.SetDefault("output.color", defaults.Output.Color)
	viper.SetDefault("output.show_output", defaults.Output.ShowOutput)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "phasekit")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".phasekit"
	}
	return filepath.Join(home, ".config", "phasekit")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
