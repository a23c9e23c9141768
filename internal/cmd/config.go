package cmd

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Iron-Ham/phasekit/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify phasekit configuration",
	Long: `View or modify phasekit configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  phasekit config set scheduler.max_parallel 5
  phasekit config set runner.kind shell
  phasekit config set state.backend sqlite

Run 'phasekit config show' to see every key.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/phasekit/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

// configKeys maps every settable key to its value type.
var configKeys = map[string]string{
	"scheduler.max_parallel":      "int",
	"scheduler.auto_threshold":    "int",
	"scheduler.output_limit":      "int",
	"runner.kind":                 "string",
	"runner.command":              "string",
	"runner.light_model":          "string",
	"runner.heavy_model":          "string",
	"runner.max_retries":          "int",
	"runner.retry_delay_ms":       "int",
	"runner.step_timeout_minutes": "int",
	"runner.track_commits":        "bool",
	"state.backend":               "string",
	"state.dir":                   "string",
	"logging.enabled":             "bool",
	"logging.level":               "string",
	"logging.max_size_mb":         "int",
	"logging.max_backups":         "int",
	"logging.compress":            "bool",
	"output.color":                "string",
	"output.show_output":          "bool",
}

// ConfigKeys returns the settable configuration keys in sorted order.
func ConfigKeys() []string {
	keys := make([]string, 0, len(configKeys))
	for k := range configKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	_, err = out.Write(data)
	return err
}

// parseConfigValue converts value to the type registered for key.
func parseConfigValue(key, value string) (any, error) {
	keyType, ok := configKeys[key]
	if !ok {
		return nil, fmt.Errorf("unknown configuration key: %s\nValid keys: %s", key, strings.Join(ConfigKeys(), ", "))
	}

	switch keyType {
	case "bool":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return b, nil
	case "int":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		return n, nil
	default:
		return value, nil
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	typedValue, err := parseConfigValue(key, value)
	if err != nil {
		return err
	}

	previous := viper.Get(key)
	viper.Set(key, typedValue)
	if _, err := config.Load(); err != nil {
		viper.Set(key, previous)
		return err
	}

	// Ensure config directory exists
	if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = config.ConfigFile()
	}
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}

const configTemplate = `# phasekit configuration

# How plans are executed
scheduler:
  # Maximum concurrently running steps inside a parallel group
  max_parallel: %d
  # Description length above which the "auto" strategy picks the heavy class
  auto_threshold: %d
  # Characters of runner output kept on a step (0 = unlimited)
  output_limit: %d

# The task runner that executes steps
runner:
  # Options: %s
  kind: %s
  command: %s
  light_model: %s
  heavy_model: %s
  # Extra attempts after a retryable runner error
  max_retries: %d
  retry_delay_ms: %d
  # Per-step time limit in minutes (0 = no limit)
  step_timeout_minutes: %d
  # Record the git commit produced by a step
  track_commits: %t

# Where run progress and logs are kept
state:
  # Options: %s
  backend: %s
  dir: %s

logging:
  enabled: %t
  # Options: debug, info, warn, error
  level: %s
  max_size_mb: %d
  max_backups: %d
  compress: %t

output:
  # Options: %s
  color: %s
  show_output: %t
`

// defaultConfigContent renders the commented default config file.
func defaultConfigContent() string {
	d := config.Default()
	return fmt.Sprintf(configTemplate,
		d.Scheduler.MaxParallel, d.Scheduler.AutoThreshold, d.Scheduler.OutputLimit,
		strings.Join(config.ValidRunnerKinds(), ", "), d.Runner.Kind, d.Runner.Command,
		d.Runner.LightModel, d.Runner.HeavyModel, d.Runner.MaxRetries, d.Runner.RetryDelayMs,
		d.Runner.StepTimeoutMinutes, d.Runner.TrackCommits,
		strings.Join(config.ValidStateBackends(), ", "), d.State.Backend, d.State.Dir,
		d.Logging.Enabled, d.Logging.Level, d.Logging.MaxSizeMB, d.Logging.MaxBackups, d.Logging.Compress,
		strings.Join(config.ValidColorModes(), ", "), d.Output.Color, d.Output.ShowOutput,
	)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'phasekit config set' to modify values", configFile)
	}

	if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configFile, []byte(defaultConfigContent()), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Edit this file to customize phasekit's behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", config.ConfigFile())
	fmt.Fprintln(out, "  2. ./config.yaml (current directory)")
	fmt.Fprintf(out, "\nEnvironment variables: %s_* (e.g., %s_SCHEDULER_MAX_PARALLEL)\n", config.EnvPrefix, config.EnvPrefix)
	return nil
}
