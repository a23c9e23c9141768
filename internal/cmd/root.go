package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/phasekit/internal/config"
	"github.com/Iron-Ham/phasekit/internal/logging"
	"github.com/Iron-Ham/phasekit/internal/plan"
	"github.com/Iron-Ham/phasekit/internal/report"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "phasekit",
	Short: "Multi-phase plan scheduler",
	Long: `Phasekit runs markdown plans made of step groups. Groups run in
dependency order, steps run sequentially or in parallel inside a group, and
each step is handed to a task runner such as the claude CLI.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !isSilent(err) {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/phasekit/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix(config.EnvPrefix)
	// Replace dots with underscores for nested keys in env vars
	// e.g., PHASEKIT_SCHEDULER_MAX_PARALLEL for scheduler.max_parallel
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// silentError signals failure after the command already reported it.
// Execute returns it so the process exits non-zero without a duplicate message.
type silentError struct {
	msg string
}

func (e *silentError) Error() string {
	return e.msg
}

func isSilent(err error) bool {
	_, ok := err.(*silentError)
	return ok
}

// env is the state shared by commands that work on a plan file.
type env struct {
	cfg      *config.Config
	cwd      string
	stateDir string
	logger   *logging.Logger
	render   *report.Renderer
	theme    *report.Theme
}

// newEnv loads and validates configuration and opens the log file.
func newEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	stateDir := cfg.State.ResolveDir(cwd)

	logger := logging.NopLogger()
	if cfg.Logging.Enabled {
		if err := os.MkdirAll(stateDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
		logger, err = logging.NewLoggerWithRotation(stateDir, cfg.Logging.Level, rotationConfig(cfg.Logging))
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
	}

	theme := report.NewTheme(report.NewRenderer(cmd.OutOrStdout(), cfg.Output.Color))
	return &env{
		cfg:      cfg,
		cwd:      cwd,
		stateDir: stateDir,
		logger:   logger,
		theme:    theme,
		render:   report.New(theme, report.WithOutput(cfg.Output.ShowOutput)),
	}, nil
}

func rotationConfig(c config.LoggingConfig) logging.RotationConfig {
	return logging.RotationConfig{
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		Compress:   c.Compress,
	}
}

func (e *env) Close() error {
	return e.logger.Close()
}

// parsePlan reads the plan at path. The absolute path is the source id, so
// saved state is found regardless of the directory phasekit runs from.
func (e *env) parsePlan(path string) (*plan.Plan, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve plan path: %w", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	return plan.NewParser(e.logger).Parse(string(data), abs), nil
}
