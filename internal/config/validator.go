package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "scheduler.max_parallel")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// modelNameRegex validates model names passed to the claude CLI.
// Names start with a letter and may contain letters, digits, dots, hyphens and underscores.
var modelNameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9._-]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidRunnerKinds returns the list of valid runner kinds
func ValidRunnerKinds() []string {
	return []string{"claude", "shell"}
}

// ValidStateBackends returns the list of valid state backends
func ValidStateBackends() []string {
	return []string{"file", "sqlite", "none"}
}

// ValidColorModes returns the list of valid output color modes
func ValidColorModes() []string {
	return []string{"auto", "always", "never"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateScheduler()...)
	errors = append(errors, c.validateRunner()...)
	errors = append(errors, c.validateState()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateOutput()...)

	return errors
}

// validateScheduler validates the SchedulerConfig
func (c *Config) validateScheduler() []ValidationError {
	var errors []ValidationError

	if c.Scheduler.MaxParallel < 1 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.max_parallel",
			Value:   c.Scheduler.MaxParallel,
			Message: "must be at least 1",
		})
	}

	// Every parallel step is a separate runner process
	const maxParallelLimit = 64
	if c.Scheduler.MaxParallel > maxParallelLimit {
		errors = append(errors, ValidationError{
			Field:   "scheduler.max_parallel",
			Value:   c.Scheduler.MaxParallel,
			Message: fmt.Sprintf("exceeds maximum of %d", maxParallelLimit),
		})
	}

	if c.Scheduler.AutoThreshold < 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.auto_threshold",
			Value:   c.Scheduler.AutoThreshold,
			Message: "must be non-negative",
		})
	}

	if c.Scheduler.OutputLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.output_limit",
			Value:   c.Scheduler.OutputLimit,
			Message: "must be non-negative (0 disables truncation)",
		})
	}

	return errors
}

// validateRunner validates the RunnerConfig
func (c *Config) validateRunner() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidRunnerKinds(), c.Runner.Kind) {
		errors = append(errors, ValidationError{
			Field:   "runner.kind",
			Value:   c.Runner.Kind,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidRunnerKinds(), ", ")),
		})
	}

	// The model settings only matter for the claude runner
	if c.Runner.Kind == "claude" {
		if strings.TrimSpace(c.Runner.Command) == "" {
			errors = append(errors, ValidationError{
				Field:   "runner.command",
				Value:   c.Runner.Command,
				Message: "must not be empty",
			})
		}
		for field, model := range map[string]string{
			"runner.light_model": c.Runner.LightModel,
			"runner.heavy_model": c.Runner.HeavyModel,
		} {
			if !modelNameRegex.MatchString(model) {
				errors = append(errors, ValidationError{
					Field:   field,
					Value:   model,
					Message: "must start with a letter and contain only letters, numbers, dots, hyphens, and underscores",
				})
			}
		}
	}

	if c.Runner.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "runner.max_retries",
			Value:   c.Runner.MaxRetries,
			Message: "must be non-negative",
		})
	}

	const maxRetriesLimit = 10
	if c.Runner.MaxRetries > maxRetriesLimit {
		errors = append(errors, ValidationError{
			Field:   "runner.max_retries",
			Value:   c.Runner.MaxRetries,
			Message: fmt.Sprintf("exceeds maximum of %d", maxRetriesLimit),
		})
	}

	if c.Runner.RetryDelayMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "runner.retry_delay_ms",
			Value:   c.Runner.RetryDelayMs,
			Message: "must be non-negative",
		})
	}

	if c.Runner.StepTimeoutMinutes < 0 {
		errors = append(errors, ValidationError{
			Field:   "runner.step_timeout_minutes",
			Value:   c.Runner.StepTimeoutMinutes,
			Message: "must be non-negative (0 disables the timeout)",
		})
	}

	return errors
}

// validateState validates the StateConfig
func (c *Config) validateState() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidStateBackends(), c.State.Backend) {
		errors = append(errors, ValidationError{
			Field:   "state.backend",
			Value:   c.State.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidStateBackends(), ", ")),
		})
	}

	if strings.ContainsRune(c.State.Dir, 0) {
		errors = append(errors, ValidationError{
			Field:   "state.dir",
			Value:   c.State.Dir,
			Message: "contains invalid characters",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateOutput validates the OutputConfig
func (c *Config) validateOutput() []ValidationError {
	var errors []ValidationError

	if c.Output.Color != "" && !slices.Contains(ValidColorModes(), c.Output.Color) {
		errors = append(errors, ValidationError{
			Field:   "output.color",
			Value:   c.Output.Color,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidColorModes(), ", ")),
		})
	}

	return errors
}
