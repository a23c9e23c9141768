package runner

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/phasekit/internal/config"
	"github.com/Iron-Ham/phasekit/internal/errors"
	"github.com/Iron-Ham/phasekit/internal/executor"
	"github.com/Iron-Ham/phasekit/internal/logging"
)

// New builds the task runner described by cfg, running processes in dir.
// The base runner is wrapped with the step timeout first and retries second,
// so every attempt gets its own deadline.
func New(cfg config.RunnerConfig, dir string, logger *logging.Logger) (executor.TaskRunner, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}

	var base executor.TaskRunner
	switch cfg.Kind {
	case "claude", "":
		base = NewClaudeRunner(
			WithCommand(cfg.Command),
			WithModels(cfg.LightModel, cfg.HeavyModel),
			WithDir(dir),
			WithCommitTracking(cfg.TrackCommits),
			WithClaudeLogger(logger),
		)
	case "shell":
		base = NewShellRunner(dir, nil)
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("unknown runner kind, must be one of: %s",
			strings.Join(config.ValidRunnerKinds(), ", "))).
			WithField("runner.kind").
			WithValue(cfg.Kind)
	}

	r := WithTimeout(base, cfg.StepTimeout())
	if cfg.MaxRetries > 0 {
		retry := WithRetry(r, cfg.MaxRetries+1, cfg.RetryDelay())
		retry.Logger = logger
		r = retry
	}
	return r, nil
}
