// Package runner provides executor.TaskRunner implementations that run step
// instructions as external processes, plus decorators that add retries and
// per-step deadlines.
//
// A runner returns an error only when the process could not be run at all.
// A process that ran and exited non-zero is a structured failure: the
// Response reports Success=false with the captured output.
package runner

import (
	"context"
	"os/exec"
	"strings"

	"github.com/Iron-Ham/phasekit/internal/errors"
	"github.com/Iron-Ham/phasekit/internal/executor"
)

// -----------------------------------------------------------------------------
// Command Executor
// -----------------------------------------------------------------------------

// CommandExecutor abstracts command execution for testability.
// This allows tests to fake the claude CLI and git without executing them.
type CommandExecutor interface {
	// Run executes a command in dir and returns combined output.
	Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// CLICommandExecutor executes commands using os/exec.
type CLICommandExecutor struct{}

// NewCLICommandExecutor creates a new CLI command executor.
func NewCLICommandExecutor() *CLICommandExecutor {
	return &CLICommandExecutor{}
}

// Run executes a command and returns combined output. The process is killed
// when ctx is done.
func (e *CLICommandExecutor) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// exitCoder is implemented by *exec.ExitError.
type exitCoder interface {
	ExitCode() int
}

// runProcess runs a command and classifies the outcome. A non-zero exit is a
// failed Response; a process that could not be started, or that was cut short
// by ctx, is a RunnerError.
func runProcess(ctx context.Context, ce CommandExecutor, runnerName, dir, name string, args ...string) (executor.Response, error) {
	out, err := ce.Run(ctx, dir, name, args...)
	output := strings.TrimRight(string(out), " \t\r\n")

	if ctxErr := ctx.Err(); ctxErr != nil {
		runErr := errors.NewRunnerError("process interrupted", ctxErr).
			WithRunner(runnerName).
			WithRetryable(false)
		// A process that handled the signal reports its own exit status.
		var ec exitCoder
		if errors.As(err, &ec) && ec.ExitCode() >= 0 {
			runErr = runErr.WithExitCode(ec.ExitCode())
		}
		return executor.Response{Output: output}, runErr
	}

	if err != nil {
		var ec exitCoder
		if errors.As(err, &ec) {
			return executor.Response{Output: output, Success: false}, nil
		}
		runErr := errors.NewRunnerError("failed to run "+name, err).
			WithRunner(runnerName).
			WithOutput(output)
		if errors.Is(err, exec.ErrNotFound) {
			runErr = runErr.WithRetryable(false)
		}
		return executor.Response{}, runErr
	}

	return executor.Response{Output: output, Success: true}, nil
}

// Name returns r's name when it implements executor.Namer, otherwise "runner".
func Name(r executor.TaskRunner) string {
	if n, ok := r.(executor.Namer); ok {
		if name := n.Name(); name != "" {
			return name
		}
	}
	return "runner"
}
