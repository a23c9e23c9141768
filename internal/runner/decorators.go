package runner

import (
	"context"
	"time"

	"github.com/Iron-Ham/phasekit/internal/errors"
	"github.com/Iron-Ham/phasekit/internal/executor"
	"github.com/Iron-Ham/phasekit/internal/logging"
)

// -----------------------------------------------------------------------------
// Retry
// -----------------------------------------------------------------------------

// RetryRunner re-invokes its runner after errors classified retryable by
// errors.IsRetryable. A Response with Success=false is a structured failure
// and is returned as is.
type RetryRunner struct {
	Runner   executor.TaskRunner
	Attempts int
	Delay    time.Duration
	Logger   *logging.Logger
}

// WithRetry wraps r so that each Run makes at most attempts calls, waiting
// delay between them. attempts below 1 is treated as 1.
func WithRetry(r executor.TaskRunner, attempts int, delay time.Duration) *RetryRunner {
	if attempts < 1 {
		attempts = 1
	}
	return &RetryRunner{
		Runner:   r,
		Attempts: attempts,
		Delay:    delay,
		Logger:   logging.NopLogger(),
	}
}

// Name implements executor.Namer.
func (r *RetryRunner) Name() string {
	return Name(r.Runner)
}

// Run implements executor.TaskRunner.
func (r *RetryRunner) Run(ctx context.Context, instructions string, class executor.ResourceClass) (executor.Response, error) {
	var resp executor.Response
	var err error
	for attempt := 1; attempt <= r.Attempts; attempt++ {
		resp, err = r.Runner.Run(ctx, instructions, class)
		if err == nil || !errors.IsRetryable(err) || attempt == r.Attempts {
			return resp, err
		}

		r.logger().Warn("task runner failed, retrying",
			"runner", r.Name(),
			"attempt", attempt,
			"max_attempts", r.Attempts,
			"error", err.Error(),
		)

		select {
		case <-ctx.Done():
			return resp, err
		case <-time.After(r.Delay):
		}
	}
	return resp, err
}

func (r *RetryRunner) logger() *logging.Logger {
	if r.Logger == nil {
		return logging.NopLogger()
	}
	return r.Logger
}

// -----------------------------------------------------------------------------
// Timeout
// -----------------------------------------------------------------------------

// TimeoutRunner bounds each Run with a deadline.
type TimeoutRunner struct {
	Runner  executor.TaskRunner
	Timeout time.Duration
}

// WithTimeout wraps r so that each Run is cancelled after d. A run cut short
// by the deadline returns an *errors.TimeoutError. d <= 0 returns r unchanged.
func WithTimeout(r executor.TaskRunner, d time.Duration) executor.TaskRunner {
	if d <= 0 {
		return r
	}
	return &TimeoutRunner{Runner: r, Timeout: d}
}

// Name implements executor.Namer.
func (r *TimeoutRunner) Name() string {
	return Name(r.Runner)
}

// Run implements executor.TaskRunner.
func (r *TimeoutRunner) Run(ctx context.Context, instructions string, class executor.ResourceClass) (executor.Response, error) {
	tctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	resp, err := r.Runner.Run(tctx, instructions, class)
	if resp.Success {
		return resp, err
	}
	// Only our own deadline is a timeout; cancellation of the parent is not.
	if ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return resp, errors.NewTimeoutError("task runner "+Name(r.Runner), r.Timeout).WithCause(err)
	}
	return resp, err
}
