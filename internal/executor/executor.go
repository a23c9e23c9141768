package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/phasekit/internal/logging"
	"github.com/Iron-Ham/phasekit/internal/plan"
	"github.com/Iron-Ham/phasekit/internal/util"
)

// DefaultOutputLimit is the number of runes of runner output kept on a step.
const DefaultOutputLimit = 500

// Executor executes one step at a time against a TaskRunner.
// It is safe for concurrent use as long as each call receives a different
// step.
type Executor struct {
	runner      TaskRunner
	selector    Selector
	outputLimit int
	logger      *logging.Logger
	newID       func() string
}

// Option configures an Executor.
type Option func(*Executor)

// WithOutputLimit sets how many runes of output are stored on a step.
// Zero or less disables truncation.
func WithOutputLimit(n int) Option {
	return func(e *Executor) {
		e.outputLimit = n
	}
}

// WithAutoThreshold sets the description length above which the auto
// strategy selects the heavy class.
func WithAutoThreshold(n int) Option {
	return func(e *Executor) {
		e.selector.AutoThreshold = n
	}
}

// WithLogger sets the logger used for step transitions.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Executor that runs steps through runner.
func New(runner TaskRunner, opts ...Option) *Executor {
	e := &Executor{
		runner:      runner,
		outputLimit: DefaultOutputLimit,
		logger:      logging.NopLogger(),
		newID:       func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Selector returns the resource selector the executor uses.
func (e *Executor) Selector() Selector {
	return e.selector
}

// Execute runs step through the task runner and returns its result.
//
// The step is moved to StatusInProgress and given an assignee before the
// runner is called, then to StatusCompleted or StatusFailed. Runner errors
// and panics become failed results; Execute never returns an error and never
// panics because of the runner.
func (e *Executor) Execute(ctx context.Context, step *plan.Step, group *plan.Group) plan.StepResult {
	class := e.selector.Select(group.Strategy, step)

	step.Status = plan.StatusInProgress
	step.Assignee = e.assignee()
	step.ResultSummary = ""
	step.ErrorMessage = ""

	logger := e.logger.WithGroup(group.ID).WithStep(step.ID)
	logger.Info("step started", "class", class.String(), "assignee", step.Assignee)
	start := time.Now()

	resp, err := e.run(ctx, step, class)

	result := plan.StepResult{StepID: step.ID}
	switch {
	case err != nil:
		step.Status = plan.StatusFailed
		step.ErrorMessage = util.TruncateOutput(err.Error(), e.outputLimit)
		result.ErrorMessage = step.ErrorMessage
		logger.Warn("step errored",
			"error", err.Error(),
			"duration_ms", time.Since(start).Milliseconds(),
		)

	case !resp.Success:
		step.Status = plan.StatusFailed
		msg := resp.Output
		if strings.TrimSpace(msg) == "" {
			msg = "task runner reported failure without output"
		}
		step.ErrorMessage = util.TruncateOutput(msg, e.outputLimit)
		step.CommitRef = resp.CommitRef
		result.ErrorMessage = step.ErrorMessage
		result.Output = util.TruncateOutput(resp.Output, e.outputLimit)
		logger.Warn("step failed",
			"error", util.FirstLine(step.ErrorMessage),
			"duration_ms", time.Since(start).Milliseconds(),
		)

	default:
		step.Status = plan.StatusCompleted
		step.ResultSummary = util.TruncateOutput(resp.Output, e.outputLimit)
		step.CommitRef = resp.CommitRef
		result.Success = true
		result.Output = step.ResultSummary
		logger.Info("step completed",
			"commit_ref", resp.CommitRef,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	result.Status = step.Status
	return result
}

// run invokes the runner, converting a panic into an error.
func (e *Executor) run(ctx context.Context, step *plan.Step, class ResourceClass) (resp Response, err error) {
	if e.runner == nil {
		return Response{}, fmt.Errorf("no task runner configured")
	}

	var pc panics.Catcher
	pc.Try(func() {
		resp, err = e.runner.Run(ctx, Instructions(step), class)
	})
	if r := pc.Recovered(); r != nil {
		return Response{}, fmt.Errorf("task runner panicked: %v", r.Value)
	}
	return resp, err
}

func (e *Executor) assignee() string {
	name := "runner"
	if n, ok := e.runner.(Namer); ok && n.Name() != "" {
		name = n.Name()
	}
	id := e.newID()
	if len(id) > 8 {
		id = id[:8]
	}
	return name + "/" + id
}

// Instructions returns the text handed to the task runner for step: its
// description, or its title when the description is empty.
func Instructions(step *plan.Step) string {
	if strings.TrimSpace(step.Description) != "" {
		return step.Description
	}
	return step.Title
}
