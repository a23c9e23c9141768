// Package executor runs a single plan step through a task runner.
//
// It owns two concerns: choosing the resource class a step runs with, which
// is a pure function of the group's strategy and the step, and converting
// whatever the task runner does (success, reported failure, error or panic)
// into a structured plan.StepResult. Callers never see a runner error.
package executor

import (
	"context"
)

// ResourceClass is the capability/cost tier a step is executed with.
type ResourceClass string

const (
	// ClassLight is the lower-capability, lower-cost class.
	ClassLight ResourceClass = "light"

	// ClassHeavy is the higher-capability, higher-cost class.
	ClassHeavy ResourceClass = "heavy"
)

// String returns the string representation of the class.
func (c ResourceClass) String() string {
	return string(c)
}

// IsValid returns true if this is a recognized class.
func (c ResourceClass) IsValid() bool {
	return c == ClassLight || c == ClassHeavy
}

// Response is what a task runner reports for one invocation.
type Response struct {
	// Output is the runner's full output. The executor truncates it before
	// storing it on the step.
	Output string

	// Success is the runner's own verdict. A false value is a step failure,
	// not an error.
	Success bool

	// CommitRef optionally correlates the run with an external artifact such
	// as a commit SHA.
	CommitRef string
}

// TaskRunner executes step instructions with a resource class hint.
//
// Run blocks until the work finishes. It returns an error only when the work
// could not be carried out at all (process failed to start, transport
// failure, timeout); a run that completed but failed reports
// Response.Success == false instead.
type TaskRunner interface {
	Run(ctx context.Context, instructions string, class ResourceClass) (Response, error)
}

// Namer is implemented by runners that want their name in step assignees.
type Namer interface {
	Name() string
}

// TaskRunnerFunc adapts a function to the TaskRunner interface.
type TaskRunnerFunc func(ctx context.Context, instructions string, class ResourceClass) (Response, error)

// Run calls f.
func (f TaskRunnerFunc) Run(ctx context.Context, instructions string, class ResourceClass) (Response, error) {
	return f(ctx, instructions, class)
}
