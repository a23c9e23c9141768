// Package errors provides centralized error definitions and error handling
// utilities for phasekit. It defines sentinel errors, domain-specific error
// types, semantic error types and classification helpers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - PlanError: a plan source could not be read or failed validation
//   - SchedulerError: a run could not make progress (stalled groups)
//   - RunnerError: a task runner could not be invoked (transport failure)
//   - StateError: run state could not be loaded or saved
//
// Semantic errors represent common error conditions:
//   - ValidationError: invalid input or configuration
//   - TimeoutError: operation timed out
//
// Step-level failures are not errors: the executor records them on the
// StepResult. Only structural problems travel as Go errors.
//
// # Usage
//
//	err := errors.NewSchedulerError("no eligible groups", errors.ErrStalledGroups).
//		WithGroups("C")
//
//	if errors.Is(err, errors.ErrStalledGroups) { ... }
//
//	var runnerErr *errors.RunnerError
//	if errors.As(err, &runnerErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions so callers can import only this
// package for error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Plan-related sentinel errors
var (
	// ErrPlanEmpty indicates that a plan source produced no groups.
	ErrPlanEmpty = New("plan has no groups")
	// ErrPlanInvalid indicates that a plan failed validation.
	ErrPlanInvalid = New("plan is invalid")
)

// Scheduler-related sentinel errors
var (
	// ErrStalledGroups indicates that some groups can never become eligible
	// because of a cyclic or dangling dependency.
	ErrStalledGroups = New("groups stalled on unsatisfiable dependencies")
)

// Runner-related sentinel errors
var (
	// ErrRunnerFailed indicates that a task runner could not be invoked.
	ErrRunnerFailed = New("task runner failed")
)

// State-related sentinel errors
var (
	// ErrStateNotFound indicates that no saved state exists for a plan.
	ErrStateNotFound = New("run state not found")
	// ErrStateCorrupted indicates that saved state could not be decoded.
	ErrStateCorrupted = New("run state corrupted")
	// ErrStateLocked indicates that another process holds the state lock.
	ErrStateLocked = New("run state is locked")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// PhasekitError is the interface shared by every error type in this package.
type PhasekitError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the operation may succeed on retry.
	IsRetryable() bool
}

type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error {
	return e.cause
}

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

func (e *baseError) Severity() Severity {
	return e.severity
}

func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// format renders "prefix [k=v, ...]: message: cause".
func (e *baseError) format(prefix string, parts []string) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// PlanError represents errors reading or validating a plan.
//
// Example:
//
//	err := errors.NewPlanError("plan failed validation", errors.ErrPlanInvalid).
//		WithSource("plan.md").WithGroup("B")
//	fmt.Println(err) // "plan error [source=plan.md, group=B]: plan failed validation: plan is invalid"
type PlanError struct {
	baseError
	SourceID string
	GroupID  string
	StepID   string
}

// NewPlanError creates a new PlanError.
func NewPlanError(message string, cause error) *PlanError {
	return &PlanError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithSource adds the plan source id to the error context.
func (e *PlanError) WithSource(sourceID string) *PlanError {
	e.SourceID = sourceID
	return e
}

// WithGroup adds a group id to the error context.
func (e *PlanError) WithGroup(groupID string) *PlanError {
	e.GroupID = groupID
	return e
}

// WithStep adds a step id to the error context.
func (e *PlanError) WithStep(stepID string) *PlanError {
	e.StepID = stepID
	return e
}

// Error returns the formatted error message.
func (e *PlanError) Error() string {
	var parts []string
	if e.SourceID != "" {
		parts = append(parts, "source="+e.SourceID)
	}
	if e.GroupID != "" {
		parts = append(parts, "group="+e.GroupID)
	}
	if e.StepID != "" {
		parts = append(parts, "step="+e.StepID)
	}
	return e.format("plan error", parts)
}

// Is checks if this error matches the target.
func (e *PlanError) Is(target error) bool {
	if _, ok := target.(*PlanError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// SchedulerError represents a run that could not make progress.
//
// Example:
//
//	err := errors.NewSchedulerError("no eligible groups remain", errors.ErrStalledGroups).
//		WithGroups("C", "D")
type SchedulerError struct {
	baseError
	GroupIDs []string
}

// NewSchedulerError creates a new SchedulerError.
func NewSchedulerError(message string, cause error) *SchedulerError {
	return &SchedulerError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithGroups records the group ids involved.
func (e *SchedulerError) WithGroups(ids ...string) *SchedulerError {
	e.GroupIDs = append(e.GroupIDs, ids...)
	return e
}

// Error returns the formatted error message.
func (e *SchedulerError) Error() string {
	var parts []string
	if len(e.GroupIDs) > 0 {
		parts = append(parts, "groups="+strings.Join(e.GroupIDs, ","))
	}
	return e.format("scheduler error", parts)
}

// Is checks if this error matches the target.
func (e *SchedulerError) Is(target error) bool {
	if _, ok := target.(*SchedulerError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// RunnerError represents a task runner that could not be invoked or whose
// process died. A runner that ran and reported failure is not an error.
//
// Example:
//
//	err := errors.NewRunnerError("failed to start claude", execErr).
//		WithRunner("claude").WithExitCode(127)
type RunnerError struct {
	baseError
	Runner   string
	ExitCode int
	Output   string
}

// NewRunnerError creates a new RunnerError. Runner errors are retryable by
// default since most come from transient process or transport failures.
func NewRunnerError(message string, cause error) *RunnerError {
	return &RunnerError{
		baseError: baseError{
			message:   message,
			cause:     cause,
			severity:  SeverityError,
			retryable: true,
		},
		ExitCode: -1,
	}
}

// WithRunner adds the runner name to the error context.
func (e *RunnerError) WithRunner(name string) *RunnerError {
	e.Runner = name
	return e
}

// WithExitCode records the process exit code.
func (e *RunnerError) WithExitCode(code int) *RunnerError {
	e.ExitCode = code
	return e
}

// WithOutput records captured process output.
func (e *RunnerError) WithOutput(output string) *RunnerError {
	e.Output = output
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *RunnerError) WithRetryable(r bool) *RunnerError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *RunnerError) Error() string {
	var parts []string
	if e.Runner != "" {
		parts = append(parts, "runner="+e.Runner)
	}
	if e.ExitCode >= 0 {
		parts = append(parts, fmt.Sprintf("exit=%d", e.ExitCode))
	}
	msg := e.format("runner error", parts)
	if e.Output != "" {
		msg = fmt.Sprintf("%s\noutput: %s", msg, e.Output)
	}
	return msg
}

// Is checks if this error matches the target.
func (e *RunnerError) Is(target error) bool {
	if _, ok := target.(*RunnerError); ok {
		return true
	}
	if target == ErrRunnerFailed {
		return true
	}
	return e.baseError.Is(target)
}

// StateError represents errors loading or saving run state.
//
// Example:
//
//	err := errors.NewStateError("failed to decode snapshot", errors.ErrStateCorrupted).
//		WithBackend("file").WithPath(".phasekit/state/plan.yaml")
type StateError struct {
	baseError
	Backend string
	Path    string
}

// NewStateError creates a new StateError.
func NewStateError(message string, cause error) *StateError {
	return &StateError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithBackend adds the store backend name to the error context.
func (e *StateError) WithBackend(backend string) *StateError {
	e.Backend = backend
	return e
}

// WithPath adds a file or database path to the error context.
func (e *StateError) WithPath(path string) *StateError {
	e.Path = path
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *StateError) WithRetryable(r bool) *StateError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *StateError) Error() string {
	var parts []string
	if e.Backend != "" {
		parts = append(parts, "backend="+e.Backend)
	}
	if e.Path != "" {
		parts = append(parts, "path="+e.Path)
	}
	return e.format("state error", parts)
}

// Is checks if this error matches the target.
func (e *StateError) Is(target error) bool {
	if _, ok := target.(*StateError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input or configuration.
//
// Example:
//
//	err := errors.NewValidationError("must be at least 1").
//		WithField("scheduler.max_parallel").WithValue(0)
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:  message,
			severity: SeverityWarning,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, "field="+e.Field)
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return e.format("validation error", parts)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("step A.1", 10*time.Minute)
//	fmt.Println(err) // "timeout error: step A.1 (timeout: 10m0s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError. Timeouts are retryable by
// default.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:   operation,
			severity:  SeverityWarning,
			retryable: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *TimeoutError) WithRetryable(r bool) *TimeoutError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if target == ErrTimeout {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry: a PhasekitError marked retryable or anything
// wrapping ErrTimeout. Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if Is(err, ErrCanceled) || Is(err, context.Canceled) {
		return false
	}

	var pkErr PhasekitError
	if As(err, &pkErr) {
		return pkErr.IsRetryable()
	}
	return Is(err, ErrTimeout)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement PhasekitError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var pkErr PhasekitError
	if As(err, &pkErr) {
		return pkErr.Severity()
	}
	return SeverityError
}
