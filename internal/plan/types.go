// Package plan defines the step/group plan model and the parser that builds it
// from plan text.
//
// This package defines the core data types used throughout a run:
//   - Model: Plan, Group, Step, Status, Strategy
//   - Results: StepResult, GroupResult, PlanResult
//   - Validation: ValidationResult, ValidationMessage, ValidationSeverity
//
// A Plan is built once per run by the parser and is read-only in shape for the
// duration of the run. Only Step status fields are mutated, and only by the
// orchestrator invocation that owns the Plan.
package plan

// -----------------------------------------------------------------------------
// Step Status
// -----------------------------------------------------------------------------

// Status represents the run state of a single step.
//
// Steps are created in StatusPending and move through StatusInProgress to
// StatusCompleted or StatusFailed, or directly to StatusSkipped when an
// earlier step or a dependency group failed.
type Status string

const (
	// StatusPending indicates the step has not been started.
	StatusPending Status = "pending"

	// StatusBlocked indicates a pending step whose group is still waiting on
	// unfinished dependency groups. It is a derived, display-only status.
	StatusBlocked Status = "blocked"

	// StatusInProgress indicates the step has been handed to a task runner.
	StatusInProgress Status = "in_progress"

	// StatusCompleted indicates the step finished successfully.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the task runner reported failure or errored.
	StatusFailed Status = "failed"

	// StatusSkipped indicates the step was never executed because an earlier
	// step in its sequential group or one of its group's dependencies failed.
	StatusSkipped Status = "skipped"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if the status is a final outcome for a run.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

// IsValid returns true if this is a recognized status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusBlocked, StatusInProgress, StatusCompleted, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// -----------------------------------------------------------------------------
// Resource Strategy
// -----------------------------------------------------------------------------

// Strategy selects which resource class a group's steps run with.
type Strategy string

const (
	// StrategyAuto picks the heavy class for long step descriptions.
	StrategyAuto Strategy = "auto"

	// StrategyHeavy always uses the higher-capability class.
	StrategyHeavy Strategy = "heavy"

	// StrategyLight always uses the lower-cost class.
	StrategyLight Strategy = "light"

	// StrategyHeavyForBuild uses the heavy class for steps whose title reads
	// like implementation work and the light class otherwise.
	StrategyHeavyForBuild Strategy = "heavy-for-build"
)

// String returns the string representation of the strategy.
func (s Strategy) String() string {
	return string(s)
}

// IsValid returns true if this is a recognized strategy value.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyAuto, StrategyHeavy, StrategyLight, StrategyHeavyForBuild:
		return true
	default:
		return false
	}
}

// ValidStrategies returns every recognized strategy in a stable order.
func ValidStrategies() []Strategy {
	return []Strategy{StrategyAuto, StrategyHeavy, StrategyLight, StrategyHeavyForBuild}
}

// -----------------------------------------------------------------------------
// Step
// -----------------------------------------------------------------------------

// Step is the smallest unit of schedulable work.
type Step struct {
	// ID is unique within a plan and has the form "<group id>.<n>".
	ID string `json:"id" yaml:"id"`

	// GroupID is a back-reference to the enclosing group.
	GroupID string `json:"group_id" yaml:"group_id"`

	Title string `json:"title" yaml:"title"`

	// Description is the full instruction text handed to the task runner.
	Description string `json:"description" yaml:"description"`

	Status Status `json:"status" yaml:"status"`

	// Assignee identifies the runner session that executed the step.
	Assignee string `json:"assignee,omitempty" yaml:"assignee,omitempty"`

	// ResultSummary holds truncated output of a successful run.
	ResultSummary string `json:"result_summary,omitempty" yaml:"result_summary,omitempty"`

	// ErrorMessage holds truncated output or error text of a failed run.
	ErrorMessage string `json:"error_message,omitempty" yaml:"error_message,omitempty"`

	// CommitRef is an optional external correlation id such as a commit SHA.
	CommitRef string `json:"commit_ref,omitempty" yaml:"commit_ref,omitempty"`
}

// IsDone returns true if the step reached a terminal status.
func (s *Step) IsDone() bool {
	return s.Status.IsTerminal()
}

// -----------------------------------------------------------------------------
// Group
// -----------------------------------------------------------------------------

// Group is an ordered or parallel bundle of steps sharing dependency and
// concurrency settings.
type Group struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`

	// Parallel runs steps concurrently instead of strictly in declared order.
	Parallel bool `json:"parallel" yaml:"parallel"`

	// DependsOn lists group ids that must have a result before this group
	// becomes eligible.
	DependsOn []string `json:"depends_on" yaml:"depends_on"`

	Strategy Strategy `json:"strategy" yaml:"strategy"`

	// Steps is in declaration order; order is significant for sequential groups.
	Steps []*Step `json:"steps" yaml:"steps"`
}

// HasDependencies returns true if this group depends on other groups.
func (g *Group) HasDependencies() bool {
	return len(g.DependsOn) > 0
}

// AllCompleted returns true if every step in the group completed successfully.
// A group with no steps is trivially complete.
func (g *Group) AllCompleted() bool {
	for _, s := range g.Steps {
		if s.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// AnyFailed returns true if at least one step in the group failed.
func (g *Group) AnyFailed() bool {
	for _, s := range g.Steps {
		if s.Status == StatusFailed {
			return true
		}
	}
	return false
}

// Step returns the step with the given ID, or nil if not found.
func (g *Group) Step(stepID string) *Step {
	for _, s := range g.Steps {
		if s.ID == stepID {
			return s
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Plan
// -----------------------------------------------------------------------------

// Plan is the full parsed set of groups for one run.
type Plan struct {
	// SourceID identifies where the plan came from (usually a file path).
	// It is only used for logging and state correlation.
	SourceID string `json:"source_id" yaml:"source_id"`

	// Groups is in declaration order, which is also the tie-break order when
	// several groups are eligible at once.
	Groups []*Group `json:"groups" yaml:"groups"`

	// Warnings collects non-fatal parser diagnostics.
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// IsEmpty returns true if the plan has no groups. Callers treat an empty plan
// as a signal to abort rather than run nothing.
func (p *Plan) IsEmpty() bool {
	return len(p.Groups) == 0
}

// GroupCount returns the number of groups in the plan.
func (p *Plan) GroupCount() int {
	return len(p.Groups)
}

// TotalSteps returns the number of steps across all groups.
func (p *Plan) TotalSteps() int {
	n := 0
	for _, g := range p.Groups {
		n += len(g.Steps)
	}
	return n
}

// CompletedSteps returns the number of steps in StatusCompleted.
func (p *Plan) CompletedSteps() int {
	n := 0
	for _, g := range p.Groups {
		for _, s := range g.Steps {
			if s.Status == StatusCompleted {
				n++
			}
		}
	}
	return n
}

// Group returns the group with the given ID, or nil if not found.
func (p *Plan) Group(groupID string) *Group {
	for _, g := range p.Groups {
		if g.ID == groupID {
			return g
		}
	}
	return nil
}

// Step returns the step with the given ID, or nil if not found.
func (p *Plan) Step(stepID string) *Step {
	for _, g := range p.Groups {
		if s := g.Step(stepID); s != nil {
			return s
		}
	}
	return nil
}

// Steps returns every step in declaration order.
func (p *Plan) Steps() []*Step {
	steps := make([]*Step, 0, p.TotalSteps())
	for _, g := range p.Groups {
		steps = append(steps, g.Steps...)
	}
	return steps
}

// DisplayStatus returns the status to show for a step. Pending steps whose
// group still waits on a dependency group that has not fully completed are
// reported as StatusBlocked.
func (p *Plan) DisplayStatus(s *Step) Status {
	if s.Status != StatusPending {
		return s.Status
	}
	g := p.Group(s.GroupID)
	if g == nil {
		return s.Status
	}
	for _, depID := range g.DependsOn {
		dep := p.Group(depID)
		if dep == nil || !dep.AllCompleted() {
			return StatusBlocked
		}
	}
	return s.Status
}
