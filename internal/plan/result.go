package plan

import (
	"time"
)

// StepResult is the outcome of executing, skipping or reusing one step.
type StepResult struct {
	StepID       string `json:"step_id" yaml:"step_id"`
	Status       Status `json:"status" yaml:"status"`
	Success      bool   `json:"success" yaml:"success"`
	Output       string `json:"output,omitempty" yaml:"output,omitempty"`
	ErrorMessage string `json:"error_message,omitempty" yaml:"error_message,omitempty"`
}

// GroupResult aggregates the step results of one group.
type GroupResult struct {
	GroupID string `json:"group_id" yaml:"group_id"`
	Success bool   `json:"success" yaml:"success"`

	// Skipped is true when the whole group was skipped because a dependency
	// group failed. No task runner call happened for any of its steps.
	Skipped bool `json:"skipped,omitempty" yaml:"skipped,omitempty"`

	// StepResults is in declared step order, for parallel groups too.
	StepResults  []StepResult  `json:"step_results" yaml:"step_results"`
	ErrorMessage string        `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	Duration     time.Duration `json:"duration" yaml:"duration"`
}

// Count returns how many step results have the given status.
func (r *GroupResult) Count(status Status) int {
	n := 0
	for _, sr := range r.StepResults {
		if sr.Status == status {
			n++
		}
	}
	return n
}

// FailedStepIDs returns the ids of steps that failed (not skipped).
func (r *GroupResult) FailedStepIDs() []string {
	var ids []string
	for _, sr := range r.StepResults {
		if sr.Status == StatusFailed {
			ids = append(ids, sr.StepID)
		}
	}
	return ids
}

// PlanResult is the complete, inspectable record of one run.
type PlanResult struct {
	Success bool `json:"success" yaml:"success"`

	// GroupResults is in the order groups finished, which respects both
	// dependencies and declaration order.
	GroupResults []GroupResult `json:"group_results" yaml:"group_results"`

	// CompletedSteps counts successful step results only.
	CompletedSteps int `json:"completed_steps" yaml:"completed_steps"`
	TotalSteps     int `json:"total_steps" yaml:"total_steps"`

	ErrorMessage string `json:"error_message,omitempty" yaml:"error_message,omitempty"`

	// StalledGroups lists groups that could never become eligible because of
	// a cyclic or dangling dependency. They have no GroupResult.
	StalledGroups []string `json:"stalled_groups,omitempty" yaml:"stalled_groups,omitempty"`

	Duration time.Duration `json:"duration" yaml:"duration"`
}

// GroupResult returns the result for the given group, or nil if the group
// never produced one.
func (r *PlanResult) GroupResult(groupID string) *GroupResult {
	for i := range r.GroupResults {
		if r.GroupResults[i].GroupID == groupID {
			return &r.GroupResults[i]
		}
	}
	return nil
}

// FailedGroupIDs returns the ids of groups whose result reports failure.
func (r *PlanResult) FailedGroupIDs() []string {
	var ids []string
	for _, gr := range r.GroupResults {
		if !gr.Success {
			ids = append(ids, gr.GroupID)
		}
	}
	return ids
}
