package plan

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/phasekit/internal/errors"
)

// ValidationSeverity represents the severity level of a validation message.
// Errors prevent execution while warnings are advisory.
type ValidationSeverity string

const (
	// SeverityError indicates a blocking issue such as a dangling dependency.
	SeverityError ValidationSeverity = "error"

	// SeverityWarning indicates a potential issue such as an empty group.
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationMessage is a single validation issue.
type ValidationMessage struct {
	Severity ValidationSeverity `json:"severity"`
	Message  string             `json:"message"`

	// GroupID or StepID identify what the message relates to. Both are
	// empty for plan-level issues.
	GroupID string `json:"group_id,omitempty"`
	StepID  string `json:"step_id,omitempty"`
}

// String formats the message for display.
func (m ValidationMessage) String() string {
	var subject string
	switch {
	case m.StepID != "":
		subject = "step " + m.StepID + ": "
	case m.GroupID != "":
		subject = "group " + m.GroupID + ": "
	}
	return fmt.Sprintf("[%s] %s%s", m.Severity, subject, m.Message)
}

// ValidationResult contains every message found for a plan.
type ValidationResult struct {
	Messages     []ValidationMessage `json:"messages"`
	ErrorCount   int                 `json:"error_count"`
	WarningCount int                 `json:"warning_count"`

	empty bool
}

// IsValid returns true if there are no error-level messages.
func (v *ValidationResult) IsValid() bool {
	return v.ErrorCount == 0
}

// HasWarnings returns true if there are any warning-level messages.
func (v *ValidationResult) HasWarnings() bool {
	return v.WarningCount > 0
}

// Errors returns only the error-level messages.
func (v *ValidationResult) Errors() []ValidationMessage {
	var out []ValidationMessage
	for _, m := range v.Messages {
		if m.Severity == SeverityError {
			out = append(out, m)
		}
	}
	return out
}

// Err returns a single error summarizing every error-level message, or nil
// if the plan is valid. The error wraps errors.ErrPlanInvalid, and also
// errors.ErrPlanEmpty when the plan has no groups.
func (v *ValidationResult) Err() error {
	errs := v.Errors()
	if len(errs) == 0 {
		return nil
	}
	if v.empty {
		return fmt.Errorf("%w (%w)", errors.ErrPlanInvalid, errors.ErrPlanEmpty)
	}
	parts := make([]string, len(errs))
	for i, m := range errs {
		parts[i] = m.String()
	}
	return fmt.Errorf("%w: %d validation error(s): %s", errors.ErrPlanInvalid, len(errs), strings.Join(parts, "; "))
}

func (v *ValidationResult) add(m ValidationMessage) {
	switch m.Severity {
	case SeverityError:
		v.ErrorCount++
	case SeverityWarning:
		v.WarningCount++
	}
	v.Messages = append(v.Messages, m)
}

// Validate checks a parsed plan for structural problems: no groups,
// duplicate group or step ids, self dependencies, dependencies on groups that
// do not exist, and unknown strategies. Empty groups and steps without
// instructions are reported as warnings.
//
// Cycles are not detected here; the orchestrator reports groups caught in a
// cycle as stalled.
func Validate(p *Plan) *ValidationResult {
	result := &ValidationResult{Messages: make([]ValidationMessage, 0)}

	if p == nil || p.IsEmpty() {
		result.empty = true
		result.add(ValidationMessage{
			Severity: SeverityError,
			Message:  "plan has no groups",
		})
		return result
	}

	groupIDs := make(map[string]bool, len(p.Groups))
	for _, g := range p.Groups {
		if groupIDs[g.ID] {
			result.add(ValidationMessage{
				Severity: SeverityError,
				Message:  "duplicate group id",
				GroupID:  g.ID,
			})
		}
		groupIDs[g.ID] = true
	}

	stepIDs := make(map[string]bool, p.TotalSteps())
	for _, g := range p.Groups {
		if !g.Strategy.IsValid() {
			result.add(ValidationMessage{
				Severity: SeverityError,
				Message:  fmt.Sprintf("unknown resource strategy %q", g.Strategy),
				GroupID:  g.ID,
			})
		}

		for _, dep := range g.DependsOn {
			switch {
			case dep == g.ID:
				result.add(ValidationMessage{
					Severity: SeverityError,
					Message:  "group depends on itself",
					GroupID:  g.ID,
				})
			case !groupIDs[dep]:
				result.add(ValidationMessage{
					Severity: SeverityError,
					Message:  fmt.Sprintf("depends on unknown group %q", dep),
					GroupID:  g.ID,
				})
			}
		}

		if len(g.Steps) == 0 {
			result.add(ValidationMessage{
				Severity: SeverityWarning,
				Message:  "group has no steps",
				GroupID:  g.ID,
			})
		}

		for _, s := range g.Steps {
			if stepIDs[s.ID] {
				result.add(ValidationMessage{
					Severity: SeverityError,
					Message:  "duplicate step id",
					StepID:   s.ID,
				})
			}
			stepIDs[s.ID] = true

			if strings.TrimSpace(s.Description) == "" {
				result.add(ValidationMessage{
					Severity: SeverityWarning,
					Message:  "step has no description; the title is used as instructions",
					StepID:   s.ID,
				})
			}
		}
	}

	return result
}
