package orchestrator

import (
	"github.com/Iron-Ham/phasekit/internal/plan"
)

// EventHandler receives notifications as a run progresses.
//
// OnGroupStarted and OnGroupFinished are called from the goroutine running
// ExecutePlan. OnStepFinished is called from pool workers for parallel groups,
// so implementations must be safe for concurrent use.
type EventHandler interface {
	// OnGroupStarted is called before the first step of a group is executed.
	// It is not called for groups skipped because of a failed dependency.
	OnGroupStarted(group *plan.Group)

	// OnStepFinished is called once per step with its final result, including
	// skipped steps and completed steps reused from an earlier run.
	OnStepFinished(group *plan.Group, step *plan.Step, result plan.StepResult)

	// OnGroupFinished is called once per group that receives a result.
	OnGroupFinished(group *plan.Group, result plan.GroupResult)
}

// EventFuncs adapts optional callbacks to the EventHandler interface.
// Nil fields are ignored.
type EventFuncs struct {
	GroupStarted  func(group *plan.Group)
	StepFinished  func(group *plan.Group, step *plan.Step, result plan.StepResult)
	GroupFinished func(group *plan.Group, result plan.GroupResult)
}

// OnGroupStarted calls f.GroupStarted if set.
func (f EventFuncs) OnGroupStarted(group *plan.Group) {
	if f.GroupStarted != nil {
		f.GroupStarted(group)
	}
}

// OnStepFinished calls f.StepFinished if set.
func (f EventFuncs) OnStepFinished(group *plan.Group, step *plan.Step, result plan.StepResult) {
	if f.StepFinished != nil {
		f.StepFinished(group, step, result)
	}
}

// OnGroupFinished calls f.GroupFinished if set.
func (f EventFuncs) OnGroupFinished(group *plan.Group, result plan.GroupResult) {
	if f.GroupFinished != nil {
		f.GroupFinished(group, result)
	}
}

// multiHandler fans events out to several handlers in order.
type multiHandler []EventHandler

// Handlers combines several handlers into one. Nil handlers are dropped.
func Handlers(handlers ...EventHandler) EventHandler {
	var m multiHandler
	for _, h := range handlers {
		if h != nil {
			m = append(m, h)
		}
	}
	return m
}

func (m multiHandler) OnGroupStarted(group *plan.Group) {
	for _, h := range m {
		h.OnGroupStarted(group)
	}
}

func (m multiHandler) OnStepFinished(group *plan.Group, step *plan.Step, result plan.StepResult) {
	for _, h := range m {
		h.OnStepFinished(group, step, result)
	}
}

func (m multiHandler) OnGroupFinished(group *plan.Group, result plan.GroupResult) {
	for _, h := range m {
		h.OnGroupFinished(group, result)
	}
}
