package state

import (
	"github.com/Iron-Ham/phasekit/internal/plan"
)

// ReconcileResult summarizes how a snapshot was applied to a plan.
type ReconcileResult struct {
	// Restored is the number of steps marked completed from the snapshot.
	Restored int
	// Reset is the number of steps whose saved status was discarded.
	Reset int
	// Unknown lists snapshot step ids that no longer exist in the plan.
	Unknown []string
}

// Reconcile prepares a freshly parsed plan for a resumed run. Steps the
// snapshot records as completed become completed again, with their
// assignee, summary and commit ref. Every other step starts over as pending,
// so failed, skipped and interrupted steps are retried.
//
// Steps are matched by id. Only status fields of p are modified.
func Reconcile(p *plan.Plan, snap *Snapshot) ReconcileResult {
	var res ReconcileResult
	if p == nil || snap == nil {
		return res
	}

	for _, s := range p.Steps() {
		saved := snap.Step(s.ID)
		if saved == nil {
			continue
		}
		if saved.Status == plan.StatusCompleted {
			s.Status = plan.StatusCompleted
			s.Assignee = saved.Assignee
			s.ResultSummary = saved.ResultSummary
			s.ErrorMessage = ""
			s.CommitRef = saved.CommitRef
			res.Restored++
			continue
		}
		if saved.Status != plan.StatusPending {
			res.Reset++
		}
		resetStep(s)
	}

	res.Unknown = unknownSteps(p, snap)
	return res
}

// Restore copies every saved status onto p, for displaying progress. Unlike
// Reconcile it keeps failed, skipped and in-progress statuses. Unrecognized
// statuses are ignored.
func Restore(p *plan.Plan, snap *Snapshot) ReconcileResult {
	var res ReconcileResult
	if p == nil || snap == nil {
		return res
	}

	for _, s := range p.Steps() {
		saved := snap.Step(s.ID)
		if saved == nil || !saved.Status.IsValid() {
			continue
		}
		s.Status = saved.Status
		s.Assignee = saved.Assignee
		s.ResultSummary = saved.ResultSummary
		s.ErrorMessage = saved.ErrorMessage
		s.CommitRef = saved.CommitRef
		res.Restored++
	}

	res.Unknown = unknownSteps(p, snap)
	return res
}

func resetStep(s *plan.Step) {
	s.Status = plan.StatusPending
	s.Assignee = ""
	s.ResultSummary = ""
	s.ErrorMessage = ""
	s.CommitRef = ""
}

func unknownSteps(p *plan.Plan, snap *Snapshot) []string {
	var unknown []string
	for _, st := range snap.Steps {
		if p.Step(st.ID) == nil {
			unknown = append(unknown, st.ID)
		}
	}
	return unknown
}
