package state

import (
	"sync"
	"time"

	"github.com/Iron-Ham/phasekit/internal/logging"
	"github.com/Iron-Ham/phasekit/internal/plan"
)

// Recorder keeps a snapshot of a running plan in a Store. It implements the
// orchestrator's EventHandler and saves after every finished step and group.
//
// Save failures are logged and remembered but never stop the run; Err
// returns the first one.
type Recorder struct {
	mu     sync.Mutex
	store  Store
	snap   *Snapshot
	logger *logging.Logger
	err    error
	now    func() time.Time
}

// NewRecorder creates a Recorder for p. The initial snapshot captures p's
// current statuses, so steps restored by Reconcile are recorded as completed.
func NewRecorder(store Store, p *plan.Plan, runID string, logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Recorder{
		store:  store,
		snap:   NewSnapshot(p, runID),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Start saves the initial snapshot.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveLocked()
}

// OnGroupStarted records the running group.
func (r *Recorder) OnGroupStarted(group *plan.Group) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.CurrentGroup = group.ID
	_ = r.saveLocked()
}

// OnStepFinished records the final status of step. Only the finished step is
// read, since other steps of a parallel group may still be running.
func (r *Recorder) OnStepFinished(_ *plan.Group, step *plan.Step, _ plan.StepResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.SetStep(StepStateOf(step, r.now()))
	_ = r.saveLocked()
}

// OnGroupFinished saves the snapshot once the group has a result.
func (r *Recorder) OnGroupFinished(group *plan.Group, _ plan.GroupResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snap.CurrentGroup == group.ID {
		r.snap.CurrentGroup = ""
	}
	_ = r.saveLocked()
}

// Finish marks the run finished with the plan result and saves. A nil
// result records an unsuccessful run.
func (r *Recorder) Finish(result *plan.PlanResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.Finished = true
	r.snap.Success = result != nil && result.Success
	r.snap.CurrentGroup = ""
	return r.saveLocked()
}

// Snapshot returns a copy of the current snapshot.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := *r.snap
	snap.Steps = append([]StepState(nil), r.snap.Steps...)
	return snap
}

// Err returns the first save error, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) saveLocked() error {
	r.snap.UpdatedAt = r.now()
	err := r.store.Save(r.snap)
	if err != nil {
		r.logger.Error("failed to save run state",
			"source_id", r.snap.SourceID,
			"error", err.Error(),
		)
		if r.err == nil {
			r.err = err
		}
	}
	return err
}
