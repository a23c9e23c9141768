// Package state persists run progress so an interrupted or failed run can be
// resumed.
//
// A Snapshot records the status fields of every step of one plan, keyed by
// the plan's source id. Two Store backends are provided: FileStore writes one
// YAML document per plan and SQLiteStore keeps all plans in a single
// database. The Recorder keeps a snapshot current while the orchestrator
// runs, and Reconcile applies a saved snapshot to a freshly parsed plan.
package state

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/phasekit/internal/plan"
)

// SnapshotVersion is the current snapshot format version.
const SnapshotVersion = 1

// StepState is the persisted status of one step.
type StepState struct {
	ID            string      `yaml:"id"`
	Status        plan.Status `yaml:"status"`
	Assignee      string      `yaml:"assignee,omitempty"`
	ResultSummary string      `yaml:"result_summary,omitempty"`
	ErrorMessage  string      `yaml:"error_message,omitempty"`
	CommitRef     string      `yaml:"commit_ref,omitempty"`
	UpdatedAt     time.Time   `yaml:"updated_at"`
}

// Snapshot is the persisted progress of one plan.
type Snapshot struct {
	Version  int    `yaml:"version"`
	SourceID string `yaml:"source_id"`
	RunID    string `yaml:"run_id"`

	StartedAt time.Time `yaml:"started_at"`
	UpdatedAt time.Time `yaml:"updated_at"`

	// CurrentGroup is the group that was running when the snapshot was saved.
	CurrentGroup string `yaml:"current_group,omitempty"`

	Finished bool `yaml:"finished"`
	Success  bool `yaml:"success"`

	// Steps is in plan declaration order.
	Steps []StepState `yaml:"steps"`
}

// NewSnapshot captures the current step statuses of p.
func NewSnapshot(p *plan.Plan, runID string) *Snapshot {
	now := time.Now().UTC()
	snap := &Snapshot{
		Version:   SnapshotVersion,
		SourceID:  p.SourceID,
		RunID:     runID,
		StartedAt: now,
		UpdatedAt: now,
		Steps:     make([]StepState, 0, p.TotalSteps()),
	}
	for _, s := range p.Steps() {
		snap.Steps = append(snap.Steps, StepStateOf(s, now))
	}
	return snap
}

// StepStateOf copies the status fields of s.
func StepStateOf(s *plan.Step, at time.Time) StepState {
	return StepState{
		ID:            s.ID,
		Status:        s.Status,
		Assignee:      s.Assignee,
		ResultSummary: s.ResultSummary,
		ErrorMessage:  s.ErrorMessage,
		CommitRef:     s.CommitRef,
		UpdatedAt:     at,
	}
}

// Step returns the saved state of stepID, or nil.
func (s *Snapshot) Step(stepID string) *StepState {
	for i := range s.Steps {
		if s.Steps[i].ID == stepID {
			return &s.Steps[i]
		}
	}
	return nil
}

// SetStep replaces the saved state for st.ID, appending it if absent.
func (s *Snapshot) SetStep(st StepState) {
	if existing := s.Step(st.ID); existing != nil {
		*existing = st
		return
	}
	s.Steps = append(s.Steps, st)
}

// Count returns the number of saved steps with the given status.
func (s *Snapshot) Count(status plan.Status) int {
	n := 0
	for _, st := range s.Steps {
		if st.Status == status {
			n++
		}
	}
	return n
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Key returns a stable, filesystem-safe key for a plan source id. It combines
// a readable form of the file name with a name-based UUID of the full id, so
// two plans with the same base name in different directories do not collide.
func Key(sourceID string) string {
	base := filepath.Base(sourceID)
	if sourceID == "" || base == "." || base == string(filepath.Separator) {
		base = "plan"
	}
	base = strings.Trim(unsafeKeyChars.ReplaceAllString(base, "-"), "-")
	if base == "" {
		base = "plan"
	}
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceID)).String()
	return base + "-" + id[:8]
}
