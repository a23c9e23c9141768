// Package orchestrator runs a parsed plan group by group.
//
// A single goroutine drives an eligibility loop over groups: a group becomes
// eligible once every group it depends on has a result, and eligible groups
// run one at a time in declaration order. Sequential groups run their steps
// in order and stop at the first failure. Parallel groups fan their steps out
// to a bounded worker pool and join before the group is finalized. A group
// whose own dependency failed is skipped without calling the executor.
//
// Step failures never surface as Go errors; they are recorded in the
// returned plan.PlanResult. The only error ExecutePlan returns is a stall,
// when the remaining groups can never become eligible.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/phasekit/internal/errors"
	"github.com/Iron-Ham/phasekit/internal/logging"
	"github.com/Iron-Ham/phasekit/internal/plan"
)

// DefaultMaxParallel is the worker count used for parallel groups when none
// is configured.
const DefaultMaxParallel = 3

// FailedGroupsMessage is PlanResult.ErrorMessage when any group failed.
const FailedGroupsMessage = "one or more groups failed"

// StepExecutor executes a single step and reports a structured result.
// *executor.Executor implements it.
type StepExecutor interface {
	Execute(ctx context.Context, step *plan.Step, group *plan.Group) plan.StepResult
}

// Orchestrator executes plans. It holds no state between ExecutePlan calls,
// so one Orchestrator can run several plans one after another.
type Orchestrator struct {
	exec        StepExecutor
	maxParallel int
	logger      *logging.Logger
	events      EventHandler
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxParallel sets the worker count for parallel groups. Values below 1
// are ignored.
func WithMaxParallel(n int) Option {
	return func(o *Orchestrator) {
		if n >= 1 {
			o.maxParallel = n
		}
	}
}

// WithLogger sets the logger for group transitions and stalls.
func WithLogger(logger *logging.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEventHandler registers a handler for run events.
func WithEventHandler(h EventHandler) Option {
	return func(o *Orchestrator) {
		if h != nil {
			o.events = h
		}
	}
}

// New creates an Orchestrator that runs steps through exec.
func New(exec StepExecutor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		exec:        exec,
		maxParallel: DefaultMaxParallel,
		logger:      logging.NopLogger(),
		events:      EventFuncs{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// MaxParallel returns the configured worker count for parallel groups.
func (o *Orchestrator) MaxParallel() int {
	return o.maxParallel
}

// ExecutePlan runs every reachable group of p and returns the full record of
// the run.
//
// Only step status fields of p are modified. Steps already in
// plan.StatusCompleted when their group starts are reported as successful
// without being executed again, which lets a caller resume a run by
// reconciling persisted statuses onto a freshly parsed plan.
//
// If some groups can never become eligible (a dependency cycle or a
// dependency on a group that does not exist), the run stops, those groups get
// no result and keep their steps pending, PlanResult.StalledGroups names them
// and the returned error wraps errors.ErrStalledGroups. The PlanResult is
// returned in that case too.
func (o *Orchestrator) ExecutePlan(ctx context.Context, p *plan.Plan) (*plan.PlanResult, error) {
	start := time.Now()
	if p == nil {
		p = &plan.Plan{}
	}

	logger := o.logger.With("source_id", p.SourceID)
	logger.Info("plan execution started",
		"groups", p.GroupCount(),
		"steps", p.TotalSteps(),
		"max_parallel", o.maxParallel,
	)

	result := &plan.PlanResult{
		GroupResults: make([]plan.GroupResult, 0, len(p.Groups)),
		TotalSteps:   p.TotalSteps(),
	}

	// Indexed by declaration position so duplicate ids cannot confuse the
	// loop; byID is what dependency checks consult.
	finished := make([]bool, len(p.Groups))
	byID := make(map[string]*plan.GroupResult, len(p.Groups))
	remaining := len(p.Groups)

	for remaining > 0 {
		eligible := eligibleGroups(p, finished, byID)
		if len(eligible) == 0 {
			for i, g := range p.Groups {
				if !finished[i] {
					result.StalledGroups = append(result.StalledGroups, g.ID)
				}
			}
			break
		}

		for _, idx := range eligible {
			g := p.Groups[idx]

			var gr plan.GroupResult
			if failed := failedDependencies(g, byID); len(failed) > 0 {
				gr = o.skipGroup(g, failed)
			} else {
				gr = o.runGroup(ctx, g)
			}

			result.GroupResults = append(result.GroupResults, gr)
			byID[g.ID] = &gr
			finished[idx] = true
			remaining--
			o.events.OnGroupFinished(g, gr)
		}
	}

	finalize(result)
	result.Duration = time.Since(start)

	if len(result.StalledGroups) > 0 {
		logger.Error("plan execution stalled",
			"stalled_groups", strings.Join(result.StalledGroups, ","),
			"completed_steps", result.CompletedSteps,
		)
		err := errors.NewSchedulerError("no eligible groups remain", errors.ErrStalledGroups).
			WithGroups(result.StalledGroups...)
		return result, err
	}

	logger.Info("plan execution finished",
		"success", result.Success,
		"completed_steps", result.CompletedSteps,
		"total_steps", result.TotalSteps,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

// eligibleGroups returns, in declaration order, the indexes of unfinished
// groups whose dependencies all have results.
func eligibleGroups(p *plan.Plan, finished []bool, byID map[string]*plan.GroupResult) []int {
	var eligible []int
	for i, g := range p.Groups {
		if finished[i] {
			continue
		}
		ready := true
		for _, dep := range g.DependsOn {
			if _, ok := byID[dep]; !ok {
				ready = false
				break
			}
		}
		if ready {
			eligible = append(eligible, i)
		}
	}
	return eligible
}

// failedDependencies returns the ids of g's own dependencies whose result
// reports failure.
func failedDependencies(g *plan.Group, byID map[string]*plan.GroupResult) []string {
	var failed []string
	for _, dep := range g.DependsOn {
		if gr, ok := byID[dep]; ok && !gr.Success {
			failed = append(failed, dep)
		}
	}
	return failed
}

// finalize fills the aggregate fields of result from its group results.
func finalize(result *plan.PlanResult) {
	anyFailed := false
	completed := 0
	for _, gr := range result.GroupResults {
		if !gr.Success {
			anyFailed = true
		}
		for _, sr := range gr.StepResults {
			if sr.Success {
				completed++
			}
		}
	}
	result.CompletedSteps = completed
	result.Success = !anyFailed && len(result.StalledGroups) == 0

	var msgs []string
	if anyFailed {
		msgs = append(msgs, FailedGroupsMessage)
	}
	if len(result.StalledGroups) > 0 {
		msgs = append(msgs, fmt.Sprintf("stalled groups with unsatisfiable dependencies: %s",
			strings.Join(result.StalledGroups, ", ")))
	}
	result.ErrorMessage = strings.Join(msgs, "; ")
}

// -----------------------------------------------------------------------------
// Group execution
// -----------------------------------------------------------------------------

// skipGroup marks every step of g skipped because of failed dependencies.
// Steps completed by an earlier run keep their status. No step is executed.
func (o *Orchestrator) skipGroup(g *plan.Group, failedDeps []string) plan.GroupResult {
	msg := "skipped due to dependency failure: " + strings.Join(failedDeps, ", ")
	o.logger.WithGroup(g.ID).Warn("group skipped", "failed_dependencies", strings.Join(failedDeps, ","))

	gr := plan.GroupResult{
		GroupID:      g.ID,
		Success:      false,
		Skipped:      true,
		StepResults:  make([]plan.StepResult, 0, len(g.Steps)),
		ErrorMessage: msg,
	}
	for _, s := range g.Steps {
		var sr plan.StepResult
		if s.Status == plan.StatusCompleted {
			sr = reusedResult(s)
		} else {
			sr = skipStep(s, msg)
		}
		gr.StepResults = append(gr.StepResults, sr)
		o.events.OnStepFinished(g, s, sr)
	}
	return gr
}

// runGroup executes g's steps and aggregates their results.
func (o *Orchestrator) runGroup(ctx context.Context, g *plan.Group) plan.GroupResult {
	start := time.Now()
	logger := o.logger.WithGroup(g.ID)
	logger.Info("group started",
		"title", g.Title,
		"parallel", g.Parallel,
		"strategy", g.Strategy.String(),
		"steps", len(g.Steps),
	)
	o.events.OnGroupStarted(g)

	var results []plan.StepResult
	if g.Parallel {
		results = o.runParallel(ctx, g)
	} else {
		results = o.runSequential(ctx, g)
	}

	gr := plan.GroupResult{
		GroupID:     g.ID,
		Success:     true,
		StepResults: results,
		Duration:    time.Since(start),
	}
	var failed []string
	for _, sr := range results {
		if !sr.Success {
			gr.Success = false
		}
		if sr.Status == plan.StatusFailed {
			failed = append(failed, sr.StepID)
		}
	}
	if !gr.Success {
		gr.ErrorMessage = fmt.Sprintf("%d of %d steps failed: %s", len(failed), len(results), strings.Join(failed, ", "))
		if skipped := gr.Count(plan.StatusSkipped); skipped > 0 {
			gr.ErrorMessage += fmt.Sprintf(" (%d skipped)", skipped)
		}
	}

	logger.Info("group finished",
		"success", gr.Success,
		"failed_steps", strings.Join(failed, ","),
		"duration_ms", gr.Duration.Milliseconds(),
	)
	return gr
}

// runSequential runs steps in declared order. After the first failure every
// remaining step is skipped.
func (o *Orchestrator) runSequential(ctx context.Context, g *plan.Group) []plan.StepResult {
	results := make([]plan.StepResult, 0, len(g.Steps))
	failedID := ""
	for _, s := range g.Steps {
		var sr plan.StepResult
		switch {
		case failedID != "":
			sr = skipStep(s, fmt.Sprintf("skipped because step %s failed", failedID))
			o.events.OnStepFinished(g, s, sr)
		case s.Status == plan.StatusCompleted:
			sr = reusedResult(s)
			o.events.OnStepFinished(g, s, sr)
		default:
			sr = o.executeStep(ctx, g, s)
			if !sr.Success {
				failedID = s.ID
			}
		}
		results = append(results, sr)
	}
	return results
}

// runParallel submits every step to a bounded pool and waits for all of
// them. Results are reported in declared order. Each worker writes only its
// own step and its own slot of results.
func (o *Orchestrator) runParallel(ctx context.Context, g *plan.Group) []plan.StepResult {
	results := make([]plan.StepResult, len(g.Steps))
	wp := pool.New().WithMaxGoroutines(o.maxParallel)
	for i, s := range g.Steps {
		if s.Status == plan.StatusCompleted {
			results[i] = reusedResult(s)
			o.events.OnStepFinished(g, s, results[i])
			continue
		}
		wp.Go(func() {
			results[i] = o.executeStep(ctx, g, s)
		})
	}
	wp.Wait()
	return results
}

// executeStep runs one step through the executor. A panic in the executor is
// caught here and recorded as a failed step so it cannot take down the group.
func (o *Orchestrator) executeStep(ctx context.Context, g *plan.Group, s *plan.Step) plan.StepResult {
	var sr plan.StepResult
	var pc panics.Catcher
	pc.Try(func() {
		sr = o.exec.Execute(ctx, s, g)
	})

	if r := pc.Recovered(); r != nil {
		msg := fmt.Sprintf("step execution panicked: %v", r.Value)
		o.logger.WithGroup(g.ID).WithStep(s.ID).Error("step panicked", "panic", fmt.Sprint(r.Value))
		s.Status = plan.StatusFailed
		s.ErrorMessage = msg
		sr = plan.StepResult{StepID: s.ID, Status: plan.StatusFailed, ErrorMessage: msg}
	}

	sr.StepID = s.ID
	if !sr.Status.IsTerminal() || sr.Status == plan.StatusSkipped {
		sr.Status = plan.StatusFailed
		if sr.Success {
			sr.Status = plan.StatusCompleted
		}
		s.Status = sr.Status
	}
	sr.Success = sr.Status == plan.StatusCompleted

	o.events.OnStepFinished(g, s, sr)
	return sr
}

func skipStep(s *plan.Step, reason string) plan.StepResult {
	s.Status = plan.StatusSkipped
	return plan.StepResult{
		StepID:       s.ID,
		Status:       plan.StatusSkipped,
		ErrorMessage: reason,
	}
}

func reusedResult(s *plan.Step) plan.StepResult {
	return plan.StepResult{
		StepID:  s.ID,
		Status:  plan.StatusCompleted,
		Success: true,
		Output:  s.ResultSummary,
	}
}
