package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Iron-Ham/phasekit/internal/errors"
	"github.com/Iron-Ham/phasekit/internal/executor"
	"github.com/Iron-Ham/phasekit/internal/orchestrator"
	"github.com/Iron-Ham/phasekit/internal/plan"
	"github.com/Iron-Ham/phasekit/internal/report"
	"github.com/Iron-Ham/phasekit/internal/runner"
	"github.com/Iron-Ham/phasekit/internal/state"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <plan.md>",
	Short: "Execute a plan",
	Long: `Execute every group of a plan in dependency order.

Steps of a sequential group run one at a time and stop at the first failure.
Steps of a parallel group run concurrently, bounded by --max-parallel. A group
whose dependency failed is skipped along with everything that depends on it.

Progress is saved after every step. With --resume, steps that completed in a
previous run are reused and everything else runs again.

The exit code is 0 only when every group succeeded.

Examples:
  # Run a plan
  phasekit run plan.md

  # Continue an interrupted or failed run
  phasekit run --resume plan.md

  # Show which resource class each step would use
  phasekit run --dry-run plan.md`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runMaxParallel int
	runResume      bool
	runForce       bool
	runDryRun      bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVarP(&runMaxParallel, "max-parallel", "p", 0, "Max concurrent steps in a parallel group (default from config)")
	runCmd.Flags().BoolVarP(&runResume, "resume", "r", false, "Reuse steps completed by a previous run")
	runCmd.Flags().BoolVar(&runForce, "force", false, "Run even if the plan has validation errors")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Print the execution plan without running it")
}

func runRun(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	out := cmd.OutOrStdout()
	if runMaxParallel > 0 {
		e.cfg.Scheduler.MaxParallel = runMaxParallel
	}

	p, err := e.parsePlan(args[0])
	if err != nil {
		return err
	}

	vr := plan.Validate(p)
	if msg := e.render.Validation(p, vr); msg != "" {
		fmt.Fprint(cmd.ErrOrStderr(), msg)
	}
	if !vr.IsValid() && !runForce {
		return errors.NewPlanError("refusing to run an invalid plan (use --force to override)", vr.Err()).
			WithSource(p.SourceID)
	}

	store, err := state.Open(e.cfg.State, e.stateDir)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if runResume {
		if err := resumeFrom(cmd, e, store, p); err != nil {
			return err
		}
	}

	if runDryRun {
		fmt.Fprint(out, e.render.DryRun(p, executor.Selector{AutoThreshold: e.cfg.Scheduler.AutoThreshold}))
		return nil
	}

	lock, err := state.AcquireRunLock(e.stateDir, p.SourceID)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	runID := uuid.NewString()
	logger := e.logger.WithRun(runID)

	tr, err := runner.New(e.cfg.Runner, e.cwd, logger)
	if err != nil {
		return err
	}
	exec := executor.New(tr,
		executor.WithOutputLimit(e.cfg.Scheduler.OutputLimit),
		executor.WithAutoThreshold(e.cfg.Scheduler.AutoThreshold),
		executor.WithLogger(logger),
	)

	rec := state.NewRecorder(store, p, runID, logger)
	if err := rec.Start(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: progress will not be saved: %v\n", err)
	}

	orch := orchestrator.New(exec,
		orchestrator.WithMaxParallel(e.cfg.Scheduler.MaxParallel),
		orchestrator.WithLogger(logger),
		orchestrator.WithEventHandler(orchestrator.Handlers(rec, report.NewProgress(out, e.theme))),
	)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("run started",
		"source_id", p.SourceID,
		"groups", p.GroupCount(),
		"steps", p.TotalSteps(),
		"max_parallel", orch.MaxParallel(),
	)

	result, runErr := orch.ExecutePlan(ctx, p)
	if result != nil {
		if err := rec.Finish(result); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to save final state: %v\n", err)
		}
		fmt.Fprintln(out)
		fmt.Fprint(out, e.render.Result(p, result))
	}
	if runErr != nil {
		logger.Error("run stopped",
			"error", runErr.Error(),
			"severity", errors.GetSeverity(runErr).String(),
		)
		return runErr
	}
	if !result.Success {
		return &silentError{msg: "run failed"}
	}
	return nil
}

// resumeFrom restores completed steps from the last saved snapshot of p.
func resumeFrom(cmd *cobra.Command, e *env, store state.Store, p *plan.Plan) error {
	snap, err := store.Load(p.SourceID)
	switch {
	case errors.Is(err, errors.ErrStateNotFound):
		fmt.Fprintln(cmd.OutOrStdout(), e.theme.Muted.Render("No saved progress for this plan; starting fresh."))
		return nil
	case err != nil:
		return err
	}

	res := state.Reconcile(p, snap)
	fmt.Fprintf(cmd.OutOrStdout(), "Resuming run %s: %d completed steps reused, %d steps reset\n",
		snap.RunID, res.Restored, res.Reset)
	if len(res.Unknown) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: saved steps no longer in the plan: %v\n", res.Unknown)
	}
	e.logger.Info("resuming run",
		"previous_run_id", snap.RunID,
		"restored", res.Restored,
		"reset", res.Reset,
	)
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
