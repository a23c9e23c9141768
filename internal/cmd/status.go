package cmd

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/phasekit/internal/errors"
	"github.com/Iron-Ham/phasekit/internal/plan"
	"github.com/Iron-Ham/phasekit/internal/state"
	"github.com/gobwas/glob"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <plan.md>",
	Short: "Show saved progress of a plan",
	Long: `Display the saved progress of a plan: the last run, the group that was
running and the status of every step. Pending steps whose group still waits
on an unfinished dependency are shown as blocked.

Examples:
  # Show all steps
  phasekit status plan.md

  # Show only the steps of group B
  phasekit status --steps 'B.*' plan.md`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

var resetCmd = &cobra.Command{
	Use:   "reset <plan.md>",
	Short: "Forget saved progress of a plan",
	Args:  cobra.ExactArgs(1),
	RunE:  runReset,
}

var statusSteps []string

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)

	statusCmd.Flags().StringSliceVar(&statusSteps, "steps", nil, "Only show step ids matching these glob patterns")
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	include, err := stepFilter(statusSteps)
	if err != nil {
		return err
	}

	p, err := e.parsePlan(args[0])
	if err != nil {
		return err
	}

	store, err := state.Open(e.cfg.State, e.stateDir)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	out := cmd.OutOrStdout()
	snap, err := store.Load(p.SourceID)
	switch {
	case errors.Is(err, errors.ErrStateNotFound):
		fmt.Fprintln(out, e.theme.Muted.Render("No saved progress for this plan."))
		fmt.Fprintln(out)
	case err != nil:
		return err
	default:
		state.Restore(p, snap)
		fmt.Fprint(out, formatRun(e, snap))
		fmt.Fprintln(out)
	}

	fmt.Fprint(out, e.render.Plan(p, include))
	return nil
}

func formatRun(e *env, snap *state.Snapshot) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:     %s\n", snap.RunID))
	sb.WriteString(fmt.Sprintf("Started: %s\n", snap.StartedAt.Local().Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("Updated: %s\n", snap.UpdatedAt.Local().Format("2006-01-02 15:04:05")))

	var outcome string
	switch {
	case !snap.Finished && snap.CurrentGroup != "":
		outcome = e.theme.Info.Render("running group " + snap.CurrentGroup)
	case !snap.Finished:
		outcome = e.theme.Warning.Render("interrupted")
	case snap.Success:
		outcome = e.theme.Success.Render("succeeded")
	default:
		outcome = e.theme.Error.Render("failed")
	}
	sb.WriteString(fmt.Sprintf("State:   %s\n", outcome))
	sb.WriteString(fmt.Sprintf("Steps:   %d completed, %d failed, %d skipped\n",
		snap.Count(plan.StatusCompleted), snap.Count(plan.StatusFailed), snap.Count(plan.StatusSkipped)))
	return sb.String()
}

// stepFilter compiles step id glob patterns into a predicate. No patterns
// match every step.
func stepFilter(patterns []string) (func(*plan.Step) bool, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, errors.NewValidationError("invalid step pattern").
				WithField("steps").
				WithValue(pattern).
				WithCause(err)
		}
		globs = append(globs, g)
	}
	return func(s *plan.Step) bool {
		for _, g := range globs {
			if g.Match(s.ID) {
				return true
			}
		}
		return false
	}, nil
}

func runReset(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	p, err := e.parsePlan(args[0])
	if err != nil {
		return err
	}

	lock, err := state.AcquireRunLock(e.stateDir, p.SourceID)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	store, err := state.Open(e.cfg.State, e.stateDir)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Delete(p.SourceID); err != nil {
		return err
	}
	e.logger.Info("saved progress deleted", "source_id", p.SourceID)
	fmt.Fprintln(cmd.OutOrStdout(), "Saved progress deleted.")
	return nil
}
