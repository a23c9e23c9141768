// Package report renders plans, validation results and run results for the
// terminal using lipgloss. Rendering falls back to plain text when output is
// not a terminal.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/phasekit/internal/executor"
	"github.com/Iron-Ham/phasekit/internal/plan"
	"github.com/Iron-Ham/phasekit/internal/util"
)

// DefaultTitleWidth bounds step titles in listings.
const DefaultTitleWidth = 72

// Renderer turns plans and results into display strings.
type Renderer struct {
	theme      *Theme
	titleWidth int
	showOutput bool
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithTitleWidth sets the column width step titles are truncated to.
func WithTitleWidth(w int) Option {
	return func(r *Renderer) {
		if w > 0 {
			r.titleWidth = w
		}
	}
}

// WithOutput includes step result summaries in run reports.
func WithOutput(show bool) Option {
	return func(r *Renderer) {
		r.showOutput = show
	}
}

// New creates a Renderer using theme. A nil theme uses the default renderer.
func New(theme *Theme, opts ...Option) *Renderer {
	if theme == nil {
		theme = NewTheme(nil)
	}
	r := &Renderer{theme: theme, titleWidth: DefaultTitleWidth}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Theme returns the renderer's theme.
func (r *Renderer) Theme() *Theme {
	return r.theme
}

// Plan renders every group of p with its options and the display status of
// each step. Steps for which include returns false are omitted; a nil include
// shows every step.
func (r *Renderer) Plan(p *plan.Plan, include func(*plan.Step) bool) string {
	t := r.theme
	var sb strings.Builder

	source := p.SourceID
	if source == "" {
		source = "plan"
	}
	sb.WriteString(t.Title.Render(source))
	sb.WriteString(t.Muted.Render(fmt.Sprintf("  %d groups, %d steps, %d completed",
		p.GroupCount(), p.TotalSteps(), p.CompletedSteps())))
	sb.WriteString("\n")

	for _, g := range p.Groups {
		sb.WriteString("\n")
		sb.WriteString(r.groupHeader(g))
		sb.WriteString("\n")
		for _, s := range g.Steps {
			if include != nil && !include(s) {
				continue
			}
			sb.WriteString(fmt.Sprintf("  %s %s  %s\n",
				t.StatusStyle(p.DisplayStatus(s)).Render(StatusIcon(p.DisplayStatus(s))),
				t.Header.Render(s.ID),
				util.TruncateWidth(s.Title, r.titleWidth)))
			if s.Status == plan.StatusFailed && s.ErrorMessage != "" {
				sb.WriteString("      " + t.Error.Render(util.TruncateWidth(util.FirstLine(s.ErrorMessage), r.titleWidth)) + "\n")
			}
		}
	}
	return sb.String()
}

func (r *Renderer) groupHeader(g *plan.Group) string {
	t := r.theme
	mode := "sequential"
	if g.Parallel {
		mode = "parallel"
	}
	deps := "none"
	if g.HasDependencies() {
		deps = strings.Join(g.DependsOn, ", ")
	}
	return t.Header.Render(fmt.Sprintf("Group %s: %s", g.ID, g.Title)) +
		t.Muted.Render(fmt.Sprintf("  [%s, depends: %s, strategy: %s]", mode, deps, g.Strategy))
}

// Validation renders parser warnings and validation messages. It returns ""
// when there is nothing to report.
func (r *Renderer) Validation(p *plan.Plan, vr *plan.ValidationResult) string {
	t := r.theme
	var lines []string
	for _, w := range p.Warnings {
		lines = append(lines, t.Warning.Render("warning: ")+w)
	}
	if vr != nil {
		for _, m := range vr.Messages {
			style := t.Warning
			if m.Severity == plan.SeverityError {
				style = t.Error
			}
			lines = append(lines, style.Render(string(m.Severity)+": ")+strings.TrimPrefix(m.String(), "["+string(m.Severity)+"] "))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// DryRun renders the resource class each step would be run with.
func (r *Renderer) DryRun(p *plan.Plan, sel executor.Selector) string {
	t := r.theme
	var sb strings.Builder
	sb.WriteString(t.Title.Render("Dry run: "+p.SourceID) + "\n")
	for _, g := range p.Groups {
		sb.WriteString("\n" + r.groupHeader(g) + "\n")
		for _, s := range g.Steps {
			class := sel.Select(g.Strategy, s)
			style := t.Muted
			if class == executor.ClassHeavy {
				style = t.Info
			}
			marker := ""
			if s.Status == plan.StatusCompleted {
				marker = t.Success.Render("  (completed, will be reused)")
			}
			sb.WriteString(fmt.Sprintf("  %-6s %s  %s%s\n",
				style.Render(class.String()),
				t.Header.Render(s.ID),
				util.TruncateWidth(s.Title, r.titleWidth),
				marker))
		}
	}
	return sb.String()
}

// Result renders the outcome of a run: one block per group in the order
// groups finished, stalled groups, and a summary line.
func (r *Renderer) Result(p *plan.Plan, res *plan.PlanResult) string {
	t := r.theme
	var sb strings.Builder

	for _, gr := range res.GroupResults {
		g := p.Group(gr.GroupID)
		title := ""
		if g != nil {
			title = g.Title
		}

		var outcome string
		switch {
		case gr.Skipped:
			outcome = t.Warning.Render(StatusIcon(plan.StatusSkipped) + " skipped")
		case gr.Success:
			outcome = t.Success.Render(StatusIcon(plan.StatusCompleted) + " completed")
		default:
			outcome = t.Error.Render(StatusIcon(plan.StatusFailed) + " failed")
		}
		sb.WriteString(fmt.Sprintf("%s %s  %s", t.Header.Render("Group "+gr.GroupID+":"), title, outcome))
		if gr.Duration > 0 {
			sb.WriteString(t.Muted.Render("  " + formatDuration(gr.Duration)))
		}
		sb.WriteString("\n")
		if gr.ErrorMessage != "" {
			sb.WriteString("  " + t.Muted.Render(gr.ErrorMessage) + "\n")
		}

		for _, sr := range gr.StepResults {
			stepTitle := ""
			if s := p.Step(sr.StepID); s != nil {
				stepTitle = util.TruncateWidth(s.Title, r.titleWidth)
			}
			sb.WriteString(fmt.Sprintf("  %s %s  %s\n",
				t.StatusStyle(sr.Status).Render(StatusIcon(sr.Status)), sr.StepID, stepTitle))
			if sr.Status == plan.StatusFailed && sr.ErrorMessage != "" {
				sb.WriteString("      " + t.Error.Render(util.FirstLine(sr.ErrorMessage)) + "\n")
			}
			if r.showOutput && sr.Success && sr.Output != "" {
				for _, line := range strings.Split(sr.Output, "\n") {
					sb.WriteString("      " + t.Muted.Render(line) + "\n")
				}
			}
		}
	}

	if len(res.StalledGroups) > 0 {
		sb.WriteString(t.Error.Render("Stalled: ") +
			strings.Join(res.StalledGroups, ", ") +
			t.Muted.Render("  (dependencies can never be satisfied)") + "\n")
	}

	sb.WriteString("\n")
	sb.WriteString(r.Summary(res))
	sb.WriteString("\n")
	return sb.String()
}

// Summary renders the one-line outcome of a run.
func (r *Renderer) Summary(res *plan.PlanResult) string {
	t := r.theme
	counts := fmt.Sprintf("%d/%d steps completed", res.CompletedSteps, res.TotalSteps)
	if res.Duration > 0 {
		counts += " in " + formatDuration(res.Duration)
	}
	if res.Success {
		return t.Success.Render("Run succeeded: ") + counts
	}
	msg := t.Error.Render("Run failed: ") + counts
	if res.ErrorMessage != "" {
		msg += t.Muted.Render(" (" + res.ErrorMessage + ")")
	}
	return msg
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
