package report

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Iron-Ham/phasekit/internal/plan"
	"github.com/Iron-Ham/phasekit/internal/util"
)

// Progress prints a line per group and step event while a plan runs. It
// implements the orchestrator's EventHandler and is safe for concurrent use.
type Progress struct {
	mu    sync.Mutex
	w     io.Writer
	theme *Theme
	width int
}

// NewProgress creates a Progress that writes to w.
func NewProgress(w io.Writer, theme *Theme) *Progress {
	if theme == nil {
		theme = NewTheme(nil)
	}
	return &Progress{w: w, theme: theme, width: DefaultTitleWidth}
}

// OnGroupStarted prints the group header.
func (p *Progress) OnGroupStarted(g *plan.Group) {
	mode := "sequential"
	if g.Parallel {
		mode = "parallel"
	}
	p.printf("%s %s %s\n",
		p.theme.Info.Render("▶"),
		p.theme.Header.Render(fmt.Sprintf("Group %s: %s", g.ID, g.Title)),
		p.theme.Muted.Render(fmt.Sprintf("(%s, %d steps)", mode, len(g.Steps))))
}

// OnStepFinished prints the step outcome.
func (p *Progress) OnStepFinished(_ *plan.Group, s *plan.Step, sr plan.StepResult) {
	line := fmt.Sprintf("  %s %s  %s",
		p.theme.StatusStyle(sr.Status).Render(StatusIcon(sr.Status)),
		s.ID,
		util.TruncateWidth(s.Title, p.width))
	if sr.Status == plan.StatusFailed && sr.ErrorMessage != "" {
		line += p.theme.Error.Render(": " + util.TruncateWidth(util.FirstLine(sr.ErrorMessage), p.width))
	}
	p.printf("%s\n", line)
}

// OnGroupFinished prints the group outcome.
func (p *Progress) OnGroupFinished(g *plan.Group, gr plan.GroupResult) {
	var line string
	switch {
	case gr.Skipped:
		line = p.theme.Warning.Render(fmt.Sprintf("↷ Group %s skipped", g.ID)) +
			p.theme.Muted.Render(": "+strings.TrimPrefix(gr.ErrorMessage, "skipped due to "))
	case gr.Success:
		line = p.theme.Success.Render(fmt.Sprintf("✓ Group %s completed", g.ID)) +
			p.theme.Muted.Render(" in "+formatDuration(gr.Duration))
	default:
		line = p.theme.Error.Render(fmt.Sprintf("✗ Group %s failed", g.ID)) +
			p.theme.Muted.Render(": "+gr.ErrorMessage)
	}
	p.printf("%s\n", line)
}

func (p *Progress) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.w, format, args...)
}
