package report

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/Iron-Ham/phasekit/internal/plan"
)

// Color modes accepted by NewRenderer.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

var (
	// Colors - all colors meet WCAG AA contrast (4.5:1) on dark backgrounds
	PrimaryColor = lipgloss.Color("#A78BFA") // Purple
	SuccessColor = lipgloss.Color("#10B981") // Green
	WarningColor = lipgloss.Color("#F59E0B") // Amber
	ErrorColor   = lipgloss.Color("#F87171") // Red
	MutedColor   = lipgloss.Color("#9CA3AF") // Gray
	InfoColor    = lipgloss.Color("#60A5FA") // Blue
	BorderColor  = lipgloss.Color("#6B7280") // Gray
)

// NewRenderer returns a lipgloss renderer for w. ColorNever and non-terminal
// writers in ColorAuto mode render plain text.
func NewRenderer(w io.Writer, mode string) *lipgloss.Renderer {
	r := lipgloss.NewRenderer(w)
	switch mode {
	case ColorNever:
		r.SetColorProfile(termenv.Ascii)
	case ColorAlways:
		r.SetColorProfile(termenv.TrueColor)
	default:
		if !IsTerminal(w) {
			r.SetColorProfile(termenv.Ascii)
		}
	}
	return r
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Theme holds the styles used by the renderers.
type Theme struct {
	Title   lipgloss.Style
	Header  lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style
	Box     lipgloss.Style
}

// NewTheme builds the theme on r. A nil r uses the default renderer.
func NewTheme(r *lipgloss.Renderer) *Theme {
	if r == nil {
		r = lipgloss.DefaultRenderer()
	}
	return &Theme{
		Title: r.NewStyle().
			Bold(true).
			Foreground(PrimaryColor),
		Header: r.NewStyle().
			Bold(true),
		Muted:   r.NewStyle().Foreground(MutedColor),
		Success: r.NewStyle().Foreground(SuccessColor),
		Warning: r.NewStyle().Foreground(WarningColor),
		Error:   r.NewStyle().Foreground(ErrorColor),
		Info:    r.NewStyle().Foreground(InfoColor),
		Box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(0, 1),
	}
}

// StatusIcon returns the marker shown before a step with status s.
func StatusIcon(s plan.Status) string {
	switch s {
	case plan.StatusCompleted:
		return "✓"
	case plan.StatusFailed:
		return "✗"
	case plan.StatusSkipped:
		return "↷"
	case plan.StatusInProgress:
		return "●"
	case plan.StatusBlocked:
		return "◌"
	default:
		return "○"
	}
}

// StatusStyle returns the style for status s.
func (t *Theme) StatusStyle(s plan.Status) lipgloss.Style {
	switch s {
	case plan.StatusCompleted:
		return t.Success
	case plan.StatusFailed:
		return t.Error
	case plan.StatusSkipped, plan.StatusBlocked:
		return t.Warning
	case plan.StatusInProgress:
		return t.Info
	default:
		return t.Muted
	}
}

