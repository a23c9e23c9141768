// Package util provides shared string helpers used across the codebase.
package util

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// TruncatedMarker is appended to output cut by TruncateOutput.
const TruncatedMarker = "... (truncated)"

// TruncateOutput limits s to limit runes for storage. Cut output gets
// TruncatedMarker on its own line. A limit of zero or less disables
// truncation.
func TruncateOutput(s string, limit int) string {
	s = strings.TrimRight(s, " \t\r\n")
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimRight(string(runes[:limit]), " \t\r\n") + "\n" + TruncatedMarker
}

// TruncateWidth truncates s to width terminal columns, ending in "..." when
// cut. Escape sequences and wide characters are measured correctly, so it is
// safe on styled text.
func TruncateWidth(s string, width int) string {
	if width <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "...")
}

// FirstLine returns the first non-empty line of s, trimmed.
func FirstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
