package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Iron-Ham/phasekit/internal/logging"
	"github.com/Iron-Ham/phasekit/internal/report"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View run logs",
	Long: `View and filter the phasekit log file in the state directory.

Examples:
  # Show the last 50 lines
  phasekit logs

  # Show all logs of one run
  phasekit logs --run 1f0c2a9e -n 0

  # Follow logs in real-time
  phasekit logs -f

  # Filter by log level
  phasekit logs --level warn

  # Show logs from the last hour
  phasekit logs --since 1h

  # Search for specific patterns
  phasekit logs --grep "failed|stalled"`,
	RunE: runLogs,
}

var (
	logsRunID  string
	logsTail   int
	logsFollow bool
	logsLevel  string
	logsSince  string
	logsGrep   string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVar(&logsRunID, "run", "", "Only show entries of runs whose id starts with this prefix")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of lines to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter logs matching pattern (regex)")
}

// logEntry represents a parsed JSON log line
type logEntry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Msg     string         `json:"msg"`
	RunID   string         `json:"run_id,omitempty"`
	GroupID string         `json:"group_id,omitempty"`
	StepID  string         `json:"step_id,omitempty"`
	Extra   map[string]any `json:"-"` // Captures additional fields
}

// UnmarshalJSON implements custom unmarshaling to capture extra fields
func (e *logEntry) UnmarshalJSON(data []byte) error {
	// First, unmarshal known fields using a type alias to avoid recursion
	type Alias logEntry
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(e),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, known := range []string{"time", "level", "msg", "run_id", "group_id", "step_id"} {
		delete(all, known)
	}
	if len(all) > 0 {
		e.Extra = all
	}
	return nil
}

// logFilter holds the parsed filter flags.
type logFilter struct {
	minLevel int
	since    time.Time
	runID    string
	grep     *regexp.Regexp
}

// levelPriority returns the priority of a log level for filtering
func levelPriority(level string) int {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return 0
	case logging.LevelInfo:
		return 1
	case logging.LevelWarn:
		return 2
	case logging.LevelError:
		return 3
	default:
		return -1
	}
}

// passes checks if a log entry passes all filter criteria
func (f logFilter) passes(entry *logEntry) bool {
	if f.minLevel >= 0 && levelPriority(entry.Level) < f.minLevel {
		return false
	}
	if !f.since.IsZero() && entry.Time.Before(f.since) {
		return false
	}
	if f.runID != "" && !strings.HasPrefix(entry.RunID, f.runID) {
		return false
	}

	// Grep filter - search in message and every context field
	if f.grep != nil {
		searchText := strings.Join([]string{entry.Msg, entry.GroupID, entry.StepID}, " ")
		for _, v := range entry.Extra {
			searchText += " " + fmt.Sprintf("%v", v)
		}
		if !f.grep.MatchString(searchText) {
			return false
		}
	}
	return true
}

// formatLogEntry formats a log entry for terminal output
func formatLogEntry(theme *report.Theme, entry *logEntry) string {
	var sb strings.Builder

	sb.WriteString(theme.Muted.Render("[" + entry.Time.Local().Format("15:04:05.000") + "]"))
	sb.WriteString(" ")

	level := "[" + strings.ToUpper(entry.Level) + "]"
	switch strings.ToUpper(entry.Level) {
	case logging.LevelDebug:
		level = theme.Muted.Render(level)
	case logging.LevelInfo:
		level = theme.Info.Render(level)
	case logging.LevelWarn:
		level = theme.Warning.Render(level)
	case logging.LevelError:
		level = theme.Error.Render(level)
	}
	sb.WriteString(level)
	sb.WriteString(" ")
	sb.WriteString(entry.Msg)

	if entry.GroupID != "" {
		sb.WriteString(" " + theme.Title.Render("group="+entry.GroupID))
	}
	if entry.StepID != "" {
		sb.WriteString(" " + theme.Title.Render("step="+entry.StepID))
	}

	// Extra fields in stable order
	keys := make([]string, 0, len(entry.Extra))
	for k := range entry.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(" " + theme.Muted.Render(k+"=") + fmt.Sprintf("%v", entry.Extra[k]))
	}
	return sb.String()
}

// formatLogLine formats one raw line, reporting whether it should be shown.
// Lines that are not JSON are shown unchanged.
func formatLogLine(theme *report.Theme, f logFilter, line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	var entry logEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return line, true
	}
	if !f.passes(&entry) {
		return "", false
	}
	return formatLogEntry(theme, &entry), true
}

func runLogs(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	out := cmd.OutOrStdout()
	logPath := filepath.Join(e.stateDir, logging.FileName)
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Fprintln(out, "No logs found.")
		fmt.Fprintln(out, "Logs are stored at:", logPath)
		return nil
	}

	f := logFilter{minLevel: -1, runID: logsRunID}
	if logsLevel != "" {
		f.minLevel = levelPriority(logging.ParseLevel(logsLevel))
	}
	if logsSince != "" {
		duration, err := time.ParseDuration(logsSince)
		if err != nil {
			return fmt.Errorf("invalid duration format: %w", err)
		}
		f.since = time.Now().Add(-duration)
	}
	if logsGrep != "" {
		f.grep, err = regexp.Compile(logsGrep)
		if err != nil {
			return fmt.Errorf("invalid grep pattern: %w", err)
		}
	}

	if logsFollow {
		return followLogs(commandContext(cmd), out, e.theme, logPath, f)
	}
	return displayLogs(out, e.theme, logPath, logsTail, f)
}

// displayLogs reads the log file and displays filtered entries
func displayLogs(w io.Writer, theme *report.Theme, logPath string, tail int, f logFilter) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	var entries []string
	scanner := bufio.NewScanner(file)

	// Increase buffer size for potentially long log lines
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		if line, ok := formatLogLine(theme, f, scanner.Text()); ok {
			entries = append(entries, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}

	if tail > 0 && len(entries) > tail {
		entries = entries[len(entries)-tail:]
	}
	for _, entry := range entries {
		fmt.Fprintln(w, entry)
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No matching log entries found.")
	}
	return nil
}

// followLogs implements tail -f behavior for the log file until ctx is done
func followLogs(ctx context.Context, w io.Writer, theme *report.Theme, logPath string, f logFilter) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	fmt.Fprintf(w, "Following logs... (Ctrl+C to stop)\n\n")

	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				return fmt.Errorf("error reading log file: %w", err)
			}
			// No new data, wait briefly and try again
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		if formatted, ok := formatLogLine(theme, f, line); ok {
			fmt.Fprintln(w, formatted)
		}
	}
}
