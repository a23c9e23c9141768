package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Iron-Ham/phasekit/internal/config"
	"github.com/Iron-Ham/phasekit/internal/errors"
	"github.com/Iron-Ham/phasekit/internal/logging"
	"github.com/Iron-Ham/phasekit/internal/plan"
	"github.com/Iron-Ham/phasekit/internal/report"
	"github.com/Iron-Ham/phasekit/internal/testutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const failingPlan = `## Group A: Setup [parallel: false]
### Step A.1: Write marker
echo one > a1.txt
### Step A.2: Break
exit 3

## Group B: After [parallel: true, depends: A]
### Step B.1: Write second marker
echo never > b1.txt
`

const fixedPlan = `## Group A: Setup [parallel: false]
### Step A.1: Write marker
echo one > a1.txt
### Step A.2: Break
echo two > a2.txt

## Group B: After [parallel: true, depends: A]
### Step B.1: Write second marker
echo never > b1.txt
`

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	resetFlags()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

// resetFlags restores flag variables, which persist across executions.
func resetFlags() {
	runMaxParallel = 0
	runResume = false
	runForce = false
	runDryRun = false
	validateJSON = false
	statusSteps = nil
	logsRunID = ""
	logsTail = 50
	logsFollow = false
	logsLevel = ""
	logsSince = ""
	logsGrep = ""
}

// setupTestEnvironment moves into a temp directory, isolates the user config
// and selects the shell runner without colors or retries.
func setupTestEnvironment(t *testing.T) string {
	t.Helper()
	testutil.SkipIfNoShell(t)

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))

	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("runner.kind", "shell")
	viper.Set("runner.max_retries", 0)
	viper.Set("output.color", "never")
	return dir
}

func writePlan(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "plan.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write plan: %v", err)
	}
	return path
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "phasekit" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "phasekit")
	}

	expectedCmds := []string{"run", "validate", "status", "reset", "config", "logs"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, expected := range expectedCmds {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
}

func TestRunCommand_FailureThenResume(t *testing.T) {
	dir := setupTestEnvironment(t)
	path := writePlan(t, dir, failingPlan)

	output, err := executeCommand(rootCmd, "run", path)
	if err == nil {
		t.Fatalf("run should fail\nOutput: %s", output)
	}
	if !isSilent(err) {
		t.Errorf("run error = %v, want a silent error", err)
	}
	for _, want := range []string{"✗ A.2", "Group B skipped", "Run failed: ", "1/3 steps completed"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
	if !exists(filepath.Join(dir, "a1.txt")) {
		t.Error("A.1 did not run")
	}
	if exists(filepath.Join(dir, "b1.txt")) {
		t.Error("B.1 ran although its dependency failed")
	}

	// Fix the plan and resume: A.1 must not run again.
	if err := os.Remove(filepath.Join(dir, "a1.txt")); err != nil {
		t.Fatal(err)
	}
	writePlan(t, dir, fixedPlan)

	output, err = executeCommand(rootCmd, "run", "--resume", path)
	if err != nil {
		t.Fatalf("resumed run failed: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, "1 completed steps reused") {
		t.Errorf("output missing resume summary:\n%s", output)
	}
	if !strings.Contains(output, "Run succeeded: ") {
		t.Errorf("output missing success summary:\n%s", output)
	}
	if exists(filepath.Join(dir, "a1.txt")) {
		t.Error("completed step A.1 was executed again")
	}
	if !exists(filepath.Join(dir, "a2.txt")) || !exists(filepath.Join(dir, "b1.txt")) {
		t.Error("remaining steps did not run")
	}
}

func TestRunCommand_ResumeWithoutState(t *testing.T) {
	dir := setupTestEnvironment(t)
	path := writePlan(t, dir, fixedPlan)

	output, err := executeCommand(rootCmd, "run", "--resume", path)
	if err != nil {
		t.Fatalf("run failed: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, "No saved progress") {
		t.Errorf("output missing fresh start notice:\n%s", output)
	}
}

func TestRunCommand_RefusesInvalidPlan(t *testing.T) {
	dir := setupTestEnvironment(t)
	path := writePlan(t, dir, "## Group A: Only [depends: Z]\n### Step A.1: Marker\necho hi > a1.txt\n")

	output, err := executeCommand(rootCmd, "run", path)
	if !errors.Is(err, errors.ErrPlanInvalid) {
		t.Fatalf("run error = %v, want ErrPlanInvalid\nOutput: %s", err, output)
	}
	if exists(filepath.Join(dir, "a1.txt")) {
		t.Error("invalid plan was executed")
	}

	// With --force the unreachable group is reported as stalled.
	output, err = executeCommand(rootCmd, "run", "--force", path)
	if !errors.Is(err, errors.ErrStalledGroups) {
		t.Fatalf("forced run error = %v, want ErrStalledGroups\nOutput: %s", err, output)
	}
	if !strings.Contains(output, "Stalled: ") {
		t.Errorf("output missing stalled groups:\n%s", output)
	}
}

func TestRunCommand_RefusesEmptyPlan(t *testing.T) {
	dir := setupTestEnvironment(t)
	path := writePlan(t, dir, "Some notes with no steps.\n")

	output, err := executeCommand(rootCmd, "run", path)
	if !errors.Is(err, errors.ErrPlanEmpty) || !errors.Is(err, errors.ErrPlanInvalid) {
		t.Fatalf("run error = %v, want ErrPlanEmpty\nOutput: %s", err, output)
	}
	var planErr *errors.PlanError
	if !errors.As(err, &planErr) || planErr.SourceID != path {
		t.Errorf("PlanError = %+v, want source %s", planErr, path)
	}
}

func TestRunCommand_DryRun(t *testing.T) {
	dir := setupTestEnvironment(t)
	path := writePlan(t, dir, fixedPlan)

	output, err := executeCommand(rootCmd, "run", "--dry-run", path)
	if err != nil {
		t.Fatalf("dry run failed: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, "Dry run: ") || !strings.Contains(output, "light  A.1") {
		t.Errorf("unexpected dry run output:\n%s", output)
	}
	if exists(filepath.Join(dir, "a1.txt")) {
		t.Error("dry run executed a step")
	}
}

func TestRunCommand_MissingFile(t *testing.T) {
	setupTestEnvironment(t)

	if _, err := executeCommand(rootCmd, "run", "missing.md"); err == nil {
		t.Error("run should fail for a missing plan file")
	}
}

func TestValidateCommand(t *testing.T) {
	dir := setupTestEnvironment(t)

	path := writePlan(t, dir, fixedPlan)
	output, err := executeCommand(rootCmd, "validate", path)
	if err != nil {
		t.Fatalf("validate failed: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, "Status: VALID") || !strings.Contains(output, "Group B: After") {
		t.Errorf("unexpected output:\n%s", output)
	}

	path = writePlan(t, dir, "## Group A: Only [depends: Z]\n### Step A.1: Marker\necho hi\n")
	output, err = executeCommand(rootCmd, "validate", path)
	if err == nil || !isSilent(err) {
		t.Fatalf("validate error = %v, want a silent error", err)
	}
	if !strings.Contains(output, "INVALID") || !strings.Contains(output, `unknown group "Z"`) {
		t.Errorf("unexpected output:\n%s", output)
	}
}

func TestValidateCommand_JSON(t *testing.T) {
	dir := setupTestEnvironment(t)
	path := writePlan(t, dir, "## Group A: Only [depends: Z]\n### Step A.1: Marker\necho hi\n")

	output, err := executeCommand(rootCmd, "validate", "--json", path)
	if err == nil {
		t.Fatal("validate should fail for an invalid plan")
	}

	var result ValidationOutput
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, output)
	}
	if result.Valid {
		t.Error("Valid = true, want false")
	}
	if result.ErrorCount != 1 || result.Groups != 1 || result.Steps != 1 {
		t.Errorf("counts = %d errors, %d groups, %d steps", result.ErrorCount, result.Groups, result.Steps)
	}
}

func TestStatusAndReset(t *testing.T) {
	dir := setupTestEnvironment(t)
	path := writePlan(t, dir, failingPlan)

	output, err := executeCommand(rootCmd, "status", path)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(output, "No saved progress") {
		t.Errorf("status before any run:\n%s", output)
	}

	_, _ = executeCommand(rootCmd, "run", path)

	output, err = executeCommand(rootCmd, "status", path)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	for _, want := range []string{"State:   failed", "1 completed, 1 failed, 1 skipped", "✓ A.1", "✗ A.2", "↷ B.1"} {
		if !strings.Contains(output, want) {
			t.Errorf("status output missing %q:\n%s", want, output)
		}
	}

	output, err = executeCommand(rootCmd, "status", "--steps", "B.*", path)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if strings.Contains(output, "Write marker") || !strings.Contains(output, "Write second marker") {
		t.Errorf("status --steps did not filter:\n%s", output)
	}

	if _, err := executeCommand(rootCmd, "reset", path); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	output, _ = executeCommand(rootCmd, "status", path)
	if !strings.Contains(output, "No saved progress") {
		t.Errorf("status after reset:\n%s", output)
	}
}

func TestStatusCommand_SQLiteBackend(t *testing.T) {
	dir := setupTestEnvironment(t)
	viper.Set("state.backend", "sqlite")
	path := writePlan(t, dir, failingPlan)

	_, _ = executeCommand(rootCmd, "run", path)
	if !exists(filepath.Join(dir, ".phasekit", "state.db")) {
		t.Fatal("sqlite database was not created")
	}

	output, err := executeCommand(rootCmd, "status", path)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(output, "✗ A.2") {
		t.Errorf("status output missing failed step:\n%s", output)
	}
}

func TestStepFilter(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		id       string
		want     bool
	}{
		{name: "group wildcard", patterns: []string{"A.*"}, id: "A.2", want: true},
		{name: "other group", patterns: []string{"A.*"}, id: "B.1", want: false},
		{name: "any of several", patterns: []string{"A.1", "B.*"}, id: "B.3", want: true},
		{name: "character class", patterns: []string{"[AB].1"}, id: "B.1", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			include, err := stepFilter(tt.patterns)
			if err != nil {
				t.Fatalf("stepFilter() error = %v", err)
			}
			if got := include(&plan.Step{ID: tt.id}); got != tt.want {
				t.Errorf("include(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}

	if include, err := stepFilter(nil); err != nil || include != nil {
		t.Errorf("stepFilter(nil) = %v, %v; want nil, nil", include != nil, err)
	}
	if _, err := stepFilter([]string{"[A"}); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("stepFilter(bad) error = %v, want ErrInvalidInput", err)
	}
}

func TestConfigShow(t *testing.T) {
	setupTestEnvironment(t)
	viper.Set("scheduler.max_parallel", 7)

	output, err := executeCommand(rootCmd, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if !strings.Contains(output, "max_parallel: 7") || !strings.Contains(output, "kind: shell") {
		t.Errorf("unexpected output:\n%s", output)
	}
}

func TestConfigSet(t *testing.T) {
	dir := setupTestEnvironment(t)

	if _, err := executeCommand(rootCmd, "config", "set", "scheduler.max_parallel", "5"); err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "xdg", "phasekit", "config.yaml"))
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if !strings.Contains(string(data), "max_parallel: 5") {
		t.Errorf("config file missing value:\n%s", data)
	}

	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown key", args: []string{"scheduler.bogus", "1"}},
		{name: "not an int", args: []string{"scheduler.max_parallel", "many"}},
		{name: "out of range", args: []string{"scheduler.max_parallel", "0"}},
		{name: "bad enum", args: []string{"state.backend", "redis"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"config", "set"}, tt.args...)
			if _, err := executeCommand(rootCmd, args...); err == nil {
				t.Errorf("config set %v should fail", tt.args)
			}
		})
	}
}

func TestConfigInit(t *testing.T) {
	dir := setupTestEnvironment(t)

	if _, err := executeCommand(rootCmd, "config", "init"); err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if _, err := executeCommand(rootCmd, "config", "init"); err == nil {
		t.Error("second config init should fail")
	}

	data, err := os.ReadFile(filepath.Join(dir, "xdg", "phasekit", "config.yaml"))
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	var cfg config.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("generated config is not YAML: %v", err)
	}
	if cfg != *config.Default() {
		t.Errorf("generated config = %+v, want defaults %+v", cfg, *config.Default())
	}
}

func TestRotationConfig(t *testing.T) {
	got := rotationConfig(config.LoggingConfig{MaxSizeMB: 5, MaxBackups: 2, Compress: true})
	want := logging.RotationConfig{MaxSizeMB: 5, MaxBackups: 2, Compress: true}
	if got != want {
		t.Errorf("rotationConfig() = %+v, want %+v", got, want)
	}
}

func TestConfigSet_Compress(t *testing.T) {
	setupTestEnvironment(t)

	if _, err := executeCommand(rootCmd, "config", "set", "logging.compress", "true"); err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Logging.Compress {
		t.Error("logging.compress was not applied")
	}
}

func TestParseConfigValue(t *testing.T) {
	tests := []struct {
		key, value string
		want       any
		wantErr    bool
	}{
		{key: "scheduler.max_parallel", value: "4", want: 4},
		{key: "runner.track_commits", value: "false", want: false},
		{key: "runner.kind", value: "shell", want: "shell"},
		{key: "runner.track_commits", value: "maybe", wantErr: true},
		{key: "nope", value: "1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			got, err := parseConfigValue(tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseConfigValue() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseConfigValue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogsCommand(t *testing.T) {
	dir := setupTestEnvironment(t)
	path := writePlan(t, dir, fixedPlan)

	if _, err := executeCommand(rootCmd, "run", path); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	output, err := executeCommand(rootCmd, "logs", "-n", "0", "--grep", "run started")
	if err != nil {
		t.Fatalf("logs failed: %v", err)
	}
	if !strings.Contains(output, "[INFO] run started") {
		t.Errorf("logs output missing run start:\n%s", output)
	}

	output, err = executeCommand(rootCmd, "logs", "--level", "error")
	if err != nil {
		t.Fatalf("logs failed: %v", err)
	}
	if !strings.Contains(output, "No matching log entries found.") {
		t.Errorf("logs --level error should match nothing:\n%s", output)
	}
}

func TestFormatLogLine(t *testing.T) {
	theme := report.NewTheme(report.NewRenderer(&bytes.Buffer{}, report.ColorNever))
	line := `{"time":"2026-01-02T03:04:05Z","level":"WARN","msg":"step failed","run_id":"abc123","group_id":"A","step_id":"A.2","attempt":2}`

	tests := []struct {
		name   string
		filter logFilter
		line   string
		wantOK bool
		want   []string
	}{
		{
			name:   "all fields",
			filter: logFilter{minLevel: -1},
			line:   line,
			wantOK: true,
			want:   []string{"[WARN] step failed", "group=A", "step=A.2", "attempt=2"},
		},
		{name: "level too low", filter: logFilter{minLevel: 3}, line: line},
		{name: "other run", filter: logFilter{minLevel: -1, runID: "zzz"}, line: line},
		{name: "run prefix", filter: logFilter{minLevel: -1, runID: "abc"}, line: line, wantOK: true},
		{name: "raw line", filter: logFilter{minLevel: -1}, line: "not json", wantOK: true, want: []string{"not json"}},
		{name: "blank", filter: logFilter{minLevel: -1}, line: "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := formatLogLine(theme, tt.filter, tt.line)
			if ok != tt.wantOK {
				t.Fatalf("formatLogLine() ok = %v, want %v", ok, tt.wantOK)
			}
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("formatLogLine() = %q, missing %q", got, want)
				}
			}
		})
	}
}
