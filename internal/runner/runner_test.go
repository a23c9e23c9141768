package runner

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/phasekit/internal/config"
	"github.com/Iron-Ham/phasekit/internal/errors"
	"github.com/Iron-Ham/phasekit/internal/executor"
)

type fakeResult struct {
	out string
	err error
}

type fakeCall struct {
	dir  string
	name string
	args []string
}

// fakeExecutor returns scripted results per command name, in order. The last
// result for a name repeats once the script is exhausted.
type fakeExecutor struct {
	mu      sync.Mutex
	results map[string][]fakeResult
	calls   []fakeCall
	block   bool
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{results: map[string][]fakeResult{}}
}

func (f *fakeExecutor) on(name, out string, err error) *fakeExecutor {
	f.results[name] = append(f.results[name], fakeResult{out: out, err: err})
	return f
}

func (f *fakeExecutor) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{dir: dir, name: name, args: args})
	script := f.results[name]
	var res fakeResult
	if len(script) > 0 {
		res = script[0]
		if len(script) > 1 {
			f.results[name] = script[1:]
		}
	}
	block := f.block && name != "git"
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return []byte("partial"), ctx.Err()
	}
	return []byte(res.out), res.err
}

func (f *fakeExecutor) callsTo(name string) []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeCall
	for _, c := range f.calls {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

type fakeExitError struct{ code int }

func (e *fakeExitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }
func (e *fakeExitError) ExitCode() int { return e.code }

func TestClaudeRunner_Arguments(t *testing.T) {
	tests := []struct {
		class executor.ResourceClass
		model string
	}{
		{executor.ClassLight, "haiku"},
		{executor.ClassHeavy, "opus"},
	}
	for _, tt := range tests {
		t.Run(tt.class.String(), func(t *testing.T) {
			fe := newFakeExecutor().on("claude", "done\n", nil)
			r := NewClaudeRunner(WithExecutor(fe), WithDir("/work"))

			resp, err := r.Run(context.Background(), "do the thing", tt.class)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if !resp.Success || resp.Output != "done" {
				t.Errorf("resp = %+v", resp)
			}

			calls := fe.callsTo("claude")
			if len(calls) != 1 {
				t.Fatalf("claude called %d times", len(calls))
			}
			want := []string{"-p", "do the thing", "--model", tt.model}
			if strings.Join(calls[0].args, "|") != strings.Join(want, "|") {
				t.Errorf("args = %q, want %q", calls[0].args, want)
			}
			if calls[0].dir != "/work" {
				t.Errorf("dir = %q, want /work", calls[0].dir)
			}
			if len(fe.callsTo("git")) != 0 {
				t.Error("git must not be called when commit tracking is off")
			}
		})
	}
}

func TestClaudeRunner_CustomCommandAndModels(t *testing.T) {
	fe := newFakeExecutor().on("/opt/claude", "", nil)
	r := NewClaudeRunner(WithExecutor(fe), WithCommand("/opt/claude"), WithModels("sonnet", ""))

	if r.Model(executor.ClassLight) != "sonnet" || r.Model(executor.ClassHeavy) != DefaultHeavyModel {
		t.Errorf("models = %s/%s", r.Model(executor.ClassLight), r.Model(executor.ClassHeavy))
	}
	if _, err := r.Run(context.Background(), "x", executor.ClassLight); err != nil {
		t.Fatal(err)
	}
	if len(fe.callsTo("/opt/claude")) != 1 {
		t.Error("custom command not used")
	}
	if r.Name() != "claude" {
		t.Errorf("Name() = %q", r.Name())
	}
}

func TestClaudeRunner_CommitTracking(t *testing.T) {
	tests := []struct {
		name    string
		heads   []fakeResult
		success bool
		want    string
	}{
		{"new commit", []fakeResult{{out: "aaa\n"}, {out: "bbb\n"}}, true, "bbb"},
		{"no new commit", []fakeResult{{out: "aaa\n"}, {out: "aaa\n"}}, true, ""},
		{"not a repository", []fakeResult{{err: fmt.Errorf("not a git repository")}}, true, ""},
		{"failed run ignores head", []fakeResult{{out: "aaa\n"}, {out: "bbb\n"}}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := newFakeExecutor()
			fe.results["git"] = tt.heads
			if tt.success {
				fe.on("claude", "ok", nil)
			} else {
				fe.on("claude", "broken", &fakeExitError{code: 1})
			}
			r := NewClaudeRunner(WithExecutor(fe), WithCommitTracking(true))

			resp, err := r.Run(context.Background(), "x", executor.ClassHeavy)
			if err != nil {
				t.Fatal(err)
			}
			if resp.CommitRef != tt.want {
				t.Errorf("CommitRef = %q, want %q", resp.CommitRef, tt.want)
			}
			if got := fe.callsTo("git"); len(got) > 0 && strings.Join(got[0].args, " ") != "rev-parse HEAD" {
				t.Errorf("git args = %v", got[0].args)
			}
		})
	}
}

// overlapExecutor holds every claude call until n of them have started, so
// the runs overlap. HEAD moves once the first n git reads are done.
type overlapExecutor struct {
	mu      sync.Mutex
	gitRuns int
	n       int
	started sync.WaitGroup
}

func newOverlapExecutor(n int) *overlapExecutor {
	oe := &overlapExecutor{n: n}
	oe.started.Add(n)
	return oe
}

func (oe *overlapExecutor) Run(_ context.Context, _ string, name string, _ ...string) ([]byte, error) {
	if name == "git" {
		oe.mu.Lock()
		defer oe.mu.Unlock()
		oe.gitRuns++
		if oe.gitRuns <= oe.n {
			return []byte("base\n"), nil
		}
		return []byte("moved\n"), nil
	}
	oe.started.Done()
	oe.started.Wait()
	return []byte("ok"), nil
}

func TestClaudeRunner_OverlappingRunsGetNoCommit(t *testing.T) {
	oe := newOverlapExecutor(2)
	r := NewClaudeRunner(WithExecutor(oe), WithCommitTracking(true))

	var wg sync.WaitGroup
	resps := make([]executor.Response, 2)
	errs := make([]error, 2)
	for i := range resps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resps[i], errs[i] = r.Run(context.Background(), fmt.Sprintf("step %d", i), executor.ClassLight)
		}()
	}
	wg.Wait()

	for i := range resps {
		if errs[i] != nil {
			t.Fatalf("run %d error = %v", i, errs[i])
		}
		if !resps[i].Success || resps[i].CommitRef != "" {
			t.Errorf("run %d = %+v, want success without CommitRef", i, resps[i])
		}
	}

	if len(r.inflight) != 0 {
		t.Errorf("inflight = %d, want 0 after all runs", len(r.inflight))
	}

	// A run with no overlap is attributed.
	single := NewClaudeRunner(WithExecutor(newFakeExecutor().
		on("git", "base\n", nil).on("git", "moved\n", nil).
		on("claude", "ok", nil)), WithCommitTracking(true))
	resp, err := single.Run(context.Background(), "alone", executor.ClassLight)
	if err != nil || resp.CommitRef != "moved" {
		t.Errorf("single run = %+v, %v; want CommitRef moved", resp, err)
	}
}

func TestRunProcess_Classification(t *testing.T) {
	t.Run("non-zero exit is a structured failure", func(t *testing.T) {
		fe := newFakeExecutor().on("claude", "tests failed\n", &fakeExitError{code: 2})
		resp, err := NewClaudeRunner(WithExecutor(fe)).Run(context.Background(), "x", executor.ClassLight)
		if err != nil {
			t.Fatalf("Run() error = %v, want nil", err)
		}
		if resp.Success || resp.Output != "tests failed" {
			t.Errorf("resp = %+v", resp)
		}
	})

	t.Run("start failure is a runner error", func(t *testing.T) {
		fe := newFakeExecutor().on("claude", "", fmt.Errorf("permission denied"))
		_, err := NewClaudeRunner(WithExecutor(fe)).Run(context.Background(), "x", executor.ClassLight)
		var runnerErr *errors.RunnerError
		if !errors.As(err, &runnerErr) {
			t.Fatalf("error = %v, want RunnerError", err)
		}
		if runnerErr.Runner != "claude" || !errors.IsRetryable(err) {
			t.Errorf("runnerErr = %+v, retryable = %v", runnerErr, errors.IsRetryable(err))
		}
		if !errors.Is(err, errors.ErrRunnerFailed) {
			t.Error("should match ErrRunnerFailed")
		}
	})

	t.Run("missing binary is not retryable", func(t *testing.T) {
		fe := newFakeExecutor().on("claude", "", &exec.Error{Name: "claude", Err: exec.ErrNotFound})
		_, err := NewClaudeRunner(WithExecutor(fe)).Run(context.Background(), "x", executor.ClassLight)
		if err == nil || errors.IsRetryable(err) {
			t.Errorf("error = %v, retryable = %v; want non-retryable error", err, errors.IsRetryable(err))
		}
	})

	t.Run("cancelled context is a runner error", func(t *testing.T) {
		fe := newFakeExecutor()
		fe.block = true
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewShellRunner("", fe).Run(ctx, "sleep 10", executor.ClassLight)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
		if errors.IsRetryable(err) {
			t.Error("cancellation must not be retryable")
		}
		var runnerErr *errors.RunnerError
		if !errors.As(err, &runnerErr) || runnerErr.ExitCode != -1 {
			t.Errorf("runnerErr = %+v, want no exit code", runnerErr)
		}
	})

	t.Run("interrupted process keeps its exit code", func(t *testing.T) {
		fe := newFakeExecutor().on("sh", "caught signal\n", &fakeExitError{code: 130})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		resp, err := NewShellRunner("", fe).Run(ctx, "trap 'exit 130' INT; sleep 10", executor.ClassLight)
		var runnerErr *errors.RunnerError
		if !errors.As(err, &runnerErr) {
			t.Fatalf("error = %v, want RunnerError", err)
		}
		if runnerErr.ExitCode != 130 || !strings.Contains(err.Error(), "exit=130") {
			t.Errorf("runnerErr = %+v, want exit code 130", runnerErr)
		}
		if resp.Output != "caught signal" {
			t.Errorf("Output = %q", resp.Output)
		}
	})
}

func TestShellRunner(t *testing.T) {
	fe := newFakeExecutor().on("sh", "hello\n", nil)
	r := NewShellRunner("/tmp", fe)

	resp, err := r.Run(context.Background(), "echo hello", executor.ClassHeavy)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Output != "hello" {
		t.Errorf("resp = %+v", resp)
	}
	calls := fe.callsTo("sh")
	if len(calls) != 1 || strings.Join(calls[0].args, " ") != "-c echo hello" || calls[0].dir != "/tmp" {
		t.Errorf("calls = %+v", calls)
	}
	if r.Name() != "shell" {
		t.Errorf("Name() = %q", r.Name())
	}
}

// scriptedRunner returns its results in order and counts calls.
type scriptedRunner struct {
	mu      sync.Mutex
	results []fakeRunResult
	calls   int
}

type fakeRunResult struct {
	resp executor.Response
	err  error
}

func (s *scriptedRunner) Run(ctx context.Context, _ string, _ executor.ResourceClass) (executor.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	return s.results[i].resp, s.results[i].err
}

func TestWithRetry(t *testing.T) {
	transient := errors.NewRunnerError("connection reset", nil)
	permanent := errors.NewRunnerError("bad flag", nil).WithRetryable(false)
	ok := fakeRunResult{resp: executor.Response{Success: true, Output: "ok"}}

	tests := []struct {
		name      string
		attempts  int
		results   []fakeRunResult
		wantCalls int
		wantErr   bool
	}{
		{"success first try", 3, []fakeRunResult{ok}, 1, false},
		{"retry then success", 3, []fakeRunResult{{err: transient}, {err: transient}, ok}, 3, false},
		{"gives up after attempts", 2, []fakeRunResult{{err: transient}}, 2, true},
		{"permanent error not retried", 3, []fakeRunResult{{err: permanent}}, 1, true},
		{"structured failure not retried", 3, []fakeRunResult{{resp: executor.Response{Success: false, Output: "no"}}}, 1, false},
		{"timeout retried", 2, []fakeRunResult{{err: errors.NewTimeoutError("step", time.Second)}, ok}, 2, false},
		{"zero attempts means one", 0, []fakeRunResult{{err: transient}}, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &scriptedRunner{results: tt.results}
			r := WithRetry(inner, tt.attempts, time.Millisecond)

			_, err := r.Run(context.Background(), "x", executor.ClassLight)
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if inner.calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", inner.calls, tt.wantCalls)
			}
		})
	}
}

func TestWithRetry_StopsOnCancel(t *testing.T) {
	inner := &scriptedRunner{results: []fakeRunResult{{err: errors.NewRunnerError("flaky", nil)}}}
	r := WithRetry(inner, 5, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	done := make(chan struct{})
	go func() {
		_, _ = r.Run(ctx, "x", executor.ClassLight)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("retry loop ignored cancellation")
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d, want 1", inner.calls)
	}
}

func TestWithTimeout(t *testing.T) {
	t.Run("deadline becomes timeout error", func(t *testing.T) {
		fe := newFakeExecutor()
		fe.block = true
		r := WithTimeout(NewShellRunner("", fe), 20*time.Millisecond)

		resp, err := r.Run(context.Background(), "sleep 100", executor.ClassLight)
		var timeoutErr *errors.TimeoutError
		if !errors.As(err, &timeoutErr) {
			t.Fatalf("error = %v, want TimeoutError", err)
		}
		if !errors.Is(err, errors.ErrTimeout) || timeoutErr.Duration != 20*time.Millisecond {
			t.Errorf("timeoutErr = %+v", timeoutErr)
		}
		if !strings.Contains(timeoutErr.Operation, "shell") {
			t.Errorf("Operation = %q, want runner name", timeoutErr.Operation)
		}
		if resp.Success {
			t.Error("timed out run must not succeed")
		}
	})

	t.Run("fast run passes through", func(t *testing.T) {
		fe := newFakeExecutor().on("sh", "ok", nil)
		resp, err := WithTimeout(NewShellRunner("", fe), time.Minute).Run(context.Background(), "true", executor.ClassLight)
		if err != nil || !resp.Success {
			t.Errorf("resp = %+v, err = %v", resp, err)
		}
	})

	t.Run("zero disables", func(t *testing.T) {
		base := NewShellRunner("", newFakeExecutor())
		if WithTimeout(base, 0) != executor.TaskRunner(base) {
			t.Error("WithTimeout(r, 0) should return r")
		}
	})

	t.Run("parent cancellation is not a timeout", func(t *testing.T) {
		fe := newFakeExecutor()
		fe.block = true
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := WithTimeout(NewShellRunner("", fe), time.Minute).Run(ctx, "x", executor.ClassLight)
		if errors.Is(err, errors.ErrTimeout) {
			t.Errorf("error = %v, should not be a timeout", err)
		}
	})
}

func TestName(t *testing.T) {
	shell := NewShellRunner("", nil)
	tests := []struct {
		name string
		r    executor.TaskRunner
		want string
	}{
		{"namer", shell, "shell"},
		{"retry delegates", WithRetry(shell, 2, 0), "shell"},
		{"timeout delegates", WithTimeout(shell, time.Second), "shell"},
		{"plain func", executor.TaskRunnerFunc(func(context.Context, string, executor.ResourceClass) (executor.Response, error) {
			return executor.Response{}, nil
		}), "runner"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Name(tt.r); got != tt.want {
				t.Errorf("Name() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNew_FromConfig(t *testing.T) {
	cfg := config.Default().Runner

	r, err := New(cfg, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	retry, ok := r.(*RetryRunner)
	if !ok {
		t.Fatalf("runner = %T, want *RetryRunner", r)
	}
	if retry.Attempts != cfg.MaxRetries+1 || retry.Delay != cfg.RetryDelay() {
		t.Errorf("retry = %+v", retry)
	}
	if _, ok := retry.Runner.(*ClaudeRunner); !ok {
		t.Errorf("base runner = %T, want *ClaudeRunner without timeout", retry.Runner)
	}

	cfg.Kind = "shell"
	cfg.MaxRetries = 0
	cfg.StepTimeoutMinutes = 5
	r, err = New(cfg, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	timeout, ok := r.(*TimeoutRunner)
	if !ok || timeout.Timeout != 5*time.Minute {
		t.Fatalf("runner = %#v, want 5m TimeoutRunner", r)
	}
	if Name(r) != "shell" {
		t.Errorf("Name() = %q", Name(r))
	}

	cfg.Kind = "docker"
	if _, err := New(cfg, "", nil); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("unknown kind error = %v", err)
	}
}
