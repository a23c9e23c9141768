package runner

import (
	"context"
	"strings"
	"sync"

	"github.com/Iron-Ham/phasekit/internal/executor"
	"github.com/Iron-Ham/phasekit/internal/logging"
)

// Default settings for the claude CLI runner.
const (
	DefaultClaudeCommand = "claude"
	DefaultLightModel    = "haiku"
	DefaultHeavyModel    = "opus"
)

// ClaudeRunner runs step instructions with the claude CLI in print mode:
//
//	claude -p <instructions> --model <model>
//
// The model is chosen from the resource class. When commit tracking is on,
// git HEAD is read before and after the run and a new HEAD becomes the
// response's CommitRef. A run that overlapped another run of the same
// ClaudeRunner gets no CommitRef, since the new HEAD may belong to either.
type ClaudeRunner struct {
	command      string
	lightModel   string
	heavyModel   string
	dir          string
	trackCommits bool
	exec         CommandExecutor
	logger       *logging.Logger

	mu       sync.Mutex
	inflight map[*runSlot]struct{}
}

// runSlot records whether a run shared the working tree with another run.
type runSlot struct {
	shared bool
}

// ClaudeOption configures a ClaudeRunner.
type ClaudeOption func(*ClaudeRunner)

// WithCommand sets the executable name or path.
func WithCommand(command string) ClaudeOption {
	return func(r *ClaudeRunner) {
		if command != "" {
			r.command = command
		}
	}
}

// WithModels sets the models used for the light and heavy classes. Empty
// values keep the defaults.
func WithModels(light, heavy string) ClaudeOption {
	return func(r *ClaudeRunner) {
		if light != "" {
			r.lightModel = light
		}
		if heavy != "" {
			r.heavyModel = heavy
		}
	}
}

// WithDir sets the working directory of the spawned processes.
func WithDir(dir string) ClaudeOption {
	return func(r *ClaudeRunner) {
		r.dir = dir
	}
}

// WithCommitTracking enables or disables git HEAD tracking.
func WithCommitTracking(enabled bool) ClaudeOption {
	return func(r *ClaudeRunner) {
		r.trackCommits = enabled
	}
}

// WithExecutor sets the command executor. This is primarily useful for testing.
func WithExecutor(ce CommandExecutor) ClaudeOption {
	return func(r *ClaudeRunner) {
		if ce != nil {
			r.exec = ce
		}
	}
}

// WithClaudeLogger sets the logger.
func WithClaudeLogger(logger *logging.Logger) ClaudeOption {
	return func(r *ClaudeRunner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewClaudeRunner creates a ClaudeRunner.
func NewClaudeRunner(opts ...ClaudeOption) *ClaudeRunner {
	r := &ClaudeRunner{
		command:    DefaultClaudeCommand,
		lightModel: DefaultLightModel,
		heavyModel: DefaultHeavyModel,
		exec:       NewCLICommandExecutor(),
		logger:     logging.NopLogger(),
		inflight:   make(map[*runSlot]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name implements executor.Namer.
func (r *ClaudeRunner) Name() string {
	return "claude"
}

// Model returns the model used for class.
func (r *ClaudeRunner) Model(class executor.ResourceClass) string {
	if class == executor.ClassHeavy {
		return r.heavyModel
	}
	return r.lightModel
}

// Run implements executor.TaskRunner.
func (r *ClaudeRunner) Run(ctx context.Context, instructions string, class executor.ResourceClass) (executor.Response, error) {
	model := r.Model(class)
	r.logger.Debug("invoking claude",
		"model", model,
		"class", class.String(),
		"instructions_len", len(instructions),
	)

	if !r.trackCommits {
		return runProcess(ctx, r.exec, r.Name(), r.dir, r.command, "-p", instructions, "--model", model)
	}

	slot := r.begin()
	before := r.head(ctx)
	resp, err := runProcess(ctx, r.exec, r.Name(), r.dir, r.command, "-p", instructions, "--model", model)
	var after string
	if err == nil && resp.Success {
		after = r.head(ctx)
	}
	shared := r.end(slot)

	if err != nil || !resp.Success {
		return resp, err
	}
	if after != "" && after != before {
		if shared {
			r.logger.Debug("commit not attributed to overlapping run", "head", after)
		} else {
			resp.CommitRef = after
		}
	}
	return resp, nil
}

// begin registers a tracked run. Every run in flight at the same time is
// marked shared, including the new one.
func (r *ClaudeRunner) begin() *runSlot {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot := &runSlot{}
	if len(r.inflight) > 0 {
		slot.shared = true
		for other := range r.inflight {
			other.shared = true
		}
	}
	r.inflight[slot] = struct{}{}
	return slot
}

// end unregisters slot and reports whether it overlapped another run.
func (r *ClaudeRunner) end(slot *runSlot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, slot)
	return slot.shared
}

// head returns the current git HEAD of the working directory, or "" when it
// cannot be determined.
func (r *ClaudeRunner) head(ctx context.Context) string {
	out, err := r.exec.Run(ctx, r.dir, "git", "rev-parse", "HEAD")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
