package runner

import (
	"context"

	"github.com/Iron-Ham/phasekit/internal/executor"
)

// ShellRunner runs step instructions as a shell script with `sh -c`. The
// resource class is ignored. It is meant for plans whose steps are plain
// commands, such as CI pipelines and demos.
type ShellRunner struct {
	shell string
	dir   string
	exec  CommandExecutor
}

// NewShellRunner creates a ShellRunner that runs in dir. A nil ce uses
// os/exec.
func NewShellRunner(dir string, ce CommandExecutor) *ShellRunner {
	if ce == nil {
		ce = NewCLICommandExecutor()
	}
	return &ShellRunner{shell: "sh", dir: dir, exec: ce}
}

// Name implements executor.Namer.
func (r *ShellRunner) Name() string {
	return "shell"
}

// Run implements executor.TaskRunner.
func (r *ShellRunner) Run(ctx context.Context, instructions string, _ executor.ResourceClass) (executor.Response, error) {
	return runProcess(ctx, r.exec, r.Name(), r.dir, r.shell, "-c", instructions)
}
