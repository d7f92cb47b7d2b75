// Package runner executes external commands for the agents. Ordinary command
// failure (non-zero exit) is reported in the result, never as an error, so
// callers can treat lint findings and failing tests as data.
package runner

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// CommandResult captures one command invocation.
type CommandResult struct {
	Success  bool
	ExitCode int
	Output   string
	Error    string
	Duration time.Duration
}

// CommandRunner runs a named shell command in a working directory.
type CommandRunner interface {
	Run(ctx context.Context, command string) CommandResult
}

// ShellRunner executes commands through the platform shell.
type ShellRunner struct {
	logger *zap.Logger
	dir    string
}

// NewShellRunner builds a runner rooted at dir.
func NewShellRunner(logger *zap.Logger, dir string) *ShellRunner {
	return &ShellRunner{logger: logger.Named("runner"), dir: dir}
}

// Run implements CommandRunner.
func (r *ShellRunner) Run(ctx context.Context, command string) CommandResult {
	start := time.Now()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", command)
	} else {
		shell := os.Getenv("SHELL")
		if shell == "" {
			shell = "/bin/sh"
		}
		cmd = exec.CommandContext(ctx, shell, "-c", command)
	}
	cmd.Dir = r.dir
	cmd.Env = os.Environ()

	output, err := cmd.CombinedOutput()
	res := CommandResult{
		Success:  err == nil,
		Output:   string(output),
		Duration: time.Since(start),
	}
	if err != nil {
		res.Error = err.Error()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			// The command never ran (bad shell, cancelled context).
			res.ExitCode = -1
		}
	}

	r.logger.Debug("Command finished.",
		zap.String("command", command),
		zap.Bool("success", res.Success),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", res.Duration),
	)
	return res
}
