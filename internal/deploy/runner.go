package deploy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Runner runs configured shell commands.
type Runner interface {
	// Run runs command through the shell with args appended as separate,
	// quoted arguments.
	Run(ctx context.Context, command string, args ...string) error
}

// ShellRunner runs commands with sh -c. Command output is passed through,
// so on the server it ends up relayed to the pushing client.
type ShellRunner struct {
	Shell  string
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// NewShellRunner returns a runner using /bin/sh and the process's output
// streams.
func NewShellRunner(logger *slog.Logger) *ShellRunner {
	return &ShellRunner{Shell: "/bin/sh", Stdout: os.Stdout, Stderr: os.Stderr, Logger: logger}
}

// Run implements Runner.
func (r *ShellRunner) Run(ctx context.Context, command string, args ...string) error {
	script := command
	if len(args) > 0 {
		script += ` "$@"`
	}
	shell := r.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	// $0 is set to "sh"; args follow as $1 .. $n.
	cmd := exec.CommandContext(ctx, shell, append([]string{"-c", script, "sh"}, args...)...)
	cmd.Stdout = r.Stdout
	var stderr bytes.Buffer
	if r.Stderr != nil {
		cmd.Stderr = io.MultiWriter(r.Stderr, &stderr)
	} else {
		cmd.Stderr = &stderr
	}
	if r.Logger != nil {
		r.Logger.Debug("running command", "command", command, "args", args)
	}
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", command, err, msg)
		}
		return fmt.Errorf("%s: %w", command, err)
	}
	return nil
}
