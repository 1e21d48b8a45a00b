package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
)

// DefaultNamedCompilezone is where BIND installs named-compilezone.
const DefaultNamedCompilezone = "/usr/sbin/named-compilezone"

// Named compiles zones with BIND's named-compilezone.
//
// The zone is fed on standard input and the canonical zone text is read from
// standard output. The compiler must exit 0 and report
// "zone ... loaded serial N" on standard error for the zone to count as
// loaded.
type Named struct {
	// Path of the named-compilezone binary. Empty means
	// DefaultNamedCompilezone.
	Path   string
	Logger *slog.Logger
}

// Compile implements Compiler.
func (n *Named) Compile(ctx context.Context, name string, data []byte, opts Options) (Result, error) {
	bin := n.Path
	if bin == "" {
		bin = DefaultNamedCompilezone
	}
	cmd := exec.CommandContext(ctx, bin, "-o", "-", name, "/dev/stdin")
	cmd.Stdin = bytes.NewReader(UnixtimeDirective(data, opts.Time))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return Result{}, fmt.Errorf("failed to run %s: %w", bin, err)
	}
	if n.Logger != nil {
		n.Logger.Debug("zone compiled", "zone", name, "compiler", bin, "exit", cmd.ProcessState.ExitCode())
	}
	return evaluate(name, stdout.Bytes(), stderr.String(), err == nil, opts)
}
