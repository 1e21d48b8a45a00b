// Package git is the seam between the hooks and the version-control backend.
//
// Every operation shells out to the git binary, the same way git's own
// sample hooks do. Revisions are plain strings; an empty revision means the
// staging area (index) where git supports it.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strconv"
	"strings"
)

const (
	// EmptyTree is the id of the empty tree object. Diffing against it
	// treats every file as added.
	EmptyTree = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"
	// ZeroRevision is what git passes for a ref that does not exist on one
	// side of an update.
	ZeroRevision = "0000000000000000000000000000000000000000"
)

// Change-type filters for AlteredFiles (git diff --diff-filter letters).
const (
	FilterAdded    = "A"
	FilterCopied   = "C"
	FilterDeleted  = "D"
	FilterModified = "M"
	FilterRenamed  = "R"
)

var (
	// ErrNotFound is returned when a path does not exist at a revision.
	ErrNotFound = errors.New("path not found at revision")
)

// Repository runs git commands in Dir (the current directory when empty).
type Repository struct {
	Dir    string
	Logger *slog.Logger
}

// New returns a Repository rooted at dir.
func New(dir string, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{Dir: dir, Logger: logger}
}

// commandError describes a git invocation that exited non-zero.
type commandError struct {
	args   []string
	code   int
	stderr string
}

func (e *commandError) Error() string {
	msg := strings.TrimSpace(e.stderr)
	if msg == "" {
		return fmt.Sprintf("git %s: exit status %d", strings.Join(e.args, " "), e.code)
	}
	return fmt.Sprintf("git %s: exit status %d: %s", strings.Join(e.args, " "), e.code, msg)
}

func exitCode(err error) (int, bool) {
	var ce *commandError
	if errors.As(err, &ce) {
		return ce.code, true
	}
	return 0, false
}

// run executes git with args and returns its standard output.
func (r *Repository) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if r.Logger != nil {
		r.Logger.Debug("running git", "args", args)
	}
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.Bytes(), &commandError{args: args, code: exitErr.ExitCode(), stderr: stderr.String()}
		}
		return nil, fmt.Errorf("failed to run git: %w", err)
	}
	return stdout.Bytes(), nil
}

// Head returns the commit HEAD points to, or EmptyTree when the repository
// has no commits yet.
func (r *Repository) Head(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "--verify", "-q", "HEAD")
	if err != nil {
		if _, ok := exitCode(err); ok {
			return EmptyTree, nil
		}
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// AlteredFiles lists paths that differ between against and revision, or
// between against and the index when revision is empty. filter is a set of
// change-type letters (see the Filter constants); empty means all. The
// result is sorted.
func (r *Repository) AlteredFiles(ctx context.Context, against, filter, revision string) ([]string, error) {
	args := []string{"diff", "--name-only", "-z", "--no-renames"}
	if strings.ContainsAny(filter, FilterRenamed+FilterCopied) {
		args = args[:len(args)-1]
	}
	if filter != "" {
		args = append(args, "--diff-filter="+filter)
	}
	if revision != "" {
		args = append(args, against, revision)
	} else {
		args = append(args, "--cached", against)
	}
	out, err := r.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0)
	for _, p := range strings.Split(strings.TrimRight(string(out), "\x00"), "\x00") {
		if p != "" {
			files = append(files, p)
		}
	}
	sort.Strings(files)
	return files, nil
}

// FileContents returns path as committed at revision, or as staged when
// revision is empty. ErrNotFound is returned if the path does not exist
// there.
func (r *Repository) FileContents(ctx context.Context, path, revision string) ([]byte, error) {
	out, err := r.run(ctx, "show", revision+":"+path)
	if err != nil {
		if _, ok := exitCode(err); ok {
			return nil, fmt.Errorf("%s:%s: %w", revision, path, ErrNotFound)
		}
		return nil, err
	}
	return out, nil
}

// WhitespaceErrors runs git's whitespace check between against and revision
// (or the index when revision is empty), limited to pathspecs when given.
// It returns git's report, empty when the change is clean.
func (r *Repository) WhitespaceErrors(ctx context.Context, against, revision string, pathspecs ...string) (string, error) {
	var args []string
	if revision != "" {
		args = []string{"diff-tree", "-r", "--check", against, revision}
	} else {
		args = []string{"diff-index", "--check", "--cached", against}
	}
	if len(pathspecs) > 0 {
		args = append(append(args, "--"), pathspecs...)
	}
	out, err := r.run(ctx, args...)
	if err != nil {
		if _, ok := exitCode(err); ok {
			report := string(out)
			if report == "" {
				report = err.Error()
			}
			return report, nil
		}
		return "", err
	}
	return "", nil
}

// GitDir returns the repository's git directory.
func (r *Repository) GitDir(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// TopLevel returns the root of the working tree.
func (r *Repository) TopLevel(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Checkout force-checks out branch into workTree. branch may be given as a
// full ref; it is shortened so HEAD stays attached.
func (r *Repository) Checkout(ctx context.Context, workTree, branch string) error {
	_, err := r.run(ctx, "--work-tree="+workTree, "checkout", "-f", "-q", strings.TrimPrefix(branch, "refs/heads/"))
	return err
}

// ConfigString reads a string configuration value. ok is false when unset.
func (r *Repository) ConfigString(ctx context.Context, key string) (string, bool, error) {
	return r.config(ctx, key, "")
}

// ConfigBool reads a boolean configuration value.
func (r *Repository) ConfigBool(ctx context.Context, key string) (bool, bool, error) {
	s, ok, err := r.config(ctx, key, "bool")
	if err != nil || !ok {
		return false, ok, err
	}
	return s == "true", true, nil
}

// ConfigInt reads an integer configuration value. No dzonegit key is an
// integer today; it completes the typed accessors next to ConfigString and
// ConfigBool.
func (r *Repository) ConfigInt(ctx context.Context, key string) (int, bool, error) {
	s, ok, err := r.config(ctx, key, "int")
	if err != nil || !ok {
		return 0, ok, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, fmt.Errorf("config %s: %w", key, err)
	}
	return n, true, nil
}

func (r *Repository) config(ctx context.Context, key, typ string) (string, bool, error) {
	args := []string{"config", "--get"}
	if typ != "" {
		args = append(args, "--type="+typ)
	}
	args = append(args, key)
	out, err := r.run(ctx, args...)
	if err != nil {
		// git config exits 1 when the key is not set.
		if code, ok := exitCode(err); ok && code == 1 {
			return "", false, nil
		}
		return "", false, err
	}
	return strings.TrimRight(string(out), "\n"), true, nil
}
