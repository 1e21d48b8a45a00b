// Package hooks validates zone changes for the pre-commit, update and
// pre-receive git hooks.
//
// Every changed zone file is compiled at the new revision. If the file
// existed at the base revision too, that version is compiled as well and
// the two are compared: changed content must come with an increased serial.
// Validation is fail-fast; the first failure ends the run.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/oskar456/dzonegit/internal/compiler"
	"github.com/oskar456/dzonegit/internal/config"
	"github.com/oskar456/dzonegit/internal/git"
	"github.com/oskar456/dzonegit/internal/hookerr"
	"github.com/oskar456/dzonegit/internal/serial"
	"github.com/oskar456/dzonegit/internal/zone"
)

// Failure messages.
const (
	MsgWhitespaceErrors   = "Whitespace errors"
	MsgDoesNotCompile     = "New zone version does not compile"
	MsgSerialNotIncreased = "Zone contents changed without increasing serial"
)

// changedFilter selects added, modified, copied and renamed files.
const changedFilter = git.FilterAdded + git.FilterModified + git.FilterCopied + git.FilterRenamed

// oldCompileOffset backdates the base revision's compile so a serial taken
// from $UNIXTIME is lower in the old version and counts as increased.
const oldCompileOffset = time.Second

// Repository is the subset of git operations validation needs.
type Repository interface {
	AlteredFiles(ctx context.Context, against, filter, revision string) ([]string, error)
	FileContents(ctx context.Context, path, revision string) ([]byte, error)
	WhitespaceErrors(ctx context.Context, against, revision string, pathspecs ...string) (string, error)
}

// Validator runs the checks. Config must be set; the zero Now means
// time.Now.
type Validator struct {
	Repo     Repository
	Compiler compiler.Compiler
	Config   *config.Config
	Logger   *slog.Logger
	// WorkDir is the working tree that serial auto-repair rewrites.
	WorkDir string
	Now     func() time.Time
}

func (v *Validator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v *Validator) logger() *slog.Logger {
	if v.Logger != nil {
		return v.Logger
	}
	return slog.Default()
}

// PreCommit validates the staging area against the against commit (HEAD,
// or git.EmptyTree for the first commit). Serial auto-repair is enabled
// unless dzonegit.noserialupdate is set.
func (v *Validator) PreCommit(ctx context.Context, against string) error {
	if err := v.CheckWhitespace(ctx, against, ""); err != nil {
		return err
	}
	return v.CheckUpdatedZones(ctx, against, "", !v.Config.Validation.NoSerialUpdate)
}

// Update validates one ref update as the update hook receives it.
func (v *Validator) Update(ctx context.Context, ref, oldRev, newRev string) error {
	return v.checkRefUpdate(ctx, git.RefUpdate{Old: oldRev, New: newRev, Ref: ref})
}

// PreReceive validates every "<old> <new> <ref>" line read from r.
func (v *Validator) PreReceive(ctx context.Context, r io.Reader) error {
	updates, err := git.ReadRefUpdates(r)
	if err != nil {
		return hookerr.Configuration(err.Error())
	}
	for _, u := range updates {
		if err := v.checkRefUpdate(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) checkRefUpdate(ctx context.Context, u git.RefUpdate) error {
	branch := v.Config.Validation.Branch
	if u.Ref != branch {
		return hookerr.Configuration(fmt.Sprintf("Nothing else except %s branch is accepted here", branch))
	}
	if u.Deleted() {
		return hookerr.Configuration(fmt.Sprintf("Deleting %s branch is not allowed", branch))
	}
	against := u.Base()
	if err := v.CheckWhitespace(ctx, against, u.New); err != nil {
		return err
	}
	return v.CheckUpdatedZones(ctx, against, u.New, false)
}

// CheckWhitespace fails when git reports whitespace errors in zone files
// changed between against and revision (the index when empty). It is a
// no-op when dzonegit.ignorewhitespaceerrors is set.
func (v *Validator) CheckWhitespace(ctx context.Context, against, revision string) error {
	if v.Config.Validation.IgnoreWhitespaceErrors {
		return nil
	}
	report, err := v.Repo.WhitespaceErrors(ctx, against, revision, "*"+zone.Suffix)
	if err != nil {
		return err
	}
	if report != "" {
		return hookerr.Validation(MsgWhitespaceErrors, "", strings.TrimRight(report, "\n"))
	}
	return nil
}

// CheckUpdatedZones compiles every zone file changed between against and
// revision (the index when empty) and checks its serial. With autoRepair
// a serial that was not increased is fixed in WorkDir, but the check still
// fails so the corrected file gets staged and validated again.
func (v *Validator) CheckUpdatedZones(ctx context.Context, against, revision string, autoRepair bool) error {
	files, err := v.Repo.AlteredFiles(ctx, against, changedFilter, revision)
	if err != nil {
		return err
	}
	now := v.now()
	for _, f := range files {
		if !strings.HasSuffix(f, zone.Suffix) {
			continue
		}
		if err := v.checkZone(ctx, f, against, revision, now, autoRepair); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) checkZone(ctx context.Context, f, against, revision string, now time.Time, autoRepair bool) error {
	log := v.logger().With("file", f)
	log.Info("Checking file")

	data, err := v.Repo.FileContents(ctx, f, revision)
	if err != nil {
		return err
	}
	name, err := zone.Name(f, data, v.Config.Validation.AllowFancyNames)
	if err != nil {
		return err
	}
	rnew, err := v.Compiler.Compile(ctx, name, data, compiler.Options{
		Time:            now,
		CheckMissingDot: !v.Config.Validation.NoMissingDotCheck,
	})
	if err != nil {
		return withFile(err, f)
	}
	if !rnew.Success {
		return hookerr.Validation(MsgDoesNotCompile, f, strings.TrimRight(rnew.Diagnostics, "\n"))
	}
	log.Debug("New version compiled", "zone", name, "serial", rnew.Serial)

	oldData, err := v.Repo.FileContents(ctx, f, against)
	if errors.Is(err, git.ErrNotFound) {
		log.Debug("New zone file, skipping serial check")
		return nil
	}
	if err != nil {
		return err
	}
	oldName, err := zone.Name(f, oldData, v.Config.Validation.AllowFancyNames)
	if err != nil {
		log.Debug("Old version has no valid name, skipping serial check", "error", err)
		return nil
	}
	rold, err := v.Compiler.Compile(ctx, oldName, oldData, compiler.Options{Time: now.Add(-oldCompileOffset)})
	if err != nil {
		return withFile(err, f)
	}
	if !rold.Success || rold.Hash == rnew.Hash {
		return nil
	}
	increased, err := serial.IsIncreased(rold.Serial, rnew.Serial)
	if err != nil {
		return err
	}
	if increased {
		return nil
	}

	detail := fmt.Sprintf("Old revision %s, serial %s, new serial %s", against, rold.Serial, rnew.Serial)
	if autoRepair {
		detail += "\n" + v.repairSerial(f, rold.Serial, rnew.Serial, now)
	}
	return hookerr.Validation(MsgSerialNotIncreased, f, detail)
}

// repairSerial rewrites the serial of f in the working tree and returns a
// notice for the user.
func (v *Validator) repairSerial(f, oldSerial, newSerial string, now time.Time) string {
	next, err := serial.Increased(oldSerial, now)
	if err == nil {
		err = zone.ReplaceSerial(filepath.Join(v.WorkDir, filepath.FromSlash(f)), newSerial, next)
	}
	if err != nil {
		v.logger().Warn("Automatic serial repair failed", "file", f, "error", err)
		return fmt.Sprintf("Automatic serial repair failed (%v), please increase the serial manually.", err)
	}
	v.logger().Info("Serial corrected", "file", f, "serial", next)
	return fmt.Sprintf("Serial has been corrected to %s, please recommit.", next)
}

// withFile attaches the file name to hook failures that lack one.
func withFile(err error, f string) error {
	if he, ok := hookerr.As(err); ok && he.File == "" {
		cp := *he
		cp.File = f
		return &cp
	}
	return err
}
