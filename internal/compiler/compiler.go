// Package compiler validates zone data by compiling it.
//
// A Compiler takes a candidate zone name and raw zone bytes and reports
// whether the zone loads, the serial it loaded with and a hash of its
// canonical form. Two implementations exist: Named runs BIND's
// named-compilezone as a subprocess, Builtin parses the zone in-process.
// Both follow the same contract, so callers never depend on which one runs.
package compiler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"time"
)

// Result is the outcome of compiling one zone version.
type Result struct {
	Success bool
	// Serial is the serial the zone loaded with. Empty unless Success.
	Serial string
	// Hash is the hex SHA-256 of the canonical zone text. It is only used to
	// tell whether two versions differ. Empty unless Success.
	Hash string
	// Diagnostics is the compiler's raw diagnostic output.
	Diagnostics string
}

// Options tune a single compilation.
type Options struct {
	// Time replaces $UNIXTIME tokens. The zero value means time.Now().
	Time time.Time
	// CheckMissingDot rejects PTR targets that were written without a
	// trailing dot and therefore got the zone name appended.
	CheckMissingDot bool
}

// Compiler compiles zone data.
type Compiler interface {
	// Compile compiles data as zone name. A zone that fails to load is
	// reported through Result.Success; the error is reserved for failures
	// to run the compiler and for lint findings.
	Compile(ctx context.Context, name string, data []byte, opts Options) (Result, error)
}

var (
	loadedSerialRE = regexp.MustCompile(`(?m)^zone.*loaded serial ([0-9]+)\r?$`)
	unixtimeRE     = regexp.MustCompile(`(?i)\$UNIXTIME\b`)
)

// UnixtimeDirective replaces every $UNIXTIME token in data with the unix
// time of t, or of the current time if t is zero.
func UnixtimeDirective(data []byte, t time.Time) []byte {
	if t.IsZero() {
		t = time.Now()
	}
	return unixtimeRE.ReplaceAllLiteral(data, []byte(strconv.FormatInt(t.Unix(), 10)))
}

// evaluate turns raw compiler output into a Result. ok is false when the
// compiler exited unsuccessfully.
func evaluate(name string, stdout []byte, stderr string, ok bool, opts Options) (Result, error) {
	m := loadedSerialRE.FindStringSubmatch(stderr)
	if !ok || m == nil {
		return Result{Diagnostics: stderr}, nil
	}
	sum := sha256.Sum256(stdout)
	res := Result{
		Success:     true,
		Serial:      m[1],
		Hash:        hex.EncodeToString(sum[:]),
		Diagnostics: stderr,
	}
	if opts.CheckMissingDot {
		if err := checkMissingDot(name, stdout); err != nil {
			return res, err
		}
	}
	return res, nil
}
