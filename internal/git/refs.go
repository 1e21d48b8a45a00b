package git

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// RefUpdate is one "<old> <new> <ref>" line as git feeds it to the
// pre-receive and post-receive hooks.
type RefUpdate struct {
	Old string
	New string
	Ref string
}

// Created reports whether the ref did not exist before the push.
func (u RefUpdate) Created() bool { return u.Old == ZeroRevision }

// Deleted reports whether the push removes the ref.
func (u RefUpdate) Deleted() bool { return u.New == ZeroRevision }

// Base returns the revision to diff the new revision against: the old
// revision, or EmptyTree for a newly created ref.
func (u RefUpdate) Base() string {
	if u.Created() {
		return EmptyTree
	}
	return u.Old
}

// ReadRefUpdates parses hook standard input. Blank lines are skipped.
func ReadRefUpdates(r io.Reader) ([]RefUpdate, error) {
	var updates []RefUpdate
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed ref update line %q", line)
		}
		updates = append(updates, RefUpdate{Old: fields[0], New: fields[1], Ref: fields[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading ref updates: %w", err)
	}
	return updates, nil
}
