// Command dzonegit validates DNS zone changes in git hooks and deploys
// accepted zones to the DNS server.
//
// Install it as the pre-commit hook of a working copy and as the update
// (or pre-receive) and post-receive hooks of the server repository, either
// by symlinking the hook name to the binary or by calling the matching
// subcommand from a hook script.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oskar456/dzonegit/internal/hookerr"
)

// hookNames are the subcommands that may be selected through argv[0].
var hookNames = map[string]bool{
	"pre-commit":    true,
	"update":        true,
	"pre-receive":   true,
	"post-receive":  true,
	"smudge-serial": true,
}

func main() {
	root := newRootCmd()
	root.SetArgs(dispatchArgs(os.Args))
	if err := root.ExecuteContext(context.Background()); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

// dispatchArgs maps an invocation through a hook symlink, such as
// .git/hooks/pre-commit or dzonegit-pre-commit, to the subcommand.
func dispatchArgs(argv []string) []string {
	if len(argv) == 0 {
		return nil
	}
	name := strings.TrimPrefix(filepath.Base(argv[0]), "dzonegit-")
	if hookNames[name] {
		return append([]string{name}, argv[1:]...)
	}
	return argv[1:]
}

// reportError prints hook failures the way users expect them: the file,
// the message and the checker output.
func reportError(w io.Writer, err error) {
	if he, ok := hookerr.As(err); ok {
		fmt.Fprint(w, he.Error())
		return
	}
	fmt.Fprintf(w, "dzonegit: %v\n", err)
}
