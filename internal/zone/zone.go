// Package zone inspects zone file text: it derives the zone name a file
// describes and rewrites the SOA serial in place.
//
// Only the few directives the hooks rely on are recognised here ($ORIGIN and
// the SOA record start). Full validation is left to the zone compiler.
package zone

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/oskar456/dzonegit/internal/hookerr"
)

// Suffix is the file extension of zone files tracked in the repository.
const Suffix = ".zone"

var (
	soaLineRE = regexp.MustCompile(`(?i)^[^\s;]+\s+([0-9]+\s+)?(IN\s+)?SOA\s+`)
	originRE  = regexp.MustCompile(`(?i)^\$ORIGIN\s+([^ ]+)\.\s*(;.*)?$`)
)

// cosmetic characters ignored when comparing a file name with its $ORIGIN.
// File names often use '-' where a classless reverse zone has '/'.
var nameNormalizer = strings.NewReplacer(
	"/", "", "_", "", ",", "", ":", "", "-", "", "+", "",
	"*", "", "%", "", "^", "", "&", "", "#", "", "$", "",
)

// Origin returns the name declared by the last $ORIGIN directive preceding
// the SOA record, lower-cased and without the trailing dot. Directives after
// the SOA record are ignored. It returns "" when there is none.
func Origin(data []byte) string {
	origin := ""
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if soaLineRE.MatchString(line) {
			break
		}
		if m := originRE.FindStringSubmatch(line); m != nil {
			origin = strings.ToLower(m[1])
		}
	}
	if scanner.Err() != nil {
		// A line over the scanner limit hides the rest of the header, so
		// the file name is used.
		return ""
	}
	return origin
}

// Stem returns the lower-cased file name of p without its extension.
func Stem(p string) string {
	base := path.Base(filepath.ToSlash(p))
	return strings.ToLower(strings.TrimSuffix(base, path.Ext(base)))
}

// Name resolves the zone name for the file at p with contents data.
//
// The file stem is used unless the file declares an $ORIGIN before its SOA
// record. In that case stem and origin must agree once punctuation is
// removed, unless allowFancy is set, and the origin is returned.
func Name(p string, data []byte, allowFancy bool) (string, error) {
	stem := Stem(p)
	origin := Origin(data)
	if origin == "" {
		return stem, nil
	}
	if !allowFancy && nameNormalizer.Replace(stem) != nameNormalizer.Replace(origin) {
		return "", hookerr.Validation(
			fmt.Sprintf("Zone origin %s differs from zone file name %s.", origin, stem),
			p, "")
	}
	return origin, nil
}

// Discover returns the zone files below dir, relative to dir and sorted.
func Discover(dir string) ([]string, error) {
	files := make([]string, 0)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), Suffix) {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
