package compiler

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/miekg/dns"
)

// Builtin compiles zones in-process with the miekg/dns zone parser.
//
// It mirrors the named-compilezone contract closely enough for the hooks:
// the zone must parse, have exactly one SOA record at its apex and at least
// one apex NS record. Records outside the zone are ignored with a warning.
// The canonical text is every record in presentation format, sorted.
type Builtin struct{}

// Compile implements Compiler.
func (Builtin) Compile(ctx context.Context, name string, data []byte, opts Options) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	origin := dns.Fqdn(strings.ToLower(name))
	label := fmt.Sprintf("zone %s/IN", strings.TrimSuffix(origin, "."))

	var (
		diag  strings.Builder
		lines []string
		soa   []*dns.SOA
		ns    int
	)
	zp := dns.NewZoneParser(bytes.NewReader(UnixtimeDirective(data, opts.Time)), origin, "")
	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		hdr := rr.Header()
		hdr.Name = strings.ToLower(hdr.Name)
		if !dns.IsSubDomain(origin, hdr.Name) {
			fmt.Fprintf(&diag, "%s: ignoring out-of-zone data (%s)\n", label, strings.TrimSuffix(hdr.Name, "."))
			continue
		}
		if hdr.Name == origin {
			switch v := rr.(type) {
			case *dns.SOA:
				soa = append(soa, v)
			case *dns.NS:
				ns++
			}
		}
		lines = append(lines, rr.String())
	}

	failed := false
	if err := zp.Err(); err != nil {
		fmt.Fprintf(&diag, "%s: %s\n", label, err)
		failed = true
	} else {
		if len(soa) != 1 {
			fmt.Fprintf(&diag, "%s: has %d SOA records\n", label, len(soa))
			failed = true
		}
		if ns == 0 {
			fmt.Fprintf(&diag, "%s: has no NS records\n", label)
			failed = true
		}
	}
	if failed {
		fmt.Fprintf(&diag, "%s: not loaded due to errors.\n", label)
		return evaluate(name, nil, diag.String(), false, opts)
	}

	sort.Strings(lines)
	var out bytes.Buffer
	for _, l := range lines {
		out.WriteString(l)
		out.WriteByte('\n')
	}
	fmt.Fprintf(&diag, "%s: loaded serial %d\nOK\n", label, soa[0].Serial)
	return evaluate(name, out.Bytes(), diag.String(), true, opts)
}
