package compiler

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/miekg/dns"

	"github.com/oskar456/dzonegit/internal/hookerr"
)

// MissingDotRecords returns the PTR records in the canonical zone text whose
// target ends with the zone name itself. Such targets were almost always
// written as absolute names without the final dot.
func MissingDotRecords(name string, canonical []byte) ([]string, error) {
	origin := dns.Fqdn(strings.ToLower(name))
	suffix := "." + origin
	var found []string
	zp := dns.NewZoneParser(bytes.NewReader(canonical), origin, "")
	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		ptr, isPTR := rr.(*dns.PTR)
		if !isPTR {
			continue
		}
		if strings.HasSuffix(strings.ToLower(ptr.Ptr), suffix) {
			found = append(found, ptr.String())
		}
	}
	if err := zp.Err(); err != nil {
		return nil, fmt.Errorf("parsing canonical zone %s: %w", name, err)
	}
	return found, nil
}

func checkMissingDot(name string, canonical []byte) error {
	found, err := MissingDotRecords(name, canonical)
	if err != nil {
		return err
	}
	if len(found) > 0 {
		return hookerr.Validation("Missing dot after hostname in PTR records", "", strings.Join(found, "\n"))
	}
	return nil
}
