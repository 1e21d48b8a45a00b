// Package serial implements SOA serial number arithmetic.
//
// Comparison follows RFC 1982: the 32-bit serial space is treated as a ring,
// so a serial may wrap around as long as it moves forward by less than half
// of the ring.
package serial

import (
	"fmt"
	"strconv"
	"time"
)

const (
	// halfRing is 2^31 - 1, the exclusive upper bound of a forward step.
	halfRing = 1<<31 - 1

	unixSerialFloor = 1_000_000_000
	dateSerialFloor = 2_000_000_000
)

// Parse parses a decimal serial. Values wider than 32 bits are accepted and
// reduced modulo 2^32 during comparison.
func Parse(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid serial %q: %w", s, err)
	}
	return v, nil
}

// IsIncreasedUint32 reports whether new is strictly ahead of old in RFC 1982
// order. Values exactly 2^31-1 or more apart are not considered increased.
func IsIncreasedUint32(old, new uint32) bool {
	diff := new - old
	return diff > 0 && diff < halfRing
}

// IsIncreased is IsIncreasedUint32 for decimal serial strings.
func IsIncreased(old, new string) (bool, error) {
	o, err := Parse(old)
	if err != nil {
		return false, err
	}
	n, err := Parse(new)
	if err != nil {
		return false, err
	}
	return IsIncreasedUint32(uint32(o), uint32(n)), nil
}

// Increased proposes the serial that should follow old, guessing the
// encoding old uses:
//
//   - between 1e9 and now (exclusive): a unix timestamp, returns now;
//   - between 2e9 and today as YYYYMMDD00 (exclusive): a date serial,
//     returns today as YYYYMMDD00;
//   - anything else: old + 1, wrapping to 0 past 2^32-1.
//
// The guess depends on the wall clock. Around 2034-06-16 unix time enters
// the YYYYMMDDnn range and the two encodings can no longer be told apart.
func Increased(old string, now time.Time) (string, error) {
	o, err := Parse(old)
	if err != nil {
		return "", err
	}
	unixNow := uint64(now.Unix())
	today := DateSerial(now)
	switch {
	case unixSerialFloor < o && o < unixNow:
		return strconv.FormatUint(unixNow, 10), nil
	case dateSerialFloor < o && o < today:
		return strconv.FormatUint(today, 10), nil
	default:
		return strconv.FormatUint(uint64(uint32(o)+1), 10), nil
	}
}

// DateSerial returns t's local date encoded as YYYYMMDD00.
func DateSerial(t time.Time) uint64 {
	y, m, d := t.Date()
	return uint64(y)*1_000_000 + uint64(m)*10_000 + uint64(d)*100
}
