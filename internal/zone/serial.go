package zone

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

var (
	// ErrSerialNotFound is returned when no serial follows an SOA line.
	ErrSerialNotFound = errors.New("serial not found after SOA record")
	// ErrSerialAmbiguous is returned when more than one SOA record carries
	// the serial.
	ErrSerialAmbiguous = errors.New("serial found after more than one SOA record")
)

// serialPattern matches from the start of a line containing the SOA keyword
// up to the first occurrence of serial that follows whitespace or an opening
// parenthesis and is not followed by another digit. Group 2 is the serial
// itself.
func serialPattern(serial string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)(^[^\n]*\sSOA\s[\s\S]+?[\s(])(` + regexp.QuoteMeta(serial) + `)(?:[^0-9]|$)`)
}

// SubstituteSerial returns data with the SOA serial oldSerial replaced by
// newSerial. Exactly one SOA record must carry oldSerial.
func SubstituteSerial(data []byte, oldSerial, newSerial string) ([]byte, error) {
	matches := serialPattern(oldSerial).FindAllSubmatchIndex(data, -1)
	switch {
	case len(matches) == 0:
		return nil, ErrSerialNotFound
	case len(matches) > 1:
		return nil, ErrSerialAmbiguous
	}
	start, end := matches[0][4], matches[0][5]
	out := make([]byte, 0, len(data)-len(oldSerial)+len(newSerial))
	out = append(out, data[:start]...)
	out = append(out, newSerial...)
	out = append(out, data[end:]...)
	return out, nil
}

// ReplaceSerial rewrites the SOA serial of the zone file at path from
// oldSerial to newSerial. The file is left untouched on any error.
func ReplaceSerial(path, oldSerial, newSerial string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	updated, err := SubstituteSerial(data, oldSerial, newSerial)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return writeFileAtomic(path, updated)
}

// writeFileAtomic replaces path by writing a sibling temporary file and
// renaming it over the original, keeping the original permissions.
func writeFileAtomic(path string, data []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
