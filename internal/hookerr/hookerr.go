// Package hookerr defines the error value hooks report to the user.
//
// A hook failure carries a short message, the affected file (if any) and the
// raw output of whatever checker rejected the change. It aborts the current
// hook invocation and is printed verbatim before the process exits non-zero.
package hookerr

import (
	"errors"
	"strings"
)

// Kind classifies a hook failure.
type Kind int

const (
	// KindValidation means the proposed change was rejected.
	KindValidation Kind = iota
	// KindConfiguration means the hook was invoked incorrectly and no
	// validation took place.
	KindConfiguration
)

// String returns a string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Error is a structured hook failure.
type Error struct {
	Kind    Kind
	Message string
	File    string // affected file, optional
	Detail  string // checker output, optional
}

// Validation returns a validation failure.
func Validation(message, file, detail string) *Error {
	return &Error{Kind: KindValidation, Message: message, File: file, Detail: detail}
}

// Configuration returns a configuration failure.
func Configuration(message string) *Error {
	return &Error{Kind: KindConfiguration, Message: message}
}

// Error renders the failure the way it is shown to the user:
// "<file>: <message>" followed by the detail block.
func (e *Error) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	b.WriteString("\n")
	if e.Detail != "" {
		b.WriteString("\n")
		b.WriteString(e.Detail)
		b.WriteString("\n\n")
	}
	return b.String()
}

// As returns the hook failure in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
