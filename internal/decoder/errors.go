package decoder

import (
	"errors"
	"fmt"
)

// ErrDecode matches every error returned by this package.
var ErrDecode = errors.New("decode error")

// UnknownKindError is returned for a tag the decoder has no variant for.
type UnknownKindError struct {
	Tag string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown record kind %q", e.Tag)
}

func (e *UnknownKindError) Is(target error) bool { return target == ErrDecode }

// MalformedError is returned when a field is missing or its value does not
// parse into the expected width.
type MalformedError struct {
	Kind   string
	Field  string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%s: field %q: %s", e.Kind, e.Field, e.Reason)
}

func (e *MalformedError) Is(target error) bool { return target == ErrDecode }

// NotExtractableError is returned when a pushed member has the wrong
// primitive category.
type NotExtractableError struct {
	Kind     string
	Field    string
	Expected string
	Got      string
}

func (e *NotExtractableError) Error() string {
	return fmt.Sprintf("%s: field %q: expected %s, got %s", e.Kind, e.Field, e.Expected, e.Got)
}

func (e *NotExtractableError) Is(target error) bool { return target == ErrDecode }

func malformed(field, format string, args ...any) error {
	return &MalformedError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func missing(field string) error {
	return &MalformedError{Field: field, Reason: "missing"}
}

// withKind stamps the record kind on a field error.
func withKind(err error, kind string) error {
	var m *MalformedError
	if errors.As(err, &m) {
		m.Kind = kind
		return err
	}
	var n *NotExtractableError
	if errors.As(err, &n) {
		n.Kind = kind
	}
	return err
}
