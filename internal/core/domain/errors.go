package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrTemporary       = errors.New("temporary failure")
	ErrFetch           = errors.New("source document unreadable")
	ErrUpstream        = errors.New("model call failed")
	ErrParse           = errors.New("model output is not recoverable json")
	ErrMalformedRecord = errors.New("malformed financial record")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ParseError keeps the offending model output for diagnostics.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return ErrParse.Error()
	}
	return fmt.Sprintf("%s: %v", ErrParse.Error(), e.Err)
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrParse}
	}
	return []error{ErrParse, e.Err}
}

// MalformedRecordError reports a batch record lacking a required container.
type MalformedRecordError struct {
	Index   int
	Name    string
	Missing string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("record %d (%q): missing %s", e.Index, e.Name, e.Missing)
}

func (e *MalformedRecordError) Unwrap() error {
	return ErrMalformedRecord
}
