package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrFormat     = errors.New("invalid file format")
	ErrConflict   = errors.New("conflict")
)

// NotFoundError reports a missing entity or file. Detail is optional and is
// shown to operators as-is.
type NotFoundError struct {
	What   string
	ID     string
	Detail string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s %q not found", e.What, e.ID)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError is returned for input that can never succeed on retry.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// FormatError reports a file that is missing, unreadable or not the shape
// the stage expects (e.g. a page artifact with more than one page).
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

func (e *FormatError) Unwrap() error { return ErrFormat }

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrFormat) || errors.Is(err, ErrConflict)
}
