// Package anubiserr implements the seven error kinds the orchestrator and
// scheduler observe and produce, with source-location stamping in the style
// of the teacher's validation package and the original Rust bail_loc! macro.
package anubiserr

import (
	"fmt"
	"runtime"

	"github.com/pkg/errors"
)

// Kind tags an error with one of the categories the core distinguishes.
type Kind string

const (
	KindConfig     Kind = "ConfigError"
	KindTarget     Kind = "TargetError"
	KindDependency Kind = "DependencyError"
	KindArtifact   Kind = "ArtifactError"
	KindFilesystem Kind = "FilesystemError"
	KindRule       Kind = "RuleError"
	KindAbort      Kind = "AbortError"
)

// Error is a typed, located error. Location is stamped automatically by New
// and Wrap via runtime.Caller, matching the "source location by convention"
// requirement.
type Error struct {
	Kind     Kind
	Message  string
	Location string
	cause    error
}

func (e *Error) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("%s: %s (at %s)", e.Kind, e.Message, e.Location)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func location(skip int) string {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return ""
	}
	fn := runtime.FuncForPC(pc)
	name := "unknown"
	if fn != nil {
		name = fn.Name()
	}
	return fmt.Sprintf("%s:%d (%s)", file, line, name)
}

// New builds a located error of the given kind.
func New(kind Kind, format string, args ...interface{}) error {
	return errors.WithStack(&Error{
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		Location: location(1),
	})
}

// Wrap attaches kind and location information to an existing error without
// discarding it; Unwrap/errors.Is/As continue to work against cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	return errors.WithStack(&Error{
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		Location: location(1),
		cause:    cause,
	})
}

// Is reports whether err (or something it wraps) is an *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	for err != nil {
		if as, ok := err.(*Error); ok {
			e = as
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == k
}
