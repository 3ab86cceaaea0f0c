// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errkind classifies the failures of a script invocation.
//
// The kind is for logging, metrics and status codes. Callers see the
// rendered message; they should not branch on the kind.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is the class of a failure.
type Kind int

const (
	// Unknown is the kind of errors not created by this package.
	Unknown Kind = iota

	// InvalidArgument is malformed caller input.
	InvalidArgument

	// ClientNotFound is a connection id missing from the registry.
	ClientNotFound

	// ScriptParseError is script text that does not parse or resolve.
	ScriptParseError

	// ScriptRuntimeError is a script that failed while running.
	ScriptRuntimeError

	// ConversionError is a value that cannot be mapped between Starlark
	// and BSON.
	ConversionError

	// DatabaseOperationError is a failed driver call.
	DatabaseOperationError

	// PersistenceError is a failure of the saved connection store.
	PersistenceError
)

var kindNames = [...]string{
	Unknown:                "Unknown",
	InvalidArgument:        "InvalidArgument",
	ClientNotFound:         "ClientNotFound",
	ScriptParseError:       "ScriptParseError",
	ScriptRuntimeError:     "ScriptRuntimeError",
	ConversionError:        "ConversionError",
	DatabaseOperationError: "DatabaseOperationError",
	PersistenceError:       "PersistenceError",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Error is a classified error. Op names the operation that failed,
// for example "insertOne" or "registry.lookup".
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		if e.Op == "" {
			return e.Kind.String()
		}
		return e.Op + ": " + e.Kind.String()
	case e.Op == "":
		return e.Err.Error()
	default:
		return e.Op + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind with no
// operation and cause, so sentinel comparisons work:
//
//	errors.Is(err, &errkind.Error{Kind: errkind.ClientNotFound})
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// New returns an error of kind k for op wrapping err.
func New(k Kind, op string, err error) error {
	return &Error{Kind: k, Op: op, Err: err}
}

// Errorf returns an error of kind k for op with a formatted cause.
// The format supports %w.
func Errorf(k Kind, op string, format string, args ...any) error {
	return &Error{Kind: k, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in err's chain,
// or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries kind k.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}
