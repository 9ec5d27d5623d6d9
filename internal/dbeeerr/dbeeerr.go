// Package dbeeerr defines the error kinds shared across the storage and
// server layers. Every component wraps underlying failures into one of
// these kinds rather than inventing ad-hoc sentinel errors, so the server
// can map any error to a wire status byte with a single type switch.
package dbeeerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure the way the rest of the system reasons about
// it: what the caller should do next, not which package produced it.
type Kind int

const (
	// InvalidInput covers malformed queries, unknown tables/columns, and
	// type mismatches.
	InvalidInput Kind = iota
	// NotFound covers missing databases and stale cursor handles.
	NotFound
	// AlreadyExists covers duplicate tables, columns, or databases.
	AlreadyExists
	// Corruption covers violated page-store invariants: truncated
	// headers, dangling next pointers, mismatched ids.
	Corruption
	// Storage covers underlying I/O failures or capacity exhaustion.
	Storage
	// Internal covers a poisoned coordination primitive.
	Internal
	// AuthFailed covers a wrong admin key or database key.
	AuthFailed
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid-input"
	case NotFound:
		return "not-found"
	case AlreadyExists:
		return "already-exists"
	case Corruption:
		return "corruption"
	case Storage:
		return "storage"
	case Internal:
		return "internal"
	case AuthFailed:
		return "auth-failed"
	default:
		return "unknown"
	}
}

// Error is the concrete error type carried through the system. It wraps an
// optional underlying cause so errors.Is/errors.As keep working across the
// boundary.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a Kind-tagged error with a message.
func New(k Kind, msg string) error {
	return &Error{Kind: k, Msg: msg}
}

// Newf builds a Kind-tagged error with a formatted message.
func Newf(k Kind, format string, args ...any) error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind and message to an underlying error.
func Wrap(k Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Msg: msg, Err: err}
}

// KindOf extracts the Kind of err, defaulting to Internal if err does not
// carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err (or any error it wraps) carries Kind k.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}
