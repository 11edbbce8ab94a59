// Package apperr defines the error kinds surfaced to the UI layer.
//
// Every error returned across a component boundary is an *Error tagged with a
// Kind. Callers test for a kind with errors.Is against the exported sentinels:
//
//	if errors.Is(err, apperr.ErrValidation) { ... }
//
// Kinds nest: a synthesis failure caused by a model load failure matches both
// ErrSynthesis and ErrModelLoad.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindModelLoad
	KindNotFound
	KindIO
	KindEncoding
	KindSynthesis
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindModelLoad:
		return "model load"
	case KindNotFound:
		return "not found"
	case KindIO:
		return "io"
	case KindEncoding:
		return "encoding"
	case KindSynthesis:
		return "synthesis"
	default:
		return "unknown"
	}
}

// Error is a kind-tagged error. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrModelLoad  = &Error{Kind: KindModelLoad}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrIO         = &Error{Kind: KindIO}
	ErrEncoding   = &Error{Kind: KindEncoding}
	ErrSynthesis  = &Error{Kind: KindSynthesis}
)

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return e.Kind.String() + " error"
	case e.Err == nil:
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	case e.Op == "":
		return e.Err.Error()
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a bare sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap tags err with kind. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
