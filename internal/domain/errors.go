package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can pick rollback vs. compensation
// without string-matching messages.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindValidation       Kind = "validation"
	KindSerialization    Kind = "serialization"
	KindAutomerge        Kind = "automerge"
	KindDatabase         Kind = "database"
	KindIO               Kind = "io"
	KindConversion       Kind = "conversion"
	KindExport           Kind = "export"
	KindInvalidOperation Kind = "invalid_operation"
)

// Error is the typed error produced by the storage and projection layers.
// It wraps the underlying cause so errors.Is/As keep working through it.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "crdtval.write"
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a typed error wrapping cause; cause may be nil.
func E(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Ef builds a typed error with a formatted message and no cause.
func Ef(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf reports the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
