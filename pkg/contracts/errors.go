package contracts

import (
	"errors"
	"fmt"
)

// Kind classifies an engine rejection so callers can branch on it.
// A Kind is itself an error, which lets callers write
// errors.Is(err, contracts.KindInsufficientBond).
type Kind string

const (
	KindInvalidInput        Kind = "INVALID_INPUT"
	KindNotAuthorized       Kind = "NOT_AUTHORIZED"
	KindInvalidState        Kind = "INVALID_STATE"
	KindInsufficientBond    Kind = "INSUFFICIENT_BOND"
	KindInsufficientBalance Kind = "INSUFFICIENT_BALANCE"
	KindNotFound            Kind = "NOT_FOUND"
)

func (k Kind) Error() string { return string(k) }

// Error is a typed rejection raised by an engine operation.
type Error struct {
	Kind   Kind
	Op     string
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Detail)
}

// Is matches a bare Kind or another *Error of the same kind.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind && (t.Op == "" || t.Op == e.Op)
	}
	return false
}

// Errorf builds a typed rejection for op.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of a typed rejection anywhere in err's chain,
// or "" for infrastructure errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return ""
}
