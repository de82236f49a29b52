// Package apperr defines the error kinds the engine surfaces across the
// ledger, FX store, and transaction lifecycle.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for HTTP status mapping and transaction
// transition decisions.
type Kind string

const (
	InvalidInput           Kind = "invalid_input"
	NotFound               Kind = "not_found"
	InsufficientLiquidity  Kind = "insufficient_liquidity"
	InvariantViolation     Kind = "invariant_violation"
	Internal               Kind = "internal"
)

// Error is the engine's domain error type. It always carries a Kind so
// callers can branch on failure category without string matching.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind with a plain message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind, preserving cause for errors.Is/As.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, otherwise
// Internal — unclassified errors default to the most conservative kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether KindOf(err) is kind, so an error that is not an *Error
// counts as Internal.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
