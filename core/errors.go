package core

import "fmt"

// FormatError reports that a string-typed entry point received input that is
// not a valid numeral for the active numeric policy. It is surfaced to the
// immediate caller and never retried.
type FormatError struct {
	Input string
	Err   error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("not a number: %q", e.Input)
}

func (e *FormatError) Unwrap() error { return e.Err }

// NewFormatError wraps a parse failure for the given raw input.
func NewFormatError(input string, err error) *FormatError {
	return &FormatError{Input: input, Err: err}
}

// EvaluationError reports that a level's formula is malformed or references a
// placeholder that was never resolved. It is fatal to the lookup that hit it;
// callers must not substitute a silent numeric value.
type EvaluationError struct {
	Expr   string
	Reason string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("cannot evaluate formula %q: %s", e.Expr, e.Reason)
}

// NewEvaluationError builds an EvaluationError for the given expression.
func NewEvaluationError(expr, reason string) *EvaluationError {
	return &EvaluationError{Expr: expr, Reason: reason}
}
