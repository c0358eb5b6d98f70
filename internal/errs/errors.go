// Package errs defines the error taxonomy shared by every layer of quarry.
//
// Errors fall into three groups:
//
//   - Builder misuse, detected locally before any I/O:
//     UNBOUND_PROPERTY, EMPTY_EXPRESSION, INVALID_ARGUMENT.
//   - Backend or executor misuse, fatal to the current task:
//     SCHEMA_MISMATCH, NESTED_REVISION, CONCURRENT_REVISION_USE.
//   - Data-level errors, reported per row: MISSING_VALUE.
//
// All errors are *Error values carrying a Code. Callers test for a category
// with Is or one of the IsX helpers, which see through fmt.Errorf wrapping.
package errs

import (
	"errors"
	"fmt"
)

// Code categorizes an Error.
type Code string

const (
	// CodeUnboundProperty indicates an expression or item references a
	// property that is not declared on the bound model.
	CodeUnboundProperty Code = "UNBOUND_PROPERTY"

	// CodeEmptyExpression indicates an AND/OR group without children.
	CodeEmptyExpression Code = "EMPTY_EXPRESSION"

	// CodeInvalidArgument indicates builder misuse (negative limit, bad
	// direction, uncoercible value, invalid model definition).
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// CodeSchemaMismatch indicates the backend's current schema does not
	// contain a column the operation references.
	CodeSchemaMismatch Code = "SCHEMA_MISMATCH"

	// CodeNestedRevision indicates a revision was opened while another one
	// is still open on the same connection.
	CodeNestedRevision Code = "NESTED_REVISION"

	// CodeConcurrentRevisionUse indicates two tasks ran against one
	// revision at the same time.
	CodeConcurrentRevisionUse Code = "CONCURRENT_REVISION_USE"

	// CodeMissingValue indicates a required property has no value and no
	// default.
	CodeMissingValue Code = "MISSING_VALUE"
)

// Error is the structured error returned by quarry.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Model names the model involved, if any.
	Model string

	// Property names the property involved, if any.
	Property string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Model != "" && e.Property != "":
		msg += fmt.Sprintf(" (model=%s, property=%s)", e.Model, e.Property)
	case e.Model != "":
		msg += fmt.Sprintf(" (model=%s)", e.Model)
	case e.Property != "":
		msg += fmt.Sprintf(" (property=%s)", e.Property)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether err is, or wraps, an *Error with the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsUnboundProperty(err error) bool       { return Is(err, CodeUnboundProperty) }
func IsEmptyExpression(err error) bool       { return Is(err, CodeEmptyExpression) }
func IsInvalidArgument(err error) bool       { return Is(err, CodeInvalidArgument) }
func IsSchemaMismatch(err error) bool        { return Is(err, CodeSchemaMismatch) }
func IsNestedRevision(err error) bool        { return Is(err, CodeNestedRevision) }
func IsConcurrentRevisionUse(err error) bool { return Is(err, CodeConcurrentRevisionUse) }
func IsMissingValue(err error) bool          { return Is(err, CodeMissingValue) }

// UnboundProperty creates an error for a property not declared on model.
func UnboundProperty(model, property string) *Error {
	return &Error{
		Code:     CodeUnboundProperty,
		Message:  "property is not declared on the bound model",
		Model:    model,
		Property: property,
	}
}

// EmptyExpression creates an error for an AND/OR group without children.
func EmptyExpression(logic string) *Error {
	return &Error{
		Code:    CodeEmptyExpression,
		Message: fmt.Sprintf("%s group has no children", logic),
	}
}

// InvalidArgument creates a builder-misuse error.
func InvalidArgument(format string, args ...any) *Error {
	return &Error{
		Code:    CodeInvalidArgument,
		Message: fmt.Sprintf(format, args...),
	}
}

// SchemaMismatch creates an error for a column missing from the backend.
func SchemaMismatch(model, column, detail string) *Error {
	return &Error{
		Code:     CodeSchemaMismatch,
		Message:  detail,
		Model:    model,
		Property: column,
	}
}

// NestedRevision creates an error for a second revision on one connection.
func NestedRevision(openID string) *Error {
	return &Error{
		Code:    CodeNestedRevision,
		Message: fmt.Sprintf("revision %s is still open on this connection", openID),
	}
}

// ConcurrentRevisionUse creates an error for two live tasks on one revision.
func ConcurrentRevisionUse(revisionID string) *Error {
	return &Error{
		Code:    CodeConcurrentRevisionUse,
		Message: fmt.Sprintf("revision %s already has a running task", revisionID),
	}
}

// MissingValue creates an error for a required property without a value.
func MissingValue(model, property string) *Error {
	return &Error{
		Code:     CodeMissingValue,
		Message:  "property has no value and no default",
		Model:    model,
		Property: property,
	}
}
