// Package kernelerr defines the typed error vocabulary the entity/event
// kernel surfaces to its callers. It mirrors the teacher's
// internal/domain/aggregates error-code wrapper: a single concrete
// *Error type carrying a stable Code, an operation label, and the
// underlying cause, so callers can branch with errors.As/Is instead of
// string matching.
package kernelerr

import (
	"errors"
	"fmt"
	"strings"
)

// Code enumerates the error kinds spec.md §7 requires the kernel to
// surface distinctly.
type Code string

const (
	CodeBadInput        Code = "bad_input"
	CodeSchemaMissing   Code = "schema_missing"
	CodeVerbUnknown     Code = "verb_unknown"
	CodeUseActionForm   Code = "use_action_form"
	CodeVerbDisabled    Code = "verb_disabled"
	CodeNotFound        Code = "not_found"
	CodeVersionConflict Code = "version_conflict"
	CodeInternal        Code = "internal"
)

// HTTPStatus implements the §6 HTTP status mapping.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeBadInput, CodeSchemaMissing, CodeVerbUnknown, CodeUseActionForm:
		return 400
	case CodeVerbDisabled:
		return 403
	case CodeNotFound:
		return 404
	case CodeVersionConflict:
		return 409
	default:
		return 500
	}
}

// Error is the canonical kernel error wrapper.
type Error struct {
	Code    Code
	Op      string
	Message string
	Cause   error

	// VersionConflict-only detail, per spec.md scenario 2.
	CurrentVersion  int
	ExpectedVersion int
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a kernel error with an explicit code and operation label.
func New(code Code, op, message string, cause error) *Error {
	return &Error{Code: code, Op: strings.TrimSpace(op), Message: strings.TrimSpace(message), Cause: cause}
}

// Wrap annotates an existing error with kernel error semantics.
func Wrap(code Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return New(code, op, err.Error(), err)
}

// VersionConflict builds the scenario-2 conflict payload: current vs
// expected version, surfaced to the caller as 409.
func VersionConflict(op string, current, expected int) *Error {
	return &Error{
		Code:            CodeVersionConflict,
		Op:              op,
		Message:         "version conflict",
		CurrentVersion:  current,
		ExpectedVersion: expected,
	}
}

// Is reports whether err (or a wrapped err) carries the given code.
func Is(err error, code Code) bool {
	var ke *Error
	if !errors.As(err, &ke) {
		return false
	}
	return ke.Code == code
}

// CodeOf extracts the kernel error code when available.
func CodeOf(err error) Code {
	var ke *Error
	if !errors.As(err, &ke) {
		return ""
	}
	return ke.Code
}
