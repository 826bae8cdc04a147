// Package errors provides structured error types for gemlock.
//
// Every failure that can reach the command line carries a machine-readable
// [Code]. Domain packages define richer error types (a solver conflict chain,
// the list of sources tried for a missing gem) that unwrap to an [*Error], so
// callers at the boundary only need [Is] and [UserMessage].
//
// # Error Codes
//
// Codes fall into three groups:
//   - Modeling errors detected before search starts: DUPLICATE_DEPENDENCY,
//     AMBIGUOUS_SPECIFICATION, INVALID_MANIFEST, INVALID_OPTION
//   - Search errors: GEM_NOT_FOUND, SOLVE_FAILURE, SOURCE_FETCH_ERROR
//   - Post-resolution gates: RUBY_VERSION_MISMATCH, FROZEN
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidOption, "unknown platform %q", p)
//	if errors.Is(err, errors.ErrCodeInvalidOption) {
//	    // Handle option error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeNetwork, origErr, "failed to fetch %s", url)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Manifest and option errors
	ErrCodeInvalidInput           Code = "INVALID_INPUT"
	ErrCodeInvalidOption          Code = "INVALID_OPTION"
	ErrCodeInvalidManifest        Code = "INVALID_MANIFEST"
	ErrCodeInvalidLockfile        Code = "INVALID_LOCKFILE"
	ErrCodeInvalidPath            Code = "INVALID_PATH"
	ErrCodeInvalidPackage         Code = "INVALID_PACKAGE"
	ErrCodeDuplicateDependency    Code = "DUPLICATE_DEPENDENCY"
	ErrCodeAmbiguousSpecification Code = "AMBIGUOUS_SPECIFICATION"

	// Resolution errors
	ErrCodeGemNotFound      Code = "GEM_NOT_FOUND"
	ErrCodeSolveFailure     Code = "SOLVE_FAILURE"
	ErrCodeSourceFetch      Code = "SOURCE_FETCH_ERROR"
	ErrCodeRubyVersion      Code = "RUBY_VERSION_MISMATCH"
	ErrCodeFrozen           Code = "FROZEN"
	ErrCodeLockfileNotFound Code = "LOCKFILE_NOT_FOUND"

	// Resource not found errors
	ErrCodeNotFound Code = "NOT_FOUND"

	// Network errors
	ErrCodeNetwork Code = "NETWORK_ERROR"

	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return Wrap(code, nil, format, args...)
}

// Wrap creates an Error that records cause. Two Wraps of the same cause with
// different codes keep both codes visible to [Is].
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether any *Error in err's chain has the given code.
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode extracts the outermost error code from an error, if available.
// Returns empty string if the chain holds no *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
