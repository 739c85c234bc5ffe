// Package domainerrors carries the error taxonomy shared by services and the
// HTTP edge. Services return *Error values tagged with a Code; the transport
// layer maps codes to status codes and JSON envelopes in one place
// (pkg/platform/httputil), so validation and authorization failures are never
// conflated.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code tags an error with its category.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeInvariantViolation Code = "invariant_violation"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"

	// Credential and identity codes.
	CodeMalformedCredential Code = "malformed_credential"
	CodeTamperedCredential  Code = "tampered_credential"
	CodeUnknownMember       Code = "unknown_member"
	CodeInvalidCredentials  Code = "invalid_credentials"
	CodeMissingToken        Code = "missing_token"
	CodeMalformedToken      Code = "malformed_token"
	CodeExpiredToken        Code = "expired_token"
	CodeWrongTokenType      Code = "wrong_token_type"
	CodeInsufficientRole    Code = "insufficient_role"
	CodeWeakPassword        Code = "weak_password"
)

// Error is a domain error with a code, a caller-safe message and an optional
// wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code and message so tests can use
// errors.Is(err, New(code, msg)).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New creates a domain error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the code of the outermost domain error in the chain, or
// CodeInternal when there is none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost domain error carries code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias of HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// MessageOf returns the caller-safe message of the outermost domain error.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
