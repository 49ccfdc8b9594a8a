// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
)

// Code identifies a class of error for programmatic handling.
type Code string

const (
	CodeModelCommunication Code = "model_communication"
	CodeMalformedArguments Code = "malformed_arguments"
	CodeUnknownOperation   Code = "unknown_operation"
	CodeMissingParameter   Code = "missing_parameter"
	CodeInvalidParameter   Code = "invalid_parameter"
	CodePathEscape         Code = "path_escape"
	CodeNotFound           Code = "not_found"
	CodeOperationFailed    Code = "operation_failed"
)

// Error wraps an underlying error with a code and message.
// Field names the offending parameter for argument and path errors.
type Error struct {
	Code    Code
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		if e.Err != nil {
			return e.Err.Error()
		}
		return string(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is a coded error with the same code.
// This lets callers match with errors.Is(err, errors.New(CodeNotFound, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code && (t.Message == "" || t.Message == e.Message)
}

// New creates a new coded error with a message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a new coded error that wraps an underlying error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Missing reports the first absent required parameter.
func Missing(field string) *Error {
	return &Error{
		Code:    CodeMissingParameter,
		Field:   field,
		Message: fmt.Sprintf("missing required parameter %q", field),
	}
}

// Invalid reports a parameter that violates its declared constraint.
func Invalid(field, constraint string) *Error {
	return &Error{
		Code:    CodeInvalidParameter,
		Field:   field,
		Message: fmt.Sprintf("invalid parameter %q: %s", field, constraint),
	}
}

// Escape reports a path argument that resolves outside the sandbox.
func Escape(field, path, reason string) *Error {
	msg := fmt.Sprintf("path %q escapes the sandbox: %s", path, reason)
	if field != "" {
		msg = fmt.Sprintf("parameter %q: %s", field, msg)
	}
	return &Error{Code: CodePathEscape, Field: field, Message: msg}
}

// NotFound marks a missing file or resource.
func NotFound(message string, err error) *Error {
	return Wrap(CodeNotFound, message, err)
}

// CodeOf extracts the code of the first coded error in the chain.
// Errors wrapping fs.ErrNotExist map to CodeNotFound; anything else is
// CodeOperationFailed.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var coded *Error
	if stderrors.As(err, &coded) && coded.Code != "" {
		return coded.Code
	}
	if stderrors.Is(err, fs.ErrNotExist) {
		return CodeNotFound
	}
	return CodeOperationFailed
}

// FieldOf returns the parameter name attached to a coded error, if any.
func FieldOf(err error) string {
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.Field
	}
	return ""
}

// WithField attaches field to a coded error that does not name one yet.
// Non-coded errors are returned unchanged.
func WithField(err error, field string) error {
	var coded *Error
	if !stderrors.As(err, &coded) || coded.Field != "" {
		return err
	}
	cp := *coded
	cp.Field = field
	cp.Message = fmt.Sprintf("parameter %q: %s", field, coded.Message)
	return &cp
}
