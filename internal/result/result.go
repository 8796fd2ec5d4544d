// Package result holds the stable failure codes returned by the account
// services and the envelope used at the HTTP boundary.
package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable numeric failure code. Callers branch on it, never on
// the message text.
type Code int

const (
	CodeInternalServerError    Code = 10
	CodeUserNotFound           Code = 11
	CodeUserAlreadyExists      Code = 12
	CodeUserUnauthorizedAccess Code = 13
	CodeUserAlreadyHasThisRole Code = 14
	CodePasswordsNotMatch      Code = 21
	CodePasswordIsWrong        Code = 22
	CodeInvalidClientRequest   Code = 23
	CodeRoleAlreadyExists      Code = 31
	CodeRoleDoesNotExists      Code = 32
)

// Error is an expected business failure, or an unexpected fault mapped to
// CodeInternalServerError.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error with the same code, so wrapped internal errors
// still compare equal to ErrInternal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInternal               = &Error{Code: CodeInternalServerError, Message: "internal server error"}
	ErrUserNotFound           = &Error{Code: CodeUserNotFound, Message: "user not found"}
	ErrUserAlreadyExists      = &Error{Code: CodeUserAlreadyExists, Message: "user already exists"}
	ErrUserUnauthorizedAccess = &Error{Code: CodeUserUnauthorizedAccess, Message: "unauthorized access"}
	ErrUserAlreadyHasThisRole = &Error{Code: CodeUserAlreadyHasThisRole, Message: "user already has this role"}
	ErrPasswordsNotMatch      = &Error{Code: CodePasswordsNotMatch, Message: "passwords do not match"}
	ErrPasswordIsWrong        = &Error{Code: CodePasswordIsWrong, Message: "password is wrong"}
	ErrInvalidClientRequest   = &Error{Code: CodeInvalidClientRequest, Message: "invalid client request"}
	ErrRoleAlreadyExists      = &Error{Code: CodeRoleAlreadyExists, Message: "role already exists"}
	ErrRoleDoesNotExists      = &Error{Code: CodeRoleDoesNotExists, Message: "role does not exist"}
)

// Internal wraps an unexpected fault. A typed *Error passes through unchanged.
func Internal(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Code: CodeInternalServerError, Message: ErrInternal.Message, cause: err}
}

// CodeOf returns the failure code carried by err; untyped errors map to
// CodeInternalServerError.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternalServerError
}

// MessageOf returns the public message for err. Causes of internal errors
// are not exposed.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ErrInternal.Message
}

// HTTPStatus maps err to the status code written at the boundary.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case CodeOf(err) == CodeInternalServerError:
		return http.StatusInternalServerError
	case CodeOf(err) == CodeUserUnauthorizedAccess:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

// Envelope carries exactly one of Data or an error code.
type Envelope[T any] struct {
	IsSuccess    bool   `json:"isSuccess"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	ErrorCode    *Code  `json:"errorCode,omitempty"`
	Data         *T     `json:"data,omitempty"`
}

func Ok[T any](data T) Envelope[T] {
	return Envelope[T]{IsSuccess: true, Data: &data}
}

func Fail[T any](err error) Envelope[T] {
	code := CodeOf(err)
	return Envelope[T]{ErrorMessage: MessageOf(err), ErrorCode: &code}
}

// Respond writes the envelope for data or err with the matching status.
func Respond[T any](w http.ResponseWriter, data T, err error) {
	env := Ok(data)
	if err != nil {
		env = Fail[T](err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(env)
}
