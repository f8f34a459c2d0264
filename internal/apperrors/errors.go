package apperrors

import (
	"errors"
	"net/http"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	ErrRefreshTokenNotFound     = errors.New("refresh token not found")
	ErrVerificationCodeNotFound = errors.New("verification code not found")

	ErrTaskNotFound = errors.New("task not found")

	// Required secret or credential is not configured
	ErrConfiguration = errors.New("configuration error")
)

// Error is an error that is safe to show to the client.
// Code mirrors the HTTP status the error has to be rendered with.
type Error struct {
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func BadRequest(message string) *Error {
	return &Error{Code: http.StatusBadRequest, Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Code: http.StatusUnauthorized, Message: message}
}

func Unprocessable(message string) *Error {
	return &Error{Code: http.StatusUnprocessableEntity, Message: message}
}

// Internal wraps err so it is logged at the boundary, the client only sees message
func Internal(message string, err error) *Error {
	return &Error{Code: http.StatusInternalServerError, Message: message, Err: err}
}

// As returns the client-safe error if err chain has one
func As(err error) (*Error, bool) {
	var appErr *Error
	ok := errors.As(err, &appErr)
	return appErr, ok
}
