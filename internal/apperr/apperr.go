// Package apperr defines the stable error taxonomy shared by every
// component and surfaced verbatim to clients as an errorType tag.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Type string

const (
	Validation            Type = "Validation"
	InsufficientDiskSpace Type = "InsufficientDiskSpace"
	FileTooLarge          Type = "FileTooLarge"
	ChunkIntegrity        Type = "ChunkIntegrity"
	ChunkedUploadError    Type = "ChunkedUploadError"
	NetworkError          Type = "NetworkError"
	Timeout               Type = "Timeout"
	Cancelled             Type = "Cancelled"
	MaxRetriesExceeded    Type = "MaxRetriesExceeded"
	Fatal                 Type = "Fatal"
)

// Error is the typed error carried across component boundaries and
// rendered to clients with a stable Type tag.
type Error struct {
	ErrType Type
	Message string
	Detail  map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.ErrType, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.ErrType, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(t Type, message string) *Error {
	return &Error{ErrType: t, Message: message}
}

func Newf(t Type, format string, args ...interface{}) *Error {
	return &Error{ErrType: t, Message: fmt.Sprintf(format, args...)}
}

func Wrap(t Type, message string, err error) *Error {
	return &Error{ErrType: t, Message: message, Err: err}
}

func WithDetail(t Type, message string, detail map[string]interface{}) *Error {
	return &Error{ErrType: t, Message: message, Detail: detail}
}

// As extracts an *Error from err, if any is in the chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// TypeOf returns the Type of err if it (or something it wraps) is an
// *Error, and Fatal otherwise.
func TypeOf(err error) Type {
	if e, ok := As(err); ok {
		return e.ErrType
	}
	return Fatal
}

// HTTPStatus maps a Type to the response status gin handlers should use.
func HTTPStatus(t Type) int {
	switch t {
	case Validation, ChunkIntegrity, ChunkedUploadError:
		return http.StatusBadRequest
	case InsufficientDiskSpace, FileTooLarge:
		return http.StatusUnprocessableEntity
	case Timeout:
		return http.StatusRequestTimeout
	case Cancelled:
		return http.StatusConflict
	case NetworkError:
		return http.StatusBadGateway
	case MaxRetriesExceeded:
		return http.StatusTooManyRequests
	case Fatal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
