package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// AppError provides a structured, user-presentable error for the embedding UI.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// Mutation failure classes surfaced to the calling UI code.
var (
	ErrAuthRequired = &AppError{
		Code:       "AUTH_REQUIRED",
		Message:    "Please sign in to continue",
		StatusCode: http.StatusUnauthorized,
	}

	ErrPermissionDenied = &AppError{
		Code:       "PERMISSION_DENIED",
		Message:    "You do not have permission to perform this action",
		StatusCode: http.StatusForbidden,
	}

	ErrDuplicateAction = &AppError{
		Code:       "DUPLICATE_ACTION",
		Message:    "You have already responded to this report",
		StatusCode: http.StatusConflict,
	}

	ErrNetworkUnavailable = &AppError{
		Code:       "NETWORK_UNAVAILABLE",
		Message:    "Network unavailable, please try again",
		StatusCode: 0,
	}

	ErrRateLimited = &AppError{
		Code:       "RATE_LIMITED",
		Message:    "Too many requests, please slow down",
		StatusCode: http.StatusTooManyRequests,
	}

	ErrServerError = &AppError{
		Code:       "SERVER_ERROR",
		Message:    "Something went wrong on our side, please try again later",
		StatusCode: http.StatusInternalServerError,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Report not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrUnknown = &AppError{
		Code:       "UNKNOWN",
		Message:    "An unexpected error occurred",
		StatusCode: http.StatusInternalServerError,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       ErrUnknown.Code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// NewBadRequest wraps validation errors with a helpful message.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrBadRequest.Code,
		Message:    message,
		StatusCode: ErrBadRequest.StatusCode,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrUnknown.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrUnknown.WithInternal(err)
}

// Classify maps a remote mutation failure to a user-facing error class by
// inspecting the HTTP status and the error message rather than assuming a
// single error shape. A zero status means the request never reached the server.
func Classify(statusCode int, err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch statusCode {
	case http.StatusUnauthorized:
		return ErrAuthRequired.WithInternal(err)
	case http.StatusForbidden:
		return ErrPermissionDenied.WithInternal(err)
	case http.StatusConflict:
		return ErrDuplicateAction.WithInternal(err)
	case http.StatusNotFound:
		return ErrNotFound.WithInternal(err)
	case http.StatusTooManyRequests:
		return ErrRateLimited.WithInternal(err)
	}
	if statusCode >= http.StatusInternalServerError {
		return ErrServerError.WithInternal(err)
	}

	message := ""
	if err != nil {
		message = strings.ToLower(err.Error())
	}

	switch {
	case containsAny(message, "jwt", "token expired", "not authenticated", "auth session missing"):
		return ErrAuthRequired.WithInternal(err)
	case containsAny(message, "permission", "not allowed", "forbidden", "row-level security"):
		return ErrPermissionDenied.WithInternal(err)
	case containsAny(message, "duplicate", "already exists", "unique constraint"):
		return ErrDuplicateAction.WithInternal(err)
	case containsAny(message, "network", "connection refused", "no such host", "timeout", "deadline exceeded"):
		return ErrNetworkUnavailable.WithInternal(err)
	case containsAny(message, "rate limit", "too many requests"):
		return ErrRateLimited.WithInternal(err)
	}

	return ErrUnknown.WithInternal(err)
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
