package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError provides a structured error that can be rendered to API consumers.
type AppError struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Details    []string `json:"details,omitempty"`
	StatusCode int      `json:"-"`
	Internal   error    `json:"-"`
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

// WithMessage returns a copy of the AppError carrying a more specific message.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Message = message
	return &cpy
}

// WithDetails returns a copy of the AppError listing per-item failure messages.
func (e *AppError) WithDetails(details ...string) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Details = append([]string(nil), details...)
	return &cpy
}

// Common errors exposed to the rest of the application.
var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "Permission denied",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}

	ErrServiceUnavailable = &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    "Service temporarily unavailable, please try again later",
		StatusCode: http.StatusServiceUnavailable,
	}
)

// Invitation and submission outcomes.
var (
	ErrInvalidInput = &AppError{
		Code:       "INVALID_INPUT",
		Message:    "Invalid input",
		StatusCode: http.StatusBadRequest,
	}

	ErrRoleMismatch = &AppError{
		Code:       "ROLE_MISMATCH",
		Message:    "This action is not available for your role",
		StatusCode: http.StatusForbidden,
	}

	ErrNotActivated = &AppError{
		Code:       "NOT_ACTIVATED",
		Message:    "Redeem an invitation code before submitting work",
		StatusCode: http.StatusForbidden,
	}

	ErrCodeExhausted = &AppError{
		Code:       "CODE_EXHAUSTED",
		Message:    "Invitation code is no longer available",
		StatusCode: http.StatusGone,
	}

	ErrAlreadyRedeemed = &AppError{
		Code:       "ALREADY_REDEEMED",
		Message:    "You have already used this invitation code",
		StatusCode: http.StatusConflict,
	}

	ErrDuplicateCode = &AppError{
		Code:       "DUPLICATE_CODE",
		Message:    "An invitation with this code already exists",
		StatusCode: http.StatusConflict,
	}

	ErrUnsupportedType = &AppError{
		Code:       "UNSUPPORTED_TYPE",
		Message:    "File type is not allowed",
		StatusCode: http.StatusUnsupportedMediaType,
	}

	ErrTooLarge = &AppError{
		Code:       "TOO_LARGE",
		Message:    "File exceeds the maximum allowed size",
		StatusCode: http.StatusRequestEntityTooLarge,
	}

	ErrNoFilesProvided = &AppError{
		Code:       "NO_FILES_PROVIDED",
		Message:    "At least one file is required",
		StatusCode: http.StatusBadRequest,
	}

	ErrBatchRejected = &AppError{
		Code:       "BATCH_REJECTED",
		Message:    "Please correct the selected files and try again",
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrAssignmentClosed = &AppError{
		Code:       "ASSIGNMENT_CLOSED",
		Message:    "This assignment is no longer accepting submissions",
		StatusCode: http.StatusConflict,
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

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest wraps validation errors with a helpful message.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrBadRequest.Code,
		Message:    message,
		StatusCode: ErrBadRequest.StatusCode,
	}
}
