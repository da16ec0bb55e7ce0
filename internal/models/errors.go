package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Error codes returned to API clients. Handlers map these to HTTP statuses;
// the client maps them to user-facing copy, so a more specific code must never
// be collapsed into a generic one.
const (
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeNotFound         = "NOT_FOUND"
	CodeBanned           = "BANNED"
	CodeSilenced         = "SILENCED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeValidation       = "VALIDATION_ERROR"
	CodeContentBlocked   = "CONTENT_BLOCKED"
	CodeStorage          = "STORAGE_ERROR"
	CodeInternal         = "INTERNAL_ERROR"
)

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError represents a custom application error.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewUnauthenticatedError indicates the request carried no valid identity.
func NewUnauthenticatedError(message string) *AppError {
	return &AppError{Code: CodeUnauthenticated, Message: message}
}

// NewPermissionDeniedError indicates the actor lacks the required permission.
func NewPermissionDeniedError(message string) *AppError {
	return &AppError{Code: CodePermissionDenied, Message: message}
}

func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message}
}

// NewBannedError indicates an active ban prevents the action.
func NewBannedError(message string) *AppError {
	return &AppError{Code: CodeBanned, Message: message}
}

// NewSilencedError indicates an active silence prevents posting.
func NewSilencedError(message string) *AppError {
	return &AppError{Code: CodeSilenced, Message: message}
}

// NewRateLimitedError indicates the caller exceeded the message rate limit.
func NewRateLimitedError(message string) *AppError {
	return &AppError{Code: CodeRateLimited, Message: message}
}

// NewContentBlockedError indicates the content filter rejected the message.
func NewContentBlockedError(message string) *AppError {
	return &AppError{Code: CodeContentBlocked, Message: message}
}

// NewStorageError wraps a failure from a storage collaborator. It is surfaced
// as-is; retry policy belongs to the caller.
func NewStorageError(err error) *AppError {
	return &AppError{Code: CodeStorage, Message: "Storage operation failed", Err: err}
}

func NewInternalError(err error) *AppError {
	return &AppError{Code: CodeInternal, Message: "Internal server error", Err: err}
}

// CodeOf returns the application error code for err, or CodeInternal when err
// is not an AppError.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// StatusForError maps an application error to its HTTP status.
func StatusForError(err error) int {
	switch CodeOf(err) {
	case CodeUnauthenticated:
		return fiber.StatusUnauthorized
	case CodePermissionDenied, CodeBanned, CodeSilenced:
		return fiber.StatusForbidden
	case CodeNotFound:
		return fiber.StatusNotFound
	case CodeRateLimited:
		return fiber.StatusTooManyRequests
	case CodeValidation:
		return fiber.StatusBadRequest
	case CodeContentBlocked:
		return fiber.StatusUnprocessableEntity
	case CodeStorage:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// RespondWithError creates a standardized error response.
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	var appErr *AppError
	if errors.As(err, &appErr) {
		response = ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		}
		if appErr.Err != nil {
			response.Details = appErr.Err.Error()
		}
	} else {
		response = ErrorResponse{Error: err.Error()}
	}

	return c.Status(status).JSON(response)
}

// RespondWithAppError maps the error code to an HTTP status automatically.
func RespondWithAppError(c *fiber.Ctx, err error) error {
	return RespondWithError(c, StatusForError(err), err)
}

// IsSchemaMissingError reports whether the error looks like a missing
// table/column error (schema not yet migrated). Used by lookups that should
// degrade to "no rows" instead of failing hard on a fresh database.
func IsSchemaMissingError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "undefined table")
}
