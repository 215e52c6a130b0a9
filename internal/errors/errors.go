package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents an Aura error code.
type ErrorCode string

const (
	ErrInvalidSeverity       ErrorCode = "INVALID_SEVERITY"        // 400
	ErrInvalidRequest        ErrorCode = "INVALID_REQUEST"         // 400
	ErrUnauthorized          ErrorCode = "UNAUTHORIZED"            // 401
	ErrNotFound              ErrorCode = "NOT_FOUND"               // 404
	ErrConflictActiveEpisode ErrorCode = "CONFLICT_ACTIVE_EPISODE" // 409
	ErrInternal              ErrorCode = "INTERNAL"                // 500
)

// AuraError represents a structured error with code, status, and details.
type AuraError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *AuraError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidSeverity creates a 400 error for a severity outside 1-10.
func NewInvalidSeverity(value any) *AuraError {
	return &AuraError{
		Code:    ErrInvalidSeverity,
		Status:  400,
		Message: fmt.Sprintf("severity must be an integer between 1 and 10, got %v", value),
		Details: map[string]any{"severity": value},
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *AuraError {
	return &AuraError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewUnauthorized creates a 401 error for a missing or rejected credential.
func NewUnauthorized(msg string) *AuraError {
	return &AuraError{
		Code:    ErrUnauthorized,
		Status:  401,
		Message: msg,
	}
}

// NewNotFound creates a 404 error. Episodes owned by someone else are reported
// the same way as missing ones.
func NewNotFound(id string) *AuraError {
	return &AuraError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("episode not found: %s", id),
		Details: map[string]any{"id": id},
	}
}

// NewConflictActiveEpisode creates a 409 error when the owner already has an active episode.
func NewConflictActiveEpisode(ownerID string) *AuraError {
	return &AuraError{
		Code:    ErrConflictActiveEpisode,
		Status:  409,
		Message: "an active episode already exists; end it before starting another",
		Details: map[string]any{"owner_id": ownerID},
	}
}

// NewInternal creates a 500 error. The cause is kept in Details for logging
// and never shown in Message.
func NewInternal(err error) *AuraError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &AuraError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// Is checks if an error (or anything it wraps) is an AuraError with the given code.
func Is(err error, code ErrorCode) bool {
	var aErr *AuraError
	if stderrors.As(err, &aErr) {
		return aErr.Code == code
	}
	return false
}

// As returns the AuraError in err's chain, if any.
func As(err error) (*AuraError, bool) {
	var aErr *AuraError
	if stderrors.As(err, &aErr) {
		return aErr, true
	}
	return nil, false
}

// Wrap returns err unchanged if it already carries an AuraError, otherwise
// wraps it as INTERNAL.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	return NewInternal(err)
}
