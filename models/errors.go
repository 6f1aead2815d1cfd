package models

import (
	"errors"
	"fmt"
)

// Error kinds used in run records, API responses and internal error handling.
const (
	ErrKindBrowserInit     = "BROWSER_INIT_FAILED"
	ErrKindNavigation      = "NAVIGATION_FAILED"
	ErrKindFormNotFound    = "FORM_NOT_FOUND"
	ErrKindUnknownQuestion = "UNKNOWN_SECURITY_QUESTION"
	ErrKindOTPTimeout      = "OTP_TIMEOUT"
	ErrKindLoginRejected   = "LOGIN_REJECTED"
	ErrKindSessionNotReady = "SESSION_NOT_READY"
	ErrKindListing         = "LISTING_UNAVAILABLE"
	ErrKindDelivery        = "DELIVERY_FAILED"
	ErrKindConfiguration   = "CONFIGURATION_INVALID"
	ErrKindCleanup         = "CLEANUP_FAILED"
	ErrKindInvalidInput    = "INVALID_INPUT"
	ErrKindUnauthorized    = "UNAUTHORIZED"
	ErrKindRateLimited     = "RATE_LIMITED"
	ErrKindNotFound        = "NOT_FOUND"
	ErrKindConflict        = "RUN_IN_PROGRESS"
	ErrKindInternal        = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses and run records.
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SyncError is the internal error type carrying an error kind.
// It implements the error interface and supports error wrapping via Unwrap.
type SyncError struct {
	Kind    string
	Message string
	Err     error // wrapped original error
}

func (e *SyncError) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// NewSyncError creates a new SyncError.
func NewSyncError(kind, message string, err error) *SyncError {
	return &SyncError{Kind: kind, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *SyncError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Kind: e.Kind, Message: e.Message}
}

// KindOf returns the kind of the outermost SyncError in err's chain,
// or ErrKindInternal when there is none.
func KindOf(err error) string {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ErrKindInternal
}

// IsKind reports whether err carries a SyncError of the given kind.
func IsKind(err error, kind string) bool {
	return err != nil && KindOf(err) == kind
}

// DetailOf converts any error into an ErrorDetail. The message of a
// SyncError is preserved; other errors are reported as internal.
func DetailOf(err error) *ErrorDetail {
	var se *SyncError
	if errors.As(err, &se) {
		return se.ToDetail()
	}
	return &ErrorDetail{Kind: ErrKindInternal, Message: err.Error()}
}
