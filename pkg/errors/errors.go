package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	Retryable bool   `json:"retryable,omitempty"`
	Err       error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same error code, so clones still match
// their predefined sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil || e == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Billing and workflow errors. Each failure path maps to exactly one code.
var (
	ErrInvalidAmount            = New("INVALID_AMOUNT", http.StatusBadRequest, "amount must be a positive value with at most two decimal places")
	ErrTermNotFound             = New("TERM_NOT_FOUND", http.StatusBadRequest, "payment term does not belong to the assessment")
	ErrNoOutstandingBalance     = New("NO_OUTSTANDING_BALANCE", http.StatusUnprocessableEntity, "no outstanding balance to allocate against")
	ErrInvalidWorkflow          = New("INVALID_WORKFLOW", http.StatusBadRequest, "invalid workflow definition")
	ErrRejectionCommentRequired = New("REJECTION_COMMENT_REQUIRED", http.StatusBadRequest, "comments are required when rejecting")
	ErrWorkflowNotInProgress    = New("WORKFLOW_NOT_IN_PROGRESS", http.StatusConflict, "workflow is not in progress")
	ErrApprovalPending          = New("APPROVAL_PENDING", http.StatusConflict, "current step has pending approvals")
	ErrApprovalAlreadyResolved  = New("APPROVAL_ALREADY_RESOLVED", http.StatusConflict, "approval already resolved")
	ErrNotAuthorizedApprover    = New("NOT_AUTHORIZED_APPROVER", http.StatusForbidden, "user is not the designated approver")
	ErrConcurrentModification   = &Error{
		Code:      "CONCURRENT_MODIFICATION",
		Status:    http.StatusConflict,
		Message:   "record was modified concurrently, reload and retry",
		Retryable: true,
	}
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// IsRetryable reports whether the caller may retry after re-reading state.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
