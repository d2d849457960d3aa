// Package errors provides standardized error handling for the intake API and lifecycle workers.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Wizard / intake errors
const (
	ErrCodeValidationFailed     ErrorCode = "VALIDATION_FAILED"
	ErrCodeSubmissionNotAllowed ErrorCode = "SUBMISSION_NOT_ALLOWED"
	ErrCodeSubmissionInProgress ErrorCode = "SUBMISSION_IN_PROGRESS"
	ErrCodeUnknownField         ErrorCode = "UNKNOWN_FIELD"
	ErrCodeFieldUnavailable     ErrorCode = "FIELD_UNAVAILABLE"
	ErrCodeSchemaValidation     ErrorCode = "SCHEMA_VALIDATION_FAILED"
)

// Persistence / lifecycle errors
const (
	ErrCodePersistenceFailed   ErrorCode = "PERSISTENCE_FAILED"
	ErrCodeSubmitFailed        ErrorCode = "SUBMIT_FAILED"
	ErrCodeApplicationNotFound ErrorCode = "APPLICATION_NOT_FOUND"
	ErrCodeNotEditable         ErrorCode = "APPLICATION_NOT_EDITABLE"
	ErrCodeInvalidStatus       ErrorCode = "INVALID_STATUS"
	ErrCodeHistoryFetchFailed  ErrorCode = "HISTORY_FETCH_FAILED"
	ErrCodeTransitionFailed    ErrorCode = "TRANSITION_PERSIST_FAILED"
)

// Session cache errors
const (
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSessionLocked   ErrorCode = "SESSION_LOCKED"
)

// Integration errors
const (
	ErrCodeIndexFailed            ErrorCode = "INDEX_FAILED"
	ErrCodeSearchFailed           ErrorCode = "SEARCH_FAILED"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeProcessStartFailed     ErrorCode = "PROCESS_START_FAILED"
	ErrCodeExternalService        ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout                ErrorCode = "TIMEOUT"
	ErrCodeResourceNotFound       ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeInternal               ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches another *StandardError by code, so sentinel comparisons work with errors.Is.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	return ok && t.Code == e.Code
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewValidationFailedError reports field validation failures for a step.
func NewValidationFailedError(step string, fieldErrors map[string]string) *StandardError {
	e := newError(ErrCodeValidationFailed, "Please correct the highlighted fields", fmt.Sprintf("step: %s, fields: %d", step, len(fieldErrors)), false, nil)
	return e.WithMetadata("fields", fieldErrors)
}

// NewSubmissionNotAllowedError is returned when submit is attempted before review/terms.
func NewSubmissionNotAllowedError(reason string) *StandardError {
	return newError(ErrCodeSubmissionNotAllowed, "Submission is not available yet", reason, false, nil)
}

// NewSubmissionInProgressError rejects a duplicate concurrent save/submit.
func NewSubmissionInProgressError(sessionID string) *StandardError {
	return newError(ErrCodeSubmissionInProgress, "A save or submission is already in progress", fmt.Sprintf("sessionId: %s", sessionID), true, nil)
}

// NewUnknownFieldError rejects a field path that is not part of the form.
func NewUnknownFieldError(path string) *StandardError {
	return newError(ErrCodeUnknownField, "Unknown form field", fmt.Sprintf("path: %s", path), false, nil)
}

// NewFieldUnavailableError rejects writes to a section that is switched off.
func NewFieldUnavailableError(path string) *StandardError {
	return newError(ErrCodeFieldUnavailable, "Field is not available for this application", fmt.Sprintf("path: %s", path), false, nil)
}

// NewSchemaValidationError reports a payload that does not match its JSON schema.
func NewSchemaValidationError(details string) *StandardError {
	return newError(ErrCodeSchemaValidation, "Payload does not match its schema", details, false, nil)
}

// NewPersistenceFailedError wraps a create/update/draft failure.
func NewPersistenceFailedError(operation string, err error) *StandardError {
	return newError(ErrCodePersistenceFailed, "We could not save your application. Please try again.", fmt.Sprintf("operation: %s, error: %v", operation, err), true, err)
}

// NewSubmitFailedError wraps a failed submit call.
func NewSubmitFailedError(applicationID string, err error) *StandardError {
	return newError(ErrCodeSubmitFailed, "We could not submit your application. Please try again.", fmt.Sprintf("applicationId: %s, error: %v", applicationID, err), true, err)
}

// NewApplicationNotFoundError creates a non-retryable lookup error.
func NewApplicationNotFoundError(applicationID string) *StandardError {
	return newError(ErrCodeApplicationNotFound, "Application not found", fmt.Sprintf("applicationId: %s", applicationID), false, nil)
}

// NewNotEditableError rejects borrower changes once an application has left the editable statuses.
func NewNotEditableError(applicationID, status string) *StandardError {
	return newError(ErrCodeNotEditable, "This application can no longer be changed", fmt.Sprintf("applicationId: %s, status: %s", applicationID, status), false, nil)
}

// NewInvalidStatusError rejects a status outside the enumeration.
func NewInvalidStatusError(raw string) *StandardError {
	return newError(ErrCodeInvalidStatus, "Unknown application status", fmt.Sprintf("status: %s", raw), false, nil)
}

// NewInvalidClassificationError rejects a queue filter outside the five classifications.
func NewInvalidClassificationError(raw string) *StandardError {
	return newError(ErrCodeInvalidStatus, "Unknown status classification", fmt.Sprintf("classification: %s", raw), false, nil)
}

// NewHistoryFetchFailedError wraps a failed history load.
func NewHistoryFetchFailedError(applicationID string, err error) *StandardError {
	return newError(ErrCodeHistoryFetchFailed, "Status history is unavailable", fmt.Sprintf("applicationId: %s, error: %v", applicationID, err), true, err)
}

// NewTransitionFailedError wraps a failed history append.
func NewTransitionFailedError(applicationID string, err error) *StandardError {
	return newError(ErrCodeTransitionFailed, "Failed to record status transition", fmt.Sprintf("applicationId: %s, error: %v", applicationID, err), true, err)
}

// NewSessionNotFoundError reports an expired or unknown wizard session.
func NewSessionNotFoundError(sessionID string) *StandardError {
	return newError(ErrCodeSessionNotFound, "Form session not found or expired", fmt.Sprintf("sessionId: %s", sessionID), false, nil)
}

// NewSessionLockedError reports a session held by another request.
func NewSessionLockedError(sessionID string) *StandardError {
	return newError(ErrCodeSessionLocked, "Form session is busy", fmt.Sprintf("sessionId: %s", sessionID), true, nil)
}

// NewIndexFailedError wraps a search index write failure.
func NewIndexFailedError(applicationID string, err error) *StandardError {
	return newError(ErrCodeIndexFailed, "Failed to index application", fmt.Sprintf("applicationId: %s, error: %v", applicationID, err), true, err)
}

// NewSearchFailedError wraps a work-queue query failure.
func NewSearchFailedError(err error) *StandardError {
	return newError(ErrCodeSearchFailed, "Work queue search failed", err.Error(), true, err)
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Failed to send notification", fmt.Sprintf("channel: %s, error: %v", channel, err), true, err)
}

// NewProcessStartFailedError wraps a failed Camunda process start.
func NewProcessStartFailedError(applicationID string, err error) *StandardError {
	return newError(ErrCodeProcessStartFailed, "Failed to start lifecycle process", fmt.Sprintf("applicationId: %s, error: %v", applicationID, err), true, err)
}

// Generic constructors

func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalService, fmt.Sprintf("%s service error", service), err.Error(), true, err)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("%s timeout", service), err.Error(), true, err)
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return newError(ErrCodeResourceNotFound, fmt.Sprintf("%s resource not found", service), details, false, nil)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// retryCounts is the recommended retry budget per code; absent codes are not retried.
var retryCounts = map[ErrorCode]int{
	ErrCodePersistenceFailed:      3,
	ErrCodeSubmitFailed:           3,
	ErrCodeTransitionFailed:       3,
	ErrCodeHistoryFetchFailed:     3,
	ErrCodeIndexFailed:            3,
	ErrCodeSearchFailed:           2,
	ErrCodeNotificationSendFailed: 3,
	ErrCodeProcessStartFailed:     3,
	ErrCodeExternalService:        3,
	ErrCodeTimeout:                2,
}

// GetRetryCount returns the recommended retry count for code.
func GetRetryCount(code ErrorCode) int {
	return retryCounts[code]
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	return &BPMNError{
		Code:           string(stdErr.Code),
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        GetRetryCount(stdErr.Code),
		ErrorVariables: stdErr.Metadata,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeValidationFailed, ErrCodeSubmissionNotAllowed, ErrCodeUnknownField,
		ErrCodeFieldUnavailable, ErrCodeSchemaValidation, ErrCodeInvalidStatus:
		return "VALIDATION"
	case ErrCodeSubmissionInProgress, ErrCodeSessionLocked, ErrCodeSessionNotFound:
		return "SESSION"
	case ErrCodePersistenceFailed, ErrCodeSubmitFailed, ErrCodeTransitionFailed,
		ErrCodeHistoryFetchFailed, ErrCodeApplicationNotFound, ErrCodeNotEditable:
		return "PERSISTENCE"
	case ErrCodeIndexFailed, ErrCodeSearchFailed, ErrCodeNotificationSendFailed,
		ErrCodeProcessStartFailed, ErrCodeExternalService, ErrCodeTimeout, ErrCodeResourceNotFound:
		return "INTEGRATION"
	default:
		return "INTERNAL"
	}
}

// AsStandard extracts a *StandardError from err, wrapping unknown errors as INTERNAL_ERROR.
func AsStandard(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false, err)
}

// HasCode reports whether err carries code.
func HasCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	return stderrors.As(err, &stdErr) && stdErr.Code == code
}

// DisplayMessage converts any error into the single session-level message shown to the user.
func DisplayMessage(err error) string {
	if err == nil {
		return ""
	}
	return AsStandard(err).Message
}

// HTTPStatus maps an error code to the API response status.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidationFailed, ErrCodeUnknownField, ErrCodeFieldUnavailable,
		ErrCodeSchemaValidation, ErrCodeInvalidStatus:
		return http.StatusUnprocessableEntity
	case ErrCodeSubmissionNotAllowed:
		return http.StatusForbidden
	case ErrCodeSubmissionInProgress, ErrCodeSessionLocked, ErrCodeNotEditable:
		return http.StatusConflict
	case ErrCodeApplicationNotFound, ErrCodeSessionNotFound, ErrCodeResourceNotFound:
		return http.StatusNotFound
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodePersistenceFailed, ErrCodeSubmitFailed, ErrCodeHistoryFetchFailed,
		ErrCodeSearchFailed, ErrCodeExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
