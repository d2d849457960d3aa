package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardError_IsAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewPersistenceFailedError("create", cause)

	wrapped := fmt.Errorf("save draft: %w", err)
	assert.True(t, stderrors.Is(wrapped, &StandardError{Code: ErrCodePersistenceFailed}))
	assert.False(t, stderrors.Is(wrapped, &StandardError{Code: ErrCodeSubmitFailed}))
	assert.True(t, stderrors.Is(wrapped, cause))
	assert.True(t, HasCode(wrapped, ErrCodePersistenceFailed))
}

func TestAsStandard(t *testing.T) {
	assert.Nil(t, AsStandard(nil))

	plain := AsStandard(fmt.Errorf("boom"))
	require.NotNil(t, plain)
	assert.Equal(t, ErrCodeInternal, plain.Code)
	assert.Equal(t, "boom", plain.Details)

	known := NewSessionLockedError("s-1")
	assert.Same(t, known, AsStandard(fmt.Errorf("wrap: %w", known)))
}

func TestDisplayMessage(t *testing.T) {
	assert.Equal(t, "", DisplayMessage(nil))
	assert.Equal(t, "We could not submit your application. Please try again.",
		DisplayMessage(NewSubmitFailedError("app-1", fmt.Errorf("502"))))
	assert.Equal(t, "Unexpected error", DisplayMessage(fmt.Errorf("raw")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationFailed, http.StatusUnprocessableEntity},
		{ErrCodeSubmissionNotAllowed, http.StatusForbidden},
		{ErrCodeSubmissionInProgress, http.StatusConflict},
		{ErrCodeSessionLocked, http.StatusConflict},
		{ErrCodeApplicationNotFound, http.StatusNotFound},
		{ErrCodeSessionNotFound, http.StatusNotFound},
		{ErrCodeSubmitFailed, http.StatusBadGateway},
		{ErrCodeTimeout, http.StatusGatewayTimeout},
		{ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.code))
		})
	}
}

func TestConvertToBPMNError(t *testing.T) {
	stdErr := NewTransitionFailedError("app-9", fmt.Errorf("deadlock")).
		WithMetadata("applicationId", "app-9")

	bpmn := ConvertToBPMNError(stdErr)
	assert.Equal(t, "TRANSITION_PERSIST_FAILED", bpmn.Code)
	assert.Equal(t, 3, bpmn.Retries)
	assert.True(t, bpmn.Retryable)

	vars := bpmn.ToErrorVariables()
	assert.Equal(t, "TRANSITION_PERSIST_FAILED", vars["errorCode"])
	assert.Equal(t, "app-9", vars["applicationId"])
}

func TestRetryAndCategory(t *testing.T) {
	assert.True(t, IsRetryableErrorCode(ErrCodeNotificationSendFailed))
	assert.False(t, IsRetryableErrorCode(ErrCodeValidationFailed))
	assert.False(t, IsRetryableErrorCode(ErrCodeApplicationNotFound))

	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeInvalidStatus))
	assert.Equal(t, "SESSION", GetErrorCategory(ErrCodeSubmissionInProgress))
	assert.Equal(t, "PERSISTENCE", GetErrorCategory(ErrCodeHistoryFetchFailed))
	assert.Equal(t, "INTEGRATION", GetErrorCategory(ErrCodeIndexFailed))
	assert.Equal(t, "INTERNAL", GetErrorCategory(ErrCodeInternal))
}

func TestValidationFailedCarriesFields(t *testing.T) {
	err := NewValidationFailedError("Borrower Information", map[string]string{
		"borrower_info.email": "Invalid email format",
	})
	fields, ok := err.Metadata["fields"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "Invalid email format", fields["borrower_info.email"])
}
