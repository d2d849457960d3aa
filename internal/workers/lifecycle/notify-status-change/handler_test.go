// internal/workers/lifecycle/notify-status-change/handler_test.go
package notifystatuschange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-origination/internal/common/config"
	apperrors "loan-origination/internal/common/errors"
	"loan-origination/internal/common/logger"
	"loan-origination/internal/common/validation"
	"loan-origination/internal/models"
	"loan-origination/internal/notify"
	"loan-origination/pkg/registry"
)

// ==========================
// Mock Implementations
// ==========================

type MockSESService struct {
	err  error
	sent []string
}

func (m *MockSESService) SendEmail(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.sent = append(m.sent, params.Destination.ToAddresses[0])
	return &ses.SendEmailOutput{MessageId: aws.String("ses-msg")}, nil
}

type MockSNSService struct {
	sent []string
}

func (m *MockSNSService) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.sent = append(m.sent, aws.ToString(params.PhoneNumber))
	return &sns.PublishOutput{MessageId: aws.String("sns-msg")}, nil
}

type fakeApps struct {
	app *models.Application
	err error
}

func (f *fakeApps) Get(context.Context, string) (*models.Application, error) {
	return f.app, f.err
}

// ==========================
// Test Helper Functions
// ==========================

func notifierConfig(email, sms bool) config.NotificationConfig {
	var cfg config.NotificationConfig
	cfg.Email.Enabled = email
	cfg.Email.FromEmail = "loans@example.edu"
	cfg.SMS.Enabled = sms
	return cfg
}

func createTestHandler(t *testing.T, sesMock *MockSESService, snsMock *MockSNSService, apps ApplicationLookup, email, sms bool) *Handler {
	t.Helper()
	log := logger.NewTestLogger(t)
	n := notify.NewNotifier(notifierConfig(email, sms), sesMock, snsMock, log)
	return NewHandler(&Config{Timeout: 5 * time.Second}, n, apps, nil, log)
}

// ==========================
// Tests
// ==========================

func TestHandler_Execute_SendsEmailAndSMS(t *testing.T) {
	sesMock, snsMock := &MockSESService{}, &MockSNSService{}
	h := createTestHandler(t, sesMock, snsMock, nil, true, true)

	out, err := h.Execute(context.Background(), &Input{
		ApplicationID:  "app-1",
		NewStatus:      "counter_offer_made",
		RecipientEmail: "maya@example.com",
		RecipientPhone: "+15551234567",
		BorrowerName:   "Maya",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSent, out.NotificationStatus)
	assert.Equal(t, "email:sent,sms:sent", out.Summary)
	assert.Len(t, out.Deliveries, 2)
	assert.Equal(t, []string{"maya@example.com"}, sesMock.sent)
	assert.Equal(t, []string{"+15551234567"}, snsMock.sent)
}

func TestHandler_Execute_LooksUpRecipient(t *testing.T) {
	app := &models.Application{ID: "app-1"}
	app.FormData.BorrowerInfo.FirstName = "Maya"
	app.FormData.BorrowerInfo.Email = "maya@example.com"

	sesMock := &MockSESService{}
	h := createTestHandler(t, sesMock, &MockSNSService{}, &fakeApps{app: app}, true, true)

	out, err := h.Execute(context.Background(), &Input{ApplicationID: "app-1", NewStatus: "in_review"})
	require.NoError(t, err)
	assert.Equal(t, StatusSent, out.NotificationStatus)
	assert.Equal(t, []string{"maya@example.com"}, sesMock.sent)
}

func TestHandler_Execute_SkippedWithoutRecipient(t *testing.T) {
	h := createTestHandler(t, &MockSESService{}, &MockSNSService{}, &fakeApps{err: apperrors.NewApplicationNotFoundError("app-1")}, true, true)

	out, err := h.Execute(context.Background(), &Input{ApplicationID: "app-1", NewStatus: "approved"})
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, out.NotificationStatus)
	assert.NotNil(t, out.Deliveries)
}

func TestHandler_Execute_ChannelsDisabled(t *testing.T) {
	sesMock := &MockSESService{}
	h := createTestHandler(t, sesMock, &MockSNSService{}, nil, false, false)

	out, err := h.Execute(context.Background(), &Input{ApplicationID: "app-1", NewStatus: "denied", RecipientEmail: "maya@example.com"})
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, out.NotificationStatus)
	assert.Empty(t, sesMock.sent)
}

func TestHandler_Execute_SendFailureIsRetryable(t *testing.T) {
	h := createTestHandler(t, &MockSESService{err: errors.New("throttling")}, &MockSNSService{}, nil, true, false)

	_, err := h.Execute(context.Background(), &Input{ApplicationID: "app-1", NewStatus: "submitted", RecipientEmail: "maya@example.com"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotificationSendFailed))
	assert.Equal(t, 3, apperrors.GetRetryCount(apperrors.ErrCodeNotificationSendFailed))
}

func TestHandler_Execute_InvalidInput(t *testing.T) {
	h := createTestHandler(t, &MockSESService{}, &MockSNSService{}, nil, true, true)

	_, err := h.Execute(context.Background(), &Input{NewStatus: "approved"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidationFailed))

	_, err = h.Execute(context.Background(), &Input{ApplicationID: "app-1", NewStatus: "paused"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidStatus))
}

func registeredSchema(t *testing.T) *validation.SchemaValidator {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	act, ok := reg.Find(TaskType)
	require.True(t, ok)
	raw, err := act.InputSchemaJSON()
	require.NoError(t, err)
	v, err := validation.NewSchemaValidator(raw)
	require.NoError(t, err)
	return v
}

func TestHandler_ValidateInput(t *testing.T) {
	h := NewHandler(&Config{Timeout: time.Second, InputSchema: registeredSchema(t)}, nil, nil, nil, logger.NewTestLogger(t))

	assert.NoError(t, h.validateInput([]byte(`{"applicationId":"app-1","newStatus":"approved","loanAmount":250000}`)))

	err := h.validateInput([]byte(`{"newStatus":"approved"}`))
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSchemaValidation))
	assert.Contains(t, apperrors.AsStandard(err).Details, "applicationId")

	err = h.validateInput([]byte(`{"applicationId":42,"newStatus":"approved"}`))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSchemaValidation))

	unchecked := NewHandler(&Config{Timeout: time.Second}, nil, nil, nil, logger.NewTestLogger(t))
	assert.NoError(t, unchecked.validateInput([]byte(`{}`)))
}
