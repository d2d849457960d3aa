// internal/notify/notifier.go
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/google/uuid"

	"loan-origination/internal/common/config"
	apperrors "loan-origination/internal/common/errors"
	"loan-origination/internal/common/logger"
	"loan-origination/internal/lifecycle"
	"loan-origination/internal/models"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"

	DeliverySent     = "sent"
	DeliveryFailed   = "failed"
	DeliveryDisabled = "disabled"
)

type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Request describes one status change to tell the borrower about.
type Request struct {
	ApplicationID  string
	Status         lifecycle.Status
	RecipientEmail string
	RecipientPhone string
	BorrowerName   string
}

var templates = map[lifecycle.Classification]models.NotificationTemplate{
	lifecycle.ClassInitial: {
		Subject: "We received your loan application",
		Body:    "Hi {{borrowerName}},\n\nYour application {{applicationId}} is now {{statusLabel}}. We will let you know as soon as it moves forward.\n\n{{portalUrl}}",
	},
	lifecycle.ClassActive: {
		Subject: "Your loan application is {{statusLabel}}",
		Body:    "Hi {{borrowerName}},\n\nYour application {{applicationId}} moved to {{statusLabel}}. No action is needed from you right now.\n\n{{portalUrl}}",
	},
	lifecycle.ClassAttention: {
		Subject: "Action needed on your loan application",
		Body:    "Hi {{borrowerName}},\n\nYour application {{applicationId}} needs your attention: {{statusLabel}}. Please sign in to review what is required.\n\n{{portalUrl}}",
		SMS:     "Your loan application needs attention ({{statusLabel}}). Sign in: {{portalUrl}}",
	},
	lifecycle.ClassSuccess: {
		Subject: "Good news about your loan application",
		Body:    "Hi {{borrowerName}},\n\nYour application {{applicationId}} is {{statusLabel}}.\n\n{{portalUrl}}",
		SMS:     "Good news: your loan application is {{statusLabel}}. Details: {{portalUrl}}",
	},
	lifecycle.ClassFailure: {
		Subject: "An update on your loan application",
		Body:    "Hi {{borrowerName}},\n\nYour application {{applicationId}} is {{statusLabel}}. Sign in for details about this decision.\n\n{{portalUrl}}",
		SMS:     "Your loan application status changed to {{statusLabel}}. Details: {{portalUrl}}",
	},
}

// Notifier sends status-change messages by SES email and SNS SMS.
type Notifier struct {
	cfg   config.NotificationConfig
	ses   SESService
	sns   SNSService
	log   logger.Logger
	now   func() time.Time
	newID func() string
}

func NewNotifier(cfg config.NotificationConfig, sesClient SESService, snsClient SNSService, log logger.Logger) *Notifier {
	return &Notifier{
		cfg:   cfg,
		ses:   sesClient,
		sns:   snsClient,
		log:   logger.ForComponent(log, "notify"),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// WantsSMS reports whether status s is worth a text message.
func WantsSMS(s lifecycle.Status) bool {
	return lifecycle.RequiresAttention(s) || lifecycle.IsTerminal(s)
}

// Notify renders the template for the status classification and sends it on
// every enabled channel the recipient has an address for. Drafts are never
// announced. The returned records cover every channel considered, including
// failed ones; the error is NOTIFICATION_SEND_FAILED when any send failed.
func (n *Notifier) Notify(ctx context.Context, req Request) ([]models.Notification, error) {
	if req.Status == lifecycle.StatusDraft {
		return nil, nil
	}
	tmpl := templates[lifecycle.Classify(req.Status)]

	data := map[string]string{
		"applicationId": req.ApplicationID,
		"borrowerName":  firstNonEmpty(req.BorrowerName, "there"),
		"statusLabel":   req.Status.Label(),
		"portalUrl":     n.portalLink(req.ApplicationID),
	}

	var (
		out     []models.Notification
		sendErr error
	)

	record := func(channel, recipient, delivery, messageID string) {
		out = append(out, models.Notification{
			ID:            n.newID(),
			ApplicationID: req.ApplicationID,
			Status:        req.Status,
			Channel:       channel,
			Delivery:      delivery,
			Recipient:     recipient,
			MessageID:     messageID,
			SentAt:        n.now().Format(time.RFC3339),
		})
	}

	switch {
	case req.RecipientEmail == "":
	case !n.cfg.Email.Enabled || n.ses == nil:
		record(ChannelEmail, req.RecipientEmail, DeliveryDisabled, "")
	default:
		id, err := n.sendEmail(ctx, req.RecipientEmail, render(tmpl.Subject, data), render(tmpl.Body, data))
		if err != nil {
			n.log.Error("Email send failed", map[string]interface{}{
				"applicationId": req.ApplicationID,
				"error":         err.Error(),
			})
			record(ChannelEmail, req.RecipientEmail, DeliveryFailed, "")
			sendErr = apperrors.NewNotificationSendFailedError(ChannelEmail, err)
		} else {
			record(ChannelEmail, req.RecipientEmail, DeliverySent, id)
		}
	}

	if req.RecipientPhone != "" && WantsSMS(req.Status) && tmpl.SMS != "" {
		if !n.cfg.SMS.Enabled || n.sns == nil {
			record(ChannelSMS, req.RecipientPhone, DeliveryDisabled, "")
		} else {
			id, err := n.sendSMS(ctx, req.RecipientPhone, render(tmpl.SMS, data))
			if err != nil {
				n.log.Error("SMS send failed", map[string]interface{}{
					"applicationId": req.ApplicationID,
					"error":         err.Error(),
				})
				record(ChannelSMS, req.RecipientPhone, DeliveryFailed, "")
				if sendErr == nil {
					sendErr = apperrors.NewNotificationSendFailedError(ChannelSMS, err)
				}
			} else {
				record(ChannelSMS, req.RecipientPhone, DeliverySent, id)
			}
		}
	}

	return out, sendErr
}

func (n *Notifier) portalLink(applicationID string) string {
	if n.cfg.PortalURL == "" {
		return ""
	}
	return strings.TrimRight(n.cfg.PortalURL, "/") + "/applications/" + applicationID
}

func (n *Notifier) sendEmail(ctx context.Context, to, subject, body string) (string, error) {
	out, err := n.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &sestypes.Destination{ToAddresses: []string{to}},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.cfg.Email.FromEmail),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
}

func (n *Notifier) sendSMS(ctx context.Context, to, message string) (string, error) {
	in := &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
		},
	}
	if n.cfg.SMS.SenderID != "" {
		in.MessageAttributes["AWS.SNS.SMS.SenderID"] = snstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(n.cfg.SMS.SenderID),
		}
	}
	out, err := n.sns.Publish(ctx, in)
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
}

// render substitutes {{key}} placeholders and drops unknown ones.
func render(tmpl string, data map[string]string) string {
	result := tmpl
	for k, v := range data {
		result = strings.ReplaceAll(result, "{{"+k+"}}", v)
	}
	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		result = result[:start] + result[start+end+2:]
	}
	return strings.TrimSpace(result)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Describe summarizes delivery results for logs and job output.
func Describe(ns []models.Notification) string {
	parts := make([]string, 0, len(ns))
	for _, n := range ns {
		parts = append(parts, fmt.Sprintf("%s:%s", n.Channel, n.Delivery))
	}
	return strings.Join(parts, ",")
}
