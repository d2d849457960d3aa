// internal/models/notification.go
package models

import "loan-origination/internal/lifecycle"

// Notification records one status-change message sent to a borrower.
type Notification struct {
	ID            string           `json:"id"`
	ApplicationID string           `json:"applicationId"`
	Status        lifecycle.Status `json:"status"`
	Channel       string           `json:"channel"`  // "email", "sms"
	Delivery      string           `json:"delivery"` // "sent", "failed", "disabled"
	Recipient     string           `json:"recipient"`
	MessageID     string           `json:"messageId,omitempty"`
	SentAt        string           `json:"sentAt"`
}

// NotificationTemplate is the subject/body pair used for one status class.
type NotificationTemplate struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	SMS     string `json:"sms,omitempty"`
}
