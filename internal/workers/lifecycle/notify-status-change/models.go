// internal/workers/lifecycle/notify-status-change/models.go
package notifystatuschange

import "loan-origination/internal/models"

type Input struct {
	ApplicationID  string `json:"applicationId"`
	NewStatus      string `json:"newStatus"`
	RecipientEmail string `json:"recipientEmail,omitempty"`
	RecipientPhone string `json:"recipientPhone,omitempty"`
	BorrowerName   string `json:"borrowerName,omitempty"`
}

const (
	StatusSent     = "SENT"
	StatusDisabled = "DISABLED"
	StatusSkipped  = "SKIPPED"
)

type Output struct {
	NotificationStatus string                `json:"notificationStatus"`
	Deliveries         []models.Notification `json:"deliveries"`
	Summary            string                `json:"summary"`
}
