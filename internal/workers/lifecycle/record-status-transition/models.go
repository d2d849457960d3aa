// internal/workers/lifecycle/record-status-transition/models.go
package recordstatustransition

type Input struct {
	ApplicationID string  `json:"applicationId"`
	NewStatus     string  `json:"newStatus"`
	ChangedBy     string  `json:"changedBy"`
	Comments      *string `json:"comments,omitempty"`
}

type Output struct {
	TransitionID   string `json:"transitionId"`
	PreviousStatus string `json:"previousStatus"`
	NewStatus      string `json:"newStatus"`
	Classification string `json:"classification"`
	ChangedAt      string `json:"changedAt"` // ISO 8601
}
