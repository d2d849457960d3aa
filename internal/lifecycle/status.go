// internal/lifecycle/status.go
package lifecycle

import (
	"fmt"
	"strings"
)

// Status is the canonical application status reported by the system of record.
type Status string

// Initial
const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
)

// Active processing
const (
	StatusInReview          Status = "in_review"
	StatusCommitmentSent    Status = "commitment_sent"
	StatusDocumentsSent     Status = "documents_sent"
	StatusPartiallyExecuted Status = "partially_executed"
	StatusQCReview          Status = "qc_review"
)

// Attention needed
const (
	StatusRevisionRequested Status = "revision_requested"
	StatusQCRejected        Status = "qc_rejected"
	StatusCounterOfferMade  Status = "counter_offer_made"
	StatusIncomplete        Status = "incomplete"
)

// Terminal success
const (
	StatusApproved           Status = "approved"
	StatusCommitmentAccepted Status = "commitment_accepted"
	StatusQCApproved         Status = "qc_approved"
	StatusReadyToFund        Status = "ready_to_fund"
	StatusFullyExecuted      Status = "fully_executed"
	StatusFunded             Status = "funded"
)

// Terminal failure
const (
	StatusDenied             Status = "denied"
	StatusAbandoned          Status = "abandoned"
	StatusDocumentsExpired   Status = "documents_expired"
	StatusCommitmentDeclined Status = "commitment_declined"
)

// Classification partitions statuses for display and affordance decisions.
// It says nothing about which transitions are legal.
type Classification string

const (
	ClassInitial   Classification = "initial"
	ClassActive    Classification = "active"
	ClassAttention Classification = "attention"
	ClassSuccess   Classification = "success"
	ClassFailure   Classification = "failure"
)

var classes = map[Status]Classification{
	StatusDraft:     ClassInitial,
	StatusSubmitted: ClassInitial,

	StatusInReview:          ClassActive,
	StatusCommitmentSent:    ClassActive,
	StatusDocumentsSent:     ClassActive,
	StatusPartiallyExecuted: ClassActive,
	StatusQCReview:          ClassActive,

	StatusRevisionRequested: ClassAttention,
	StatusQCRejected:        ClassAttention,
	StatusCounterOfferMade:  ClassAttention,
	StatusIncomplete:        ClassAttention,

	StatusApproved:           ClassSuccess,
	StatusCommitmentAccepted: ClassSuccess,
	StatusQCApproved:         ClassSuccess,
	StatusReadyToFund:        ClassSuccess,
	StatusFullyExecuted:      ClassSuccess,
	StatusFunded:             ClassSuccess,

	StatusDenied:             ClassFailure,
	StatusAbandoned:          ClassFailure,
	StatusDocumentsExpired:   ClassFailure,
	StatusCommitmentDeclined: ClassFailure,
}

// ordered mirrors the pipeline order used by catalog listings.
var ordered = []Status{
	StatusDraft, StatusSubmitted,
	StatusInReview, StatusCommitmentSent, StatusDocumentsSent, StatusPartiallyExecuted, StatusQCReview,
	StatusRevisionRequested, StatusQCRejected, StatusCounterOfferMade, StatusIncomplete,
	StatusApproved, StatusCommitmentAccepted, StatusQCApproved, StatusReadyToFund, StatusFullyExecuted, StatusFunded,
	StatusDenied, StatusAbandoned, StatusDocumentsExpired, StatusCommitmentDeclined,
}

var labels = map[Status]string{
	StatusQCReview:   "QC Review",
	StatusQCRejected: "QC Rejected",
	StatusQCApproved: "QC Approved",
}

// Classify returns the display class of a status. Unknown values fall back to ClassInitial.
func Classify(s Status) Classification {
	if c, ok := classes[s]; ok {
		return c
	}
	return ClassInitial
}

// AllStatuses returns every known status in pipeline order.
func AllStatuses() []Status {
	out := make([]Status, len(ordered))
	copy(out, ordered)
	return out
}

// ParseStatus converts a raw value into a known Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := classes[s]; !ok {
		return "", fmt.Errorf("unknown application status %q", raw)
	}
	return s, nil
}

// Valid reports whether s is a member of the enumeration.
func (s Status) Valid() bool {
	_, ok := classes[s]
	return ok
}

// Label returns the human readable name, e.g. "in_review" -> "In Review".
func (s Status) Label() string {
	if l, ok := labels[s]; ok {
		return l
	}
	words := strings.Split(string(s), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// IsTerminal reports whether no further lifecycle progress is expected.
func IsTerminal(s Status) bool {
	c := Classify(s)
	return c == ClassSuccess || c == ClassFailure
}

// RequiresAttention reports whether the borrower or staff must act.
func RequiresAttention(s Status) bool {
	return Classify(s) == ClassAttention
}

// BadgeColor maps a classification to the badge palette used by the views.
func (c Classification) BadgeColor() string {
	switch c {
	case ClassSuccess:
		return "green"
	case ClassFailure:
		return "red"
	case ClassAttention:
		return "orange"
	case ClassActive:
		return "blue"
	default:
		return "gray"
	}
}

// Valid reports whether c is one of the five classifications.
func (c Classification) Valid() bool {
	switch c {
	case ClassInitial, ClassActive, ClassAttention, ClassSuccess, ClassFailure:
		return true
	}
	return false
}

func ParseClassification(raw string) (Classification, error) {
	c := Classification(strings.ToLower(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown status classification %q", raw)
	}
	return c, nil
}

// StatusesIn lists the statuses of classification c in pipeline order.
func StatusesIn(c Classification) []Status {
	var out []Status
	for _, s := range ordered {
		if classes[s] == c {
			out = append(out, s)
		}
	}
	return out
}
