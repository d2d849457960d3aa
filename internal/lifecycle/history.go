// internal/lifecycle/history.go
package lifecycle

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// StatusTransition is one immutable entry of an application's status history.
type StatusTransition struct {
	ID             string    `json:"id"`
	ApplicationID  string    `json:"application_id"`
	PreviousStatus Status    `json:"previous_status"`
	NewStatus      Status    `json:"new_status"`
	ChangedAt      time.Time `json:"changed_at"`
	ChangedBy      string    `json:"changed_by"`
	Comments       *string   `json:"comments,omitempty"`
}

// HistoryEntry is a transition decorated for display.
type HistoryEntry struct {
	Transition     StatusTransition `json:"transition"`
	Classification Classification   `json:"classification"`
	Label          string           `json:"label"`
	BadgeColor     string           `json:"badge_color"`
	IsCurrent      bool             `json:"is_current"`
}

// HistorySource loads the recorded transitions of an application.
type HistorySource interface {
	GetStatusHistory(ctx context.Context, applicationID string) ([]StatusTransition, error)
}

// ChainError describes the first entry that breaks the previous/new status chain.
type ChainError struct {
	Index    int
	Field    string
	Expected Status
	Got      Status
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("status history broken at entry %d: %s %q, expected %q", e.Index, e.Field, e.Got, e.Expected)
}

// IsCurrent reports whether t moved the application into status.
func IsCurrent(t StatusTransition, status Status) bool {
	return t.NewStatus == status
}

// SortHistory returns a copy of entries ordered by ChangedAt ascending.
// Entries with equal timestamps keep their input order.
func SortHistory(entries []StatusTransition) []StatusTransition {
	out := slices.Clone(entries)
	slices.SortStableFunc(out, func(a, b StatusTransition) int {
		return a.ChangedAt.Compare(b.ChangedAt)
	})
	return out
}

// VerifyChain checks a sorted history against the append-only invariant: the
// first entry is draft -> submitted and every later entry starts where the
// previous one ended. It only reports; the system of record owns enforcement.
func VerifyChain(sorted []StatusTransition) error {
	for i, t := range sorted {
		expected := StatusDraft
		if i > 0 {
			expected = sorted[i-1].NewStatus
		}
		if t.PreviousStatus != expected {
			return &ChainError{Index: i, Field: "previous_status", Expected: expected, Got: t.PreviousStatus}
		}
		if i == 0 && t.NewStatus != StatusSubmitted {
			return &ChainError{Index: 0, Field: "new_status", Expected: StatusSubmitted, Got: t.NewStatus}
		}
	}
	return nil
}

// BuildTimeline sorts and decorates entries. Only the latest entry that moved the
// application into current is flagged as current.
func BuildTimeline(entries []StatusTransition, current Status) []HistoryEntry {
	sorted := SortHistory(entries)
	out := make([]HistoryEntry, len(sorted))
	latest := -1
	for i, t := range sorted {
		c := Classify(t.NewStatus)
		out[i] = HistoryEntry{
			Transition:     t,
			Classification: c,
			Label:          t.NewStatus.Label(),
			BadgeColor:     c.BadgeColor(),
		}
		if IsCurrent(t, current) {
			latest = i
		}
	}
	if latest >= 0 {
		out[latest].IsCurrent = true
	}
	return out
}

// LoadTimeline fetches history from src and builds the display timeline.
func LoadTimeline(ctx context.Context, src HistorySource, applicationID string, current Status) ([]HistoryEntry, error) {
	entries, err := src.GetStatusHistory(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("load status history for %s: %w", applicationID, err)
	}
	return BuildTimeline(entries, current), nil
}
