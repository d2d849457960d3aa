// internal/wizard/session.go
package wizard

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"loan-origination/internal/lifecycle"
	"loan-origination/internal/models"
)

// Session is one borrower's form instance. It is owned by a single caller at a
// time; the submitting flag is the only field touched concurrently.
type Session struct {
	ID            string
	ApplicationID string
	ActiveStep    StepID
	Values        models.FormData
	Errors        FieldErrors
	Touched       map[FieldPath]bool
	TermsAccepted bool
	SubmitError   string
	Status        lifecycle.Status
	Completed     bool
	LastSavedAt   *time.Time

	submitting atomic.Bool
}

// NewSession starts an empty form.
func NewSession() *Session {
	s := &Session{
		ID:         uuid.NewString(),
		ActiveStep: StepBorrowerInfo,
		Errors:     FieldErrors{},
		Touched:    map[FieldPath]bool{},
		Status:     lifecycle.StatusDraft,
	}
	s.Values.CoBorrower = models.NoCoBorrower{}
	return s
}

// Hydrate starts a session from an existing application for editing.
func Hydrate(app models.Application) *Session {
	s := NewSession()
	s.ApplicationID = app.ID
	s.Values = app.FormData.Clone()
	s.Values.Recompute()
	if app.Status != "" {
		s.Status = app.Status
	}
	return s
}

// IsSubmitting reports whether a save or submit call is outstanding.
func (s *Session) IsSubmitting() bool { return s.submitting.Load() }

// IsValid reports whether the active step currently passes validation.
func (s *Session) IsValid() bool {
	return len(ValidateStep(s.ActiveStep, &s.Values)) == 0
}

// CanSubmit reports whether the submit control is enabled.
func (s *Session) CanSubmit() bool {
	return s.ActiveStep == StepReviewSubmit && s.TermsAccepted && !s.IsSubmitting() && !s.Completed
}

// clearPrefix drops errors and touched flags under prefix.
func (s *Session) clearPrefix(prefix string) {
	for p := range s.Errors {
		if strings.HasPrefix(string(p), prefix) {
			delete(s.Errors, p)
		}
	}
	for p := range s.Touched {
		if strings.HasPrefix(string(p), prefix) {
			delete(s.Touched, p)
		}
	}
}

// replaceStepErrors swaps the active step's errors for errs, leaving other steps alone.
func (s *Session) replaceStepErrors(step StepID, errs FieldErrors) {
	if step == StepReviewSubmit {
		for _, st := range applicableSteps(s.Values.HasCoBorrower()) {
			s.clearErrorsOf(st)
		}
	} else {
		s.clearErrorsOf(step)
	}
	for p, msg := range errs {
		s.Errors[p] = msg
	}
}

func (s *Session) clearErrorsOf(step StepID) {
	for p := range s.Errors {
		if step.Owns(p) {
			delete(s.Errors, p)
		}
	}
}

// View is the read-only state handed to the rendering layer.
type View struct {
	SessionID       string                   `json:"session_id"`
	ApplicationID   string                   `json:"application_id,omitempty"`
	ActiveStepIndex int                      `json:"active_step_index"`
	Steps           []string                 `json:"steps"`
	Values          models.FormData          `json:"values"`
	Errors          FieldErrors              `json:"errors"`
	Touched         map[FieldPath]bool       `json:"touched"`
	IsSubmitting    bool                     `json:"is_submitting"`
	IsValid         bool                     `json:"is_valid"`
	TermsAccepted   bool                     `json:"terms_accepted"`
	CanSubmit       bool                     `json:"can_submit"`
	SubmitError     string                   `json:"submit_error,omitempty"`
	Status          lifecycle.Status         `json:"status"`
	Classification  lifecycle.Classification `json:"classification"`
	Completed       bool                     `json:"completed"`
	LastSavedAt     *time.Time               `json:"last_saved_at,omitempty"`
}

// View snapshots the session for display. Maps are copied.
func (s *Session) View() View {
	errs := make(FieldErrors, len(s.Errors))
	for k, v := range s.Errors {
		errs[k] = v
	}
	touched := make(map[FieldPath]bool, len(s.Touched))
	for k, v := range s.Touched {
		touched[k] = v
	}
	return View{
		SessionID:       s.ID,
		ApplicationID:   s.ApplicationID,
		ActiveStepIndex: int(s.ActiveStep),
		Steps:           StepLabels(),
		Values:          s.Values.Clone(),
		Errors:          errs,
		Touched:         touched,
		IsSubmitting:    s.IsSubmitting(),
		IsValid:         s.IsValid(),
		TermsAccepted:   s.TermsAccepted,
		CanSubmit:       s.CanSubmit(),
		SubmitError:     s.SubmitError,
		Status:          s.Status,
		Classification:  lifecycle.Classify(s.Status),
		Completed:       s.Completed,
		LastSavedAt:     s.LastSavedAt,
	}
}

// Snapshot is the serializable form of a Session used by the session cache.
type Snapshot struct {
	ID            string             `json:"id"`
	ApplicationID string             `json:"application_id,omitempty"`
	ActiveStep    StepID             `json:"active_step"`
	Values        models.FormData    `json:"values"`
	Errors        FieldErrors        `json:"errors,omitempty"`
	Touched       map[FieldPath]bool `json:"touched,omitempty"`
	TermsAccepted bool               `json:"terms_accepted"`
	SubmitError   string             `json:"submit_error,omitempty"`
	Status        lifecycle.Status   `json:"status"`
	Completed     bool               `json:"completed"`
	LastSavedAt   *time.Time         `json:"last_saved_at,omitempty"`
}

// Snapshot captures everything but the in-flight flag.
func (s *Session) Snapshot() Snapshot {
	v := s.View()
	return Snapshot{
		ID:            s.ID,
		ApplicationID: s.ApplicationID,
		ActiveStep:    s.ActiveStep,
		Values:        v.Values,
		Errors:        v.Errors,
		Touched:       v.Touched,
		TermsAccepted: s.TermsAccepted,
		SubmitError:   s.SubmitError,
		Status:        s.Status,
		Completed:     s.Completed,
		LastSavedAt:   s.LastSavedAt,
	}
}

// Restore rebuilds a Session from a snapshot.
func Restore(snap Snapshot) *Session {
	s := &Session{
		ID:            snap.ID,
		ApplicationID: snap.ApplicationID,
		ActiveStep:    snap.ActiveStep,
		Values:        snap.Values.Clone(),
		Errors:        snap.Errors,
		Touched:       snap.Touched,
		TermsAccepted: snap.TermsAccepted,
		SubmitError:   snap.SubmitError,
		Status:        snap.Status,
		Completed:     snap.Completed,
		LastSavedAt:   snap.LastSavedAt,
	}
	if s.Errors == nil {
		s.Errors = FieldErrors{}
	}
	if s.Touched == nil {
		s.Touched = map[FieldPath]bool{}
	}
	if !s.ActiveStep.Valid() {
		s.ActiveStep = StepBorrowerInfo
	}
	if s.ActiveStep == StepCoBorrowerInfo && !s.Values.HasCoBorrower() {
		s.ActiveStep = StepLoanDetails
	}
	if s.Status == "" {
		s.Status = lifecycle.StatusDraft
	}
	return s
}
