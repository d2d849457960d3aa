// internal/wizard/controller.go
package wizard

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "loan-origination/internal/common/errors"
	"loan-origination/internal/common/logger"
	"loan-origination/internal/common/metrics"
	"loan-origination/internal/lifecycle"
	"loan-origination/internal/models"
)

// Persistence is the application system of record. A response with
// Success=false is treated the same as a returned error. Create is keyed by
// the session id: repeating it for the same key returns the same application.
type Persistence interface {
	Create(ctx context.Context, draftKey string, form models.FormData) (models.Envelope[models.ApplicationRef], error)
	Update(ctx context.Context, id string, form models.FormData) (models.Envelope[models.ApplicationRef], error)
	Submit(ctx context.Context, id string) (models.Envelope[models.SubmitResult], error)
}

// Controller drives sessions through the step sequence and talks to Persistence.
// It holds no per-session state.
type Controller struct {
	store  Persistence
	log    logger.Logger
	tracer trace.Tracer
	now    func() time.Time
}

func NewController(store Persistence, log logger.Logger) *Controller {
	return &Controller{
		store:  store,
		log:    logger.ForComponent(log, "wizard"),
		tracer: otel.Tracer("loan-origination/wizard"),
		now:    time.Now,
	}
}

// ==========================
// Step navigation
// ==========================

// Advance validates the active step and moves forward, skipping the
// co-borrower step when there is none. On failure the step's errors are
// shown and the index is unchanged.
func (c *Controller) Advance(s *Session) bool {
	if s.IsSubmitting() || s.ActiveStep >= StepReviewSubmit {
		return false
	}

	step := s.ActiveStep
	errs := ValidateStep(step, &s.Values)
	s.replaceStepErrors(step, errs)
	if len(errs) > 0 {
		for p := range errs {
			s.Touched[p] = true
		}
		metrics.WizardValidationFailures.WithLabelValues(step.Label()).Inc()
		c.log.Debug("Advance blocked by validation", map[string]interface{}{
			"sessionId": s.ID,
			"step":      step.Label(),
			"errors":    len(errs),
		})
		return false
	}

	s.ActiveStep = next(step, s.Values.HasCoBorrower())
	metrics.WizardStepMoves.WithLabelValues("forward", s.ActiveStep.Label()).Inc()
	return true
}

// Retreat moves back one step without validating.
func (c *Controller) Retreat(s *Session) bool {
	if s.IsSubmitting() || s.ActiveStep <= StepBorrowerInfo {
		return false
	}
	s.ActiveStep = prev(s.ActiveStep, s.Values.HasCoBorrower())
	metrics.WizardStepMoves.WithLabelValues("back", s.ActiveStep.Label()).Inc()
	return true
}

// JumpBack moves to an earlier step, as the review screen's "edit" links do.
// Forward jumps must go through Advance.
func (c *Controller) JumpBack(s *Session, to StepID) bool {
	if s.IsSubmitting() || !to.Valid() || to >= s.ActiveStep {
		return false
	}
	if to == StepCoBorrowerInfo && !s.Values.HasCoBorrower() {
		return false
	}
	s.ActiveStep = to
	metrics.WizardStepMoves.WithLabelValues("jump", to.Label()).Inc()
	return true
}

// ==========================
// Field mutation
// ==========================

// SetFieldValue writes one typed field and revalidates it if it has been touched.
func SetFieldValue[T any](s *Session, f Field[T], val T) error {
	if s.IsSubmitting() {
		return apperrors.NewSubmissionInProgressError(s.ID)
	}
	if err := f.Set(&s.Values, val); err != nil {
		return err
	}
	s.revalidate(f.Path)
	return nil
}

// HandleChange writes a raw input value addressed by path. Unparseable input
// is recorded as a field error, not returned.
func (c *Controller) HandleChange(s *Session, path FieldPath, raw string) error {
	if s.IsSubmitting() {
		return apperrors.NewSubmissionInProgressError(s.ID)
	}
	if path == PathHasCoBorrower {
		has, err := strconv.ParseBool(raw)
		if err != nil {
			return apperrors.NewUnknownFieldError(string(path) + "=" + raw)
		}
		c.SetHasCoBorrower(s, has)
		return nil
	}

	b, ok := registry[path]
	if !ok {
		return apperrors.NewUnknownFieldError(string(path))
	}
	parseErr, err := b.setRaw(&s.Values, raw)
	if err != nil {
		return err
	}
	if parseErr != "" {
		s.Errors[path] = parseErr
		s.Touched[path] = true
		return nil
	}
	s.revalidate(path)
	return nil
}

// HandleBlur marks a field touched and shows its current error, if any.
func (c *Controller) HandleBlur(s *Session, path FieldPath) error {
	if !KnownField(path) {
		return apperrors.NewUnknownFieldError(string(path))
	}
	s.Touched[path] = true
	s.revalidate(path)
	return nil
}

// SetHasCoBorrower flips the co-borrower section. Turning it off drops the
// section's data and every error and touched flag under it.
func (c *Controller) SetHasCoBorrower(s *Session, has bool) {
	s.Values.SetHasCoBorrower(has)
	if has {
		return
	}
	s.clearPrefix(stepPrefixes[StepCoBorrowerInfo])
	if s.ActiveStep == StepCoBorrowerInfo {
		s.ActiveStep = StepLoanDetails
	}
}

// AcceptTerms sets the explicit terms-acceptance flag required for submission.
func (c *Controller) AcceptTerms(s *Session, accepted bool) {
	s.TermsAccepted = accepted
}

// revalidate refreshes errors for the step owning path, keeping only touched fields.
func (s *Session) revalidate(path FieldPath) {
	step, ok := stepOf(path)
	if !ok {
		return
	}
	errs := ValidateStep(step, &s.Values)
	shown := FieldErrors{}
	for p, msg := range errs {
		if s.Touched[p] {
			shown[p] = msg
		}
	}
	s.replaceStepErrors(step, shown)
}

func stepOf(path FieldPath) (StepID, bool) {
	for step := range stepPrefixes {
		if step.Owns(path) {
			return step, true
		}
	}
	return 0, false
}

// ==========================
// Persistence
// ==========================

// SaveDraft persists the current values without requiring them to be valid.
// The first save creates the application; later saves update it.
func (c *Controller) SaveDraft(ctx context.Context, s *Session) error {
	if !s.submitting.CompareAndSwap(false, true) {
		return apperrors.NewSubmissionInProgressError(s.ID)
	}
	defer s.submitting.Store(false)

	ctx, span := c.tracer.Start(ctx, "wizard.SaveDraft", trace.WithAttributes(
		attribute.String("session.id", s.ID),
	))
	defer span.End()

	if err := c.persist(ctx, s); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save draft failed")
		s.SubmitError = apperrors.DisplayMessage(err)
		return err
	}
	s.SubmitError = ""

	c.log.Info("Draft saved", map[string]interface{}{
		"sessionId":     s.ID,
		"applicationId": s.ApplicationID,
		"step":          s.ActiveStep.Label(),
	})
	return nil
}

// SubmitFinal saves the application and asks the system of record to submit it.
// It requires the review step and accepted terms; otherwise nothing is sent.
// If the save succeeds and the submit fails, the application stays a draft with
// a known id and the caller retries.
func (c *Controller) SubmitFinal(ctx context.Context, s *Session) (lifecycle.Status, error) {
	if s.IsSubmitting() {
		return "", apperrors.NewSubmissionInProgressError(s.ID)
	}
	if !s.CanSubmit() {
		metrics.Submissions.WithLabelValues(metrics.OutcomeBlocked).Inc()
		return "", apperrors.NewSubmissionNotAllowedError(submitBlockReason(s))
	}

	if errs := ValidateAll(&s.Values); len(errs) > 0 {
		s.replaceStepErrors(StepReviewSubmit, errs)
		for p := range errs {
			s.Touched[p] = true
		}
		metrics.WizardValidationFailures.WithLabelValues(StepReviewSubmit.Label()).Inc()
		metrics.Submissions.WithLabelValues(metrics.OutcomeBlocked).Inc()
		// The review page links to the earliest step that needs fixing.
		first, _ := FirstInvalidStep(&s.Values)
		return "", apperrors.NewValidationFailedError(first.Label(), toStringMap(errs)).
			WithMetadata("firstInvalidStep", int(first))
	}

	if !s.submitting.CompareAndSwap(false, true) {
		return "", apperrors.NewSubmissionInProgressError(s.ID)
	}
	defer s.submitting.Store(false)

	ctx, span := c.tracer.Start(ctx, "wizard.SubmitFinal", trace.WithAttributes(
		attribute.String("session.id", s.ID),
	))
	defer span.End()

	if err := c.persist(ctx, s); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save before submit failed")
		s.SubmitError = apperrors.DisplayMessage(err)
		metrics.Submissions.WithLabelValues(metrics.OutcomeFailure).Inc()
		return "", err
	}

	env, err := c.store.Submit(ctx, s.ApplicationID)
	result, err := unwrap(env, err)
	if err != nil {
		stdErr := apperrors.NewSubmitFailedError(s.ApplicationID, err)
		span.RecordError(stdErr)
		span.SetStatus(codes.Error, "submit failed")
		s.SubmitError = stdErr.Message
		metrics.Submissions.WithLabelValues(metrics.OutcomeFailure).Inc()
		c.log.Warn("Submit failed, application left as draft", map[string]interface{}{
			"sessionId":     s.ID,
			"applicationId": s.ApplicationID,
			"error":         err.Error(),
		})
		return "", stdErr
	}

	s.Status = result.Status
	s.Completed = true
	s.SubmitError = ""
	span.SetAttributes(attribute.String("application.status", string(result.Status)))
	metrics.Submissions.WithLabelValues(metrics.OutcomeSuccess).Inc()

	c.log.Info("Application submitted", map[string]interface{}{
		"sessionId":     s.ID,
		"applicationId": s.ApplicationID,
		"status":        string(result.Status),
	})
	return result.Status, nil
}

// persist creates the application on first use and updates it afterwards.
// The id is remembered on the session only after a successful create. The
// create is keyed by the session id, so a session whose id was lost after a
// successful create gets the same application back.
func (c *Controller) persist(ctx context.Context, s *Session) error {
	values := s.Values.Clone()

	if s.ApplicationID == "" {
		env, err := c.store.Create(ctx, s.ID, values)
		ref, err := unwrap(env, err)
		if err != nil {
			metrics.DraftSaves.WithLabelValues("create", metrics.OutcomeFailure).Inc()
			return apperrors.NewPersistenceFailedError("create", err)
		}
		s.ApplicationID = ref.ID
		metrics.DraftSaves.WithLabelValues("create", metrics.OutcomeSuccess).Inc()
	} else {
		env, err := c.store.Update(ctx, s.ApplicationID, values)
		if _, err = unwrap(env, err); err != nil {
			metrics.DraftSaves.WithLabelValues("update", metrics.OutcomeFailure).Inc()
			return apperrors.NewPersistenceFailedError("update", err)
		}
		metrics.DraftSaves.WithLabelValues("update", metrics.OutcomeSuccess).Inc()
	}

	now := c.now().UTC()
	s.LastSavedAt = &now
	return nil
}

var (
	errEmptyResponse = errors.New("empty response")
	errRequestFailed = errors.New("request failed")
)

// unwrap folds the envelope and the transport error into one error.
func unwrap[T any](env models.Envelope[T], err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if !env.Success {
		if env.Message != "" {
			return zero, errors.New(env.Message)
		}
		return zero, errRequestFailed
	}
	if env.Data == nil {
		return zero, errEmptyResponse
	}
	return *env.Data, nil
}

func submitBlockReason(s *Session) string {
	switch {
	case s.Completed:
		return "application already submitted"
	case s.ActiveStep != StepReviewSubmit:
		return "review step not reached"
	default:
		return "terms not accepted"
	}
}

func toStringMap(errs FieldErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for p, msg := range errs {
		out[string(p)] = msg
	}
	return out
}
