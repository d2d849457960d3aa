// internal/applications/service.go
package applications

import (
	"context"
	"errors"

	apperrors "loan-origination/internal/common/errors"
	"loan-origination/internal/common/logger"
	"loan-origination/internal/common/metrics"
	"loan-origination/internal/lifecycle"
	"loan-origination/internal/models"
)

// Indexer keeps the staff work-queue index in step with Postgres.
type Indexer interface {
	IndexApplication(ctx context.Context, app models.Application) error
}

// ProcessStarter starts the lifecycle workflow for a submitted application.
type ProcessStarter interface {
	StartLifecycle(ctx context.Context, app models.Application) (int64, error)
}

type Option func(*Service)

func WithIndexer(ix Indexer) Option {
	return func(s *Service) { s.indexer = ix }
}

func WithProcessStarter(ps ProcessStarter) Option {
	return func(s *Service) { s.starter = ps }
}

// Service is the system of record the wizard talks to. Every call answers
// with an envelope; on failure the envelope message and the returned error
// describe the same problem.
type Service struct {
	store   *Store
	indexer Indexer
	starter ProcessStarter
	log     logger.Logger
}

func NewService(store *Store, log logger.Logger, opts ...Option) *Service {
	s := &Service{store: store, log: logger.ForComponent(log, "applications")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func fail[T any](err error) (models.Envelope[T], error) {
	return models.Fail[T](apperrors.DisplayMessage(err)), err
}

// Create inserts a draft. Callers that may retry pass a stable draftKey, such
// as the wizard session id, so a retried create returns the same application.
func (s *Service) Create(ctx context.Context, draftKey string, form models.FormData) (models.Envelope[models.ApplicationRef], error) {
	id, err := s.store.Create(ctx, draftKey, form)
	if err != nil {
		s.log.Error("Failed to create application", map[string]interface{}{
			"draftKey": draftKey,
			"error":    err.Error(),
		})
		return fail[models.ApplicationRef](err)
	}
	s.log.Info("Application draft created", map[string]interface{}{
		"applicationId": id,
		"draftKey":      draftKey,
	})
	return models.OK(models.ApplicationRef{ID: id}), nil
}

func (s *Service) Update(ctx context.Context, id string, form models.FormData) (models.Envelope[models.ApplicationRef], error) {
	if err := s.store.Update(ctx, id, form); err != nil {
		s.log.Warn("Failed to update application", map[string]interface{}{
			"applicationId": id,
			"error":         err.Error(),
		})
		return fail[models.ApplicationRef](err)
	}
	return models.OK(models.ApplicationRef{ID: id}), nil
}

// SaveDraft creates the application when id is empty and updates it otherwise.
func (s *Service) SaveDraft(ctx context.Context, id string, form models.FormData) (models.Envelope[models.ApplicationRef], error) {
	if id == "" {
		return s.Create(ctx, "", form)
	}
	return s.Update(ctx, id, form)
}

// Submit commits the draft as submitted, then indexes it and starts the
// lifecycle process. Those two follow-ups are best effort: the submit has
// already committed, so their failures are logged and not returned.
func (s *Service) Submit(ctx context.Context, id string) (models.Envelope[models.SubmitResult], error) {
	t, err := s.store.Submit(ctx, id, SystemActor)
	if err != nil {
		s.log.Error("Failed to submit application", map[string]interface{}{
			"applicationId": id,
			"error":         err.Error(),
		})
		return fail[models.SubmitResult](err)
	}

	if t.ID != "" {
		metrics.StatusTransitions.WithLabelValues(string(lifecycle.Classify(t.NewStatus))).Inc()
		s.afterSubmit(ctx, id)
	}

	return models.OK(models.SubmitResult{Status: lifecycle.StatusSubmitted}), nil
}

func (s *Service) afterSubmit(ctx context.Context, id string) {
	if s.indexer == nil && s.starter == nil {
		return
	}
	app, err := s.store.Get(ctx, id)
	if err != nil {
		s.log.Warn("Submitted application could not be reloaded", map[string]interface{}{
			"applicationId": id,
			"error":         err.Error(),
		})
		return
	}

	s.reindex(ctx, *app)

	if s.starter != nil {
		key, err := s.starter.StartLifecycle(ctx, *app)
		if err != nil {
			s.log.Error("Failed to start lifecycle process", map[string]interface{}{
				"applicationId": id,
				"error":         err.Error(),
			})
			return
		}
		s.log.Info("Lifecycle process started", map[string]interface{}{
			"applicationId":      id,
			"processInstanceKey": key,
		})
	}
}

func (s *Service) reindex(ctx context.Context, app models.Application) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.IndexApplication(ctx, app); err != nil {
		s.log.Warn("Failed to index application", map[string]interface{}{
			"applicationId": app.ID,
			"error":         err.Error(),
		})
	}
}

func (s *Service) Get(ctx context.Context, id string) (*models.Application, error) {
	return s.store.Get(ctx, id)
}

// GetStatusHistory satisfies lifecycle.HistorySource.
func (s *Service) GetStatusHistory(ctx context.Context, applicationID string) ([]lifecycle.StatusTransition, error) {
	return s.store.GetStatusHistory(ctx, applicationID)
}

// Timeline returns the application's sorted, decorated history.
func (s *Service) Timeline(ctx context.Context, id string) (*models.Application, []lifecycle.HistoryEntry, error) {
	app, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	entries, err := lifecycle.LoadTimeline(ctx, s, id, app.Status)
	if err != nil {
		return nil, nil, err
	}
	s.verifyChain(id, entries)
	return app, entries, nil
}

// verifyChain logs a history that breaks the previous/new status chain. The
// timeline is still served as recorded.
func (s *Service) verifyChain(id string, entries []lifecycle.HistoryEntry) {
	sorted := make([]lifecycle.StatusTransition, len(entries))
	for i, e := range entries {
		sorted[i] = e.Transition
	}
	var chainErr *lifecycle.ChainError
	if err := lifecycle.VerifyChain(sorted); errors.As(err, &chainErr) {
		s.log.Warn("Status history chain is broken", map[string]interface{}{
			"applicationId": id,
			"index":         chainErr.Index,
			"field":         chainErr.Field,
			"expected":      string(chainErr.Expected),
			"got":           string(chainErr.Got),
		})
	}
}

// RecordTransition appends a pipeline event and refreshes the index.
func (s *Service) RecordTransition(ctx context.Context, id string, newStatus lifecycle.Status, changedBy string, comments *string) (lifecycle.StatusTransition, error) {
	t, err := s.store.RecordTransition(ctx, id, newStatus, changedBy, comments)
	if err != nil {
		return t, err
	}

	metrics.StatusTransitions.WithLabelValues(string(lifecycle.Classify(newStatus))).Inc()
	s.log.Info("Status transition recorded", map[string]interface{}{
		"applicationId":  id,
		"previousStatus": string(t.PreviousStatus),
		"newStatus":      string(t.NewStatus),
		"changedBy":      changedBy,
	})

	if s.indexer != nil {
		if app, err := s.store.Get(ctx, id); err == nil {
			s.reindex(ctx, *app)
		}
	}
	return t, nil
}

// ListByStatus backs the work queue when the search index is unavailable.
func (s *Service) ListByStatus(ctx context.Context, statuses []lifecycle.Status, limit int) ([]models.Application, error) {
	return s.store.ListByStatus(ctx, statuses, limit)
}
