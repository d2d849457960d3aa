// internal/workers/lifecycle/record-status-transition/handler.go
package recordstatustransition

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "loan-origination/internal/common/errors"
	"loan-origination/internal/common/logger"
	"loan-origination/internal/common/metrics"
	"loan-origination/internal/common/observability"
	"loan-origination/internal/lifecycle"
)

const (
	TaskType = "record-status-transition"

	defaultActor = "lifecycle-process"
)

// Recorder appends a status transition to the system of record.
type Recorder interface {
	RecordTransition(ctx context.Context, id string, newStatus lifecycle.Status, changedBy string, comments *string) (lifecycle.StatusTransition, error)
}

type Handler struct {
	config   *Config
	recorder Recorder
	obs      *observability.Observability
	errors   *apperrors.ErrorHandler
	logger   logger.Logger
}

func NewHandler(config *Config, recorder Recorder, obs *observability.Observability, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		recorder: recorder,
		obs:      obs,
		errors:   apperrors.NewErrorHandler(log),
		logger:   log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	if err := h.validateInput([]byte(job.Variables)); err != nil {
		return h.failJob(ctx, client, job, err, start)
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		return h.failJob(ctx, client, job, apperrors.NewSchemaValidationError("parse input: "+err.Error()), start)
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		return h.failJob(ctx, client, job, err, start)
	}

	h.completeJob(ctx, client, job, output, start)
	return nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if strings.TrimSpace(input.ApplicationID) == "" {
		return nil, apperrors.NewValidationFailedError(TaskType, map[string]string{"applicationId": "required"})
	}

	status, err := lifecycle.ParseStatus(input.NewStatus)
	if err != nil {
		return nil, apperrors.NewInvalidStatusError(input.NewStatus)
	}

	changedBy := input.ChangedBy
	if changedBy == "" {
		changedBy = defaultActor
	}

	t, err := h.recorder.RecordTransition(ctx, input.ApplicationID, status, changedBy, input.Comments)
	if err != nil {
		return nil, err
	}

	h.logger.Info("status transition recorded", map[string]interface{}{
		"applicationId":  input.ApplicationID,
		"previousStatus": string(t.PreviousStatus),
		"newStatus":      string(t.NewStatus),
	})

	return &Output{
		TransitionID:   t.ID,
		PreviousStatus: string(t.PreviousStatus),
		NewStatus:      string(t.NewStatus),
		Classification: string(lifecycle.Classify(t.NewStatus)),
		ChangedAt:      t.ChangedAt.UTC().Format(time.RFC3339),
	}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output, start time.Time) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	h.obs.RecordJobProcessed(ctx, TaskType, "completed")
	h.obs.RecordJobDuration(ctx, TaskType, time.Since(start))
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error, start time.Time) error {
	code := apperrors.AsStandard(err).Code
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(code)).Inc()
	h.obs.RecordJobProcessed(ctx, TaskType, "failed")
	h.obs.RecordJobDuration(ctx, TaskType, time.Since(start))

	h.errors.HandleJobError(ctx, client, job, err)
	return err
}

func (h *Handler) validateInput(raw []byte) error {
	if h.config.InputSchema == nil {
		return nil
	}
	result := h.config.InputSchema.ValidateJSON(raw)
	if result.Valid {
		return nil
	}
	return apperrors.NewSchemaValidationError(strings.Join(result.Messages(), "; "))
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
