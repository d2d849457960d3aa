// internal/workers/lifecycle/notify-status-change/handler.go
package notifystatuschange

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
	"loan-origination/internal/models"
	"loan-origination/internal/notify"
)

const (
	TaskType = "notify-status-change"
)

type Sender interface {
	Notify(ctx context.Context, req notify.Request) ([]models.Notification, error)
}

// ApplicationLookup fills in recipient details the process did not carry.
type ApplicationLookup interface {
	Get(ctx context.Context, id string) (*models.Application, error)
}

type Handler struct {
	config *Config
	sender Sender
	apps   ApplicationLookup
	obs    *observability.Observability
	errors *apperrors.ErrorHandler
	logger logger.Logger
}

func NewHandler(config *Config, sender Sender, apps ApplicationLookup, obs *observability.Observability, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		sender: sender,
		apps:   apps,
		obs:    obs,
		errors: apperrors.NewErrorHandler(log),
		logger: log,
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

	req := notify.Request{
		ApplicationID:  input.ApplicationID,
		Status:         status,
		RecipientEmail: input.RecipientEmail,
		RecipientPhone: input.RecipientPhone,
		BorrowerName:   input.BorrowerName,
	}
	if req.RecipientEmail == "" && req.RecipientPhone == "" {
		h.fillRecipient(ctx, &req)
	}

	deliveries, err := h.sender.Notify(ctx, req)
	if err != nil {
		return nil, err
	}

	out := &Output{
		NotificationStatus: summarize(deliveries),
		Deliveries:         deliveries,
		Summary:            notify.Describe(deliveries),
	}
	if out.Deliveries == nil {
		out.Deliveries = []models.Notification{}
	}

	h.logger.Info("status change notification processed", map[string]interface{}{
		"applicationId": input.ApplicationID,
		"status":        string(status),
		"summary":       out.Summary,
	})
	return out, nil
}

// fillRecipient is best effort: a missing application leaves the request
// without recipients and the notifier skips it.
func (h *Handler) fillRecipient(ctx context.Context, req *notify.Request) {
	if h.apps == nil {
		return
	}
	app, err := h.apps.Get(ctx, req.ApplicationID)
	if err != nil {
		h.logger.Warn("recipient lookup failed", map[string]interface{}{
			"applicationId": req.ApplicationID,
			"error":         err.Error(),
		})
		return
	}
	b := app.FormData.BorrowerInfo
	req.RecipientEmail = b.Email
	req.RecipientPhone = b.Phone
	if req.BorrowerName == "" {
		req.BorrowerName = b.FirstName
	}
}

func summarize(ds []models.Notification) string {
	if len(ds) == 0 {
		return StatusSkipped
	}
	for _, d := range ds {
		if d.Delivery == notify.DeliverySent {
			return StatusSent
		}
	}
	return StatusDisabled
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
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.AsStandard(err).Code)).Inc()
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
