// cmd/tools/worker-generator/templates.go
package main

var templates = map[string]string{
	"config.go":       configTemplate,
	"models.go":       modelsTemplate,
	"handler.go":      handlerTemplate,
	"handler_test.go": testTemplate,
}

const configTemplate = `// internal/workers/{{ .Category }}/{{ .TaskType }}/config.go
package {{ .PackageName }}

import (
	"time"

	"loan-origination/internal/common/config"
	"loan-origination/internal/common/validation"
)

type Config struct {
	Timeout     time.Duration
	InputSchema *validation.SchemaValidator
}

func LoadConfig(wc config.WorkerConfig) *Config {
	timeout := config.GetDuration(wc.Timeout)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Config{Timeout: timeout}
}
`

const modelsTemplate = `// internal/workers/{{ .Category }}/{{ .TaskType }}/models.go
package {{ .PackageName }}

type Input struct {
{{- range .InputFields }}
	{{ .GoName }} {{ .GoType }} {{ tag .JSONName }}
{{- end }}
}

type Output struct {
{{- range .OutputFields }}
	{{ .GoName }} {{ .GoType }} {{ tag .JSONName }}
{{- end }}
}
`

const handlerTemplate = `// internal/workers/{{ .Category }}/{{ .TaskType }}/handler.go
package {{ .PackageName }}

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
)

const (
	TaskType = "{{ .TaskType }}"
)

{{ if .Description }}// Handler: {{ .Description }}
{{ end -}}
type Handler struct {
	config *Config
	obs    *observability.Observability
	errors *apperrors.ErrorHandler
	logger logger.Logger
}

func NewHandler(config *Config, obs *observability.Observability, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
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
	return &Output{}, nil
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

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
`

const testTemplate = `// internal/workers/{{ .Category }}/{{ .TaskType }}/handler_test.go
package {{ .PackageName }}

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"loan-origination/internal/common/logger"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestHandler(t *testing.T) *Handler {
	t.Helper()
	return NewHandler(&Config{Timeout: 5 * time.Second}, nil, logger.NewTestLogger(t))
}

// ==========================
// Tests
// ==========================

func TestHandler_Execute(t *testing.T) {
	h := createTestHandler(t)

	out, err := h.Execute(context.Background(), &Input{})
	require.NoError(t, err)
	require.NotNil(t, out)
}
`
