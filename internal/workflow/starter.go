// internal/workflow/starter.go
package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"loan-origination/internal/common/camunda"
	apperrors "loan-origination/internal/common/errors"
	"loan-origination/internal/common/logger"
	"loan-origination/internal/lifecycle"
	"loan-origination/internal/models"
)

// ProcessVariables seed a lifecycle process instance. The notify-status-change
// worker reads the recipient fields back from the instance.
type ProcessVariables struct {
	ApplicationID   string           `json:"applicationId"`
	Status          lifecycle.Status `json:"status"`
	RecipientEmail  string           `json:"recipientEmail"`
	RecipientPhone  string           `json:"recipientPhone,omitempty"`
	BorrowerName    string           `json:"borrowerName"`
	RequestedAmount float64          `json:"requestedAmount"`
	HasCoBorrower   bool             `json:"hasCoBorrower"`
	SchoolID        string           `json:"schoolId"`
	ProgramID       string           `json:"programId"`
}

func VariablesFor(app models.Application) ProcessVariables {
	b := app.FormData.BorrowerInfo
	return ProcessVariables{
		ApplicationID:   app.ID,
		Status:          app.Status,
		RecipientEmail:  b.Email,
		RecipientPhone:  b.Phone,
		BorrowerName:    strings.TrimSpace(b.FirstName + " " + b.LastName),
		RequestedAmount: app.FormData.LoanDetails.RequestedAmount,
		HasCoBorrower:   app.FormData.HasCoBorrower(),
		SchoolID:        app.FormData.LoanDetails.SchoolID,
		ProgramID:       app.FormData.LoanDetails.ProgramID,
	}
}

type executor interface {
	ExecuteWithRetry(ctx context.Context, fn func(context.Context) (interface{}, error), operation string) (interface{}, error)
}

type createFunc func(ctx context.Context, processID string, vars ProcessVariables) (int64, error)

// Starter creates lifecycle process instances on the Zeebe broker.
type Starter struct {
	exec      executor
	create    createFunc
	processID string
	log       logger.Logger
}

func NewStarter(client *camunda.Client, processID string, log logger.Logger) *Starter {
	return newStarter(client, zeebeCreate(client.GetClient()), processID, log)
}

func newStarter(exec executor, create createFunc, processID string, log logger.Logger) *Starter {
	return &Starter{
		exec:      exec,
		create:    create,
		processID: processID,
		log:       logger.ForComponent(log, "workflow"),
	}
}

func zeebeCreate(zc zbc.Client) createFunc {
	return func(ctx context.Context, processID string, vars ProcessVariables) (int64, error) {
		cmd, err := zc.NewCreateInstanceCommand().
			BPMNProcessId(processID).
			LatestVersion().
			VariablesFromObject(vars)
		if err != nil {
			return 0, fmt.Errorf("build create instance command: %w", err)
		}
		resp, err := cmd.Send(ctx)
		if err != nil {
			return 0, err
		}
		return resp.GetProcessInstanceKey(), nil
	}
}

// StartLifecycle starts the latest deployed version of the lifecycle process
// for app and returns the process instance key.
func (s *Starter) StartLifecycle(ctx context.Context, app models.Application) (int64, error) {
	vars := VariablesFor(app)

	result, err := s.exec.ExecuteWithRetry(ctx, func(ctx context.Context) (interface{}, error) {
		return s.create(ctx, s.processID, vars)
	}, "CreateProcessInstance")
	if err != nil {
		return 0, apperrors.NewProcessStartFailedError(app.ID, err)
	}

	key, ok := result.(int64)
	if !ok {
		return 0, apperrors.NewProcessStartFailedError(app.ID, fmt.Errorf("unexpected result type %T", result))
	}

	s.log.Debug("Process instance created", map[string]interface{}{
		"processId":          s.processID,
		"applicationId":      app.ID,
		"processInstanceKey": key,
	})
	return key, nil
}
