package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "loan-origination/internal/common/errors"
	"loan-origination/internal/common/logger"
	"loan-origination/internal/lifecycle"
	"loan-origination/internal/models"
)

type passthrough struct {
	ops []string
}

func (p *passthrough) ExecuteWithRetry(ctx context.Context, fn func(context.Context) (interface{}, error), operation string) (interface{}, error) {
	p.ops = append(p.ops, operation)
	return fn(ctx)
}

func application() models.Application {
	f := models.FormData{}
	f.BorrowerInfo.FirstName = "Maya"
	f.BorrowerInfo.LastName = "Okafor"
	f.BorrowerInfo.Email = "maya@example.com"
	f.BorrowerInfo.Phone = "+15551234567"
	f.SetHasCoBorrower(true)
	f.LoanDetails.SchoolID = "sch-1"
	f.LoanDetails.ProgramID = "prog-9"
	f.LoanDetails.TuitionAmount = 30000
	f.LoanDetails.OtherFunding = 5000
	f.Recompute()
	return models.Application{ID: "app-1", Status: lifecycle.StatusSubmitted, FormData: f}
}

func TestVariablesFor(t *testing.T) {
	v := VariablesFor(application())
	assert.Equal(t, "app-1", v.ApplicationID)
	assert.Equal(t, "Maya Okafor", v.BorrowerName)
	assert.Equal(t, "+15551234567", v.RecipientPhone)
	assert.Equal(t, 25000.0, v.RequestedAmount)
	assert.True(t, v.HasCoBorrower)
	assert.Equal(t, lifecycle.StatusSubmitted, v.Status)
}

func TestStartLifecycle(t *testing.T) {
	exec := &passthrough{}
	var gotProcess string
	var gotVars ProcessVariables
	s := newStarter(exec, func(_ context.Context, processID string, vars ProcessVariables) (int64, error) {
		gotProcess, gotVars = processID, vars
		return 2251799813685249, nil
	}, "loan-application-lifecycle", logger.NewTestLogger(t))

	key, err := s.StartLifecycle(context.Background(), application())
	require.NoError(t, err)
	assert.Equal(t, int64(2251799813685249), key)
	assert.Equal(t, "loan-application-lifecycle", gotProcess)
	assert.Equal(t, "app-1", gotVars.ApplicationID)
	assert.Equal(t, []string{"CreateProcessInstance"}, exec.ops)
}

func TestStartLifecycleFailure(t *testing.T) {
	s := newStarter(&passthrough{}, func(context.Context, string, ProcessVariables) (int64, error) {
		return 0, errors.New("NOT_FOUND: no process with id")
	}, "loan-application-lifecycle", logger.NewTestLogger(t))

	_, err := s.StartLifecycle(context.Background(), application())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeProcessStartFailed))
}
