package applications

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	apperrors "loan-origination/internal/common/errors"
	"loan-origination/internal/common/logger"
	"loan-origination/internal/lifecycle"
	"loan-origination/internal/models"
)

type fakeIndexer struct {
	indexed []models.Application
	err     error
}

func (f *fakeIndexer) IndexApplication(_ context.Context, app models.Application) error {
	f.indexed = append(f.indexed, app)
	return f.err
}

type fakeStarter struct {
	started []string
	err     error
}

func (f *fakeStarter) StartLifecycle(_ context.Context, app models.Application) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.started = append(f.started, app.ID)
	return 2251799813685249, nil
}

func expectSubmit(mock sqlmock.Sqlmock, from string) {
	mock.ExpectBegin()
	mock.ExpectQuery(q(lockQuery)).WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(from))
	mock.ExpectExec(q(`UPDATE applications SET status`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q(`INSERT INTO application_status_history`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func TestService_CreateEnvelope(t *testing.T) {
	store, mock := newTestStore(t)
	svc := NewService(store, logger.NewTestLogger(t))

	mock.ExpectQuery(q(`INSERT INTO applications`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("id-1"))

	env, err := svc.Create(context.Background(), "sess-1", sampleForm())
	require.NoError(t, err)
	assert.True(t, env.Success)
	require.NotNil(t, env.Data)
	assert.Equal(t, "id-1", env.Data.ID)
}

func TestService_FailureEnvelopeCarriesMessage(t *testing.T) {
	store, mock := newTestStore(t)
	svc := NewService(store, logger.NewTestLogger(t))

	mock.ExpectBegin()
	mock.ExpectQuery(q(lockQuery)).WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("in_review"))
	mock.ExpectRollback()

	env, err := svc.Update(context.Background(), "app-1", sampleForm())
	require.Error(t, err)
	assert.False(t, env.Success)
	assert.Nil(t, env.Data)
	assert.Equal(t, apperrors.DisplayMessage(err), env.Message)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotEditable))
}

func TestService_SaveDraftRoutesOnID(t *testing.T) {
	store, mock := newTestStore(t)
	svc := NewService(store, logger.NewTestLogger(t))

	mock.ExpectQuery(q(`INSERT INTO applications`)).WithArgs("id-1", nil, "draft", sqlmock.AnyArg(), fixedNow, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("id-1"))
	env, err := svc.SaveDraft(context.Background(), "", sampleForm())
	require.NoError(t, err)
	id := env.Data.ID

	mock.ExpectBegin()
	mock.ExpectQuery(q(lockQuery)).WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("draft"))
	mock.ExpectExec(q(`UPDATE applications SET form_data`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	env, err = svc.SaveDraft(context.Background(), id, sampleForm())
	require.NoError(t, err)
	assert.Equal(t, id, env.Data.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_SubmitIndexesAndStartsProcess(t *testing.T) {
	store, mock := newTestStore(t)
	ix := &fakeIndexer{}
	st := &fakeStarter{}
	svc := NewService(store, logger.NewTestLogger(t), WithIndexer(ix), WithProcessStarter(st))

	expectSubmit(mock, "draft")
	mock.ExpectQuery(q(`FROM applications WHERE id = $1`)).WithArgs("app-1").
		WillReturnRows(applicationRow(t, "app-1", lifecycle.StatusSubmitted, fixedNow))

	env, err := svc.Submit(context.Background(), "app-1")
	require.NoError(t, err)
	assert.True(t, env.Success)
	assert.Equal(t, lifecycle.StatusSubmitted, env.Data.Status)

	require.Len(t, ix.indexed, 1)
	assert.Equal(t, lifecycle.StatusSubmitted, ix.indexed[0].Status)
	assert.Equal(t, []string{"app-1"}, st.started)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_SubmitSurvivesFollowUpFailures(t *testing.T) {
	store, mock := newTestStore(t)
	ix := &fakeIndexer{err: errors.New("es down")}
	st := &fakeStarter{err: errors.New("broker unavailable")}
	svc := NewService(store, logger.NewTestLogger(t), WithIndexer(ix), WithProcessStarter(st))

	expectSubmit(mock, "revision_requested")
	mock.ExpectQuery(q(`FROM applications WHERE id = $1`)).WithArgs("app-1").
		WillReturnRows(applicationRow(t, "app-1", lifecycle.StatusSubmitted, fixedNow))

	env, err := svc.Submit(context.Background(), "app-1")
	require.NoError(t, err)
	assert.True(t, env.Success)
	assert.Len(t, ix.indexed, 1)
	assert.Empty(t, st.started)
}

func TestService_ResubmitSkipsFollowUps(t *testing.T) {
	store, mock := newTestStore(t)
	st := &fakeStarter{}
	svc := NewService(store, logger.NewTestLogger(t), WithProcessStarter(st))

	mock.ExpectBegin()
	mock.ExpectQuery(q(lockQuery)).WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("submitted"))
	mock.ExpectCommit()

	env, err := svc.Submit(context.Background(), "app-1")
	require.NoError(t, err)
	assert.True(t, env.Success)
	assert.Empty(t, st.started)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Timeline(t *testing.T) {
	store, mock := newTestStore(t)
	svc := NewService(store, logger.NewTestLogger(t))

	mock.ExpectQuery(q(`FROM applications WHERE id = $1`)).WithArgs("app-1").
		WillReturnRows(applicationRow(t, "app-1", lifecycle.StatusInReview, fixedNow))
	mock.ExpectQuery(q(`FROM application_status_history`)).WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "application_id", "previous_status", "new_status", "changed_at", "changed_by", "comments"}).
			AddRow("h2", "app-1", "submitted", "in_review", fixedNow.Add(1), "underwriting", nil).
			AddRow("h1", "app-1", "draft", "submitted", fixedNow, SystemActor, nil))

	app, entries, err := svc.Timeline(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusInReview, app.Status)
	require.Len(t, entries, 2)
	assert.Equal(t, "h1", entries[0].Transition.ID)
	assert.False(t, entries[0].IsCurrent)
	assert.True(t, entries[1].IsCurrent)
}

func TestService_TimelineWarnsOnBrokenChain(t *testing.T) {
	store, mock := newTestStore(t)
	core, logs := observer.New(zap.WarnLevel)
	svc := NewService(store, logger.NewZapAdapter(zap.New(core)))

	mock.ExpectQuery(q(`FROM applications WHERE id = $1`)).WithArgs("app-1").
		WillReturnRows(applicationRow(t, "app-1", lifecycle.StatusInReview, fixedNow))
	mock.ExpectQuery(q(`FROM application_status_history`)).WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "application_id", "previous_status", "new_status", "changed_at", "changed_by", "comments"}).
			AddRow("h1", "app-1", "draft", "in_review", fixedNow, SystemActor, nil))

	_, entries, err := svc.Timeline(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "the timeline is still served")

	warnings := logs.FilterMessage("Status history chain is broken").All()
	require.Len(t, warnings, 1)
	fields := warnings[0].ContextMap()
	assert.Equal(t, "app-1", fields["applicationId"])
	assert.Equal(t, "new_status", fields["field"])
	assert.Equal(t, "in_review", fields["got"])
}

func TestService_RecordTransitionReindexes(t *testing.T) {
	store, mock := newTestStore(t)
	ix := &fakeIndexer{}
	svc := NewService(store, logger.NewTestLogger(t), WithIndexer(ix))

	mock.ExpectBegin()
	mock.ExpectQuery(q(lockQuery)).WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("in_review"))
	mock.ExpectExec(q(`UPDATE applications SET status = $2, updated_at = $3`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q(`INSERT INTO application_status_history`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(q(`FROM applications WHERE id = $1`)).WithArgs("app-1").
		WillReturnRows(applicationRow(t, "app-1", lifecycle.StatusCounterOfferMade, fixedNow))

	tr, err := svc.RecordTransition(context.Background(), "app-1", lifecycle.StatusCounterOfferMade, "underwriting", nil)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusInReview, tr.PreviousStatus)
	require.Len(t, ix.indexed, 1)
	assert.Equal(t, lifecycle.StatusCounterOfferMade, ix.indexed[0].Status)
}
