package applications

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "loan-origination/internal/common/errors"
	"loan-origination/internal/lifecycle"
	"loan-origination/internal/models"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewStore(db)
	s.now = func() time.Time { return fixedNow }
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return s, mock
}

func q(sql string) string { return regexp.QuoteMeta(sql) }

const lockQuery = `SELECT status FROM applications WHERE id = $1 FOR UPDATE`

func sampleForm() models.FormData {
	f := models.FormData{CoBorrower: models.NoCoBorrower{}}
	f.BorrowerInfo.FirstName = "Maya"
	f.BorrowerInfo.LastName = "Okafor"
	f.LoanDetails.TuitionAmount = 20000
	f.LoanDetails.DepositAmount = 2000
	f.Recompute()
	return f
}

func applicationRow(t *testing.T, id string, status lifecycle.Status, submitted interface{}) *sqlmock.Rows {
	t.Helper()
	payload, err := json.Marshal(sampleForm())
	require.NoError(t, err)
	return sqlmock.NewRows([]string{"id", "status", "form_data", "created_at", "updated_at", "submitted_at"}).
		AddRow(id, string(status), payload, fixedNow, fixedNow, submitted)
}

func TestStore_Create(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(q(`INSERT INTO applications (id, draft_key, status, form_data, created_at, updated_at)`)).
		WithArgs("id-1", "sess-1", "draft", sqlmock.AnyArg(), fixedNow, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("id-1"))

	id, err := s.Create(context.Background(), "sess-1", sampleForm())
	require.NoError(t, err)
	assert.Equal(t, "id-1", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateSameDraftKeyReturnsExistingID(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(q(`ON CONFLICT (draft_key) DO UPDATE`)).
		WithArgs("id-1", "sess-1", "draft", sqlmock.AnyArg(), fixedNow, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("app-earlier"))

	id, err := s.Create(context.Background(), "sess-1", sampleForm())
	require.NoError(t, err)
	assert.Equal(t, "app-earlier", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateSameDraftKeyAfterSubmit(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(q(`INSERT INTO applications`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.Create(context.Background(), "sess-1", sampleForm())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotEditable))
}

func TestStore_CreateFailure(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(q(`INSERT INTO applications`)).WillReturnError(errors.New("connection reset"))

	_, err := s.Create(context.Background(), "", sampleForm())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodePersistenceFailed))
}

func TestEditableStatuses(t *testing.T) {
	assert.Equal(t, []string{"draft", "incomplete", "revision_requested"}, editableStatuses())
}

func TestStore_Update(t *testing.T) {
	tests := []struct {
		name     string
		status   lifecycle.Status
		wantCode apperrors.ErrorCode
	}{
		{name: "draft", status: lifecycle.StatusDraft},
		{name: "revision requested", status: lifecycle.StatusRevisionRequested},
		{name: "incomplete", status: lifecycle.StatusIncomplete},
		{name: "in review is locked", status: lifecycle.StatusInReview, wantCode: apperrors.ErrCodeNotEditable},
		{name: "funded is locked", status: lifecycle.StatusFunded, wantCode: apperrors.ErrCodeNotEditable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newTestStore(t)

			mock.ExpectBegin()
			mock.ExpectQuery(q(lockQuery)).WithArgs("app-1").
				WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(string(tt.status)))
			if tt.wantCode == "" {
				mock.ExpectExec(q(`UPDATE applications SET form_data = $2, updated_at = $3 WHERE id = $1`)).
					WithArgs("app-1", sqlmock.AnyArg(), fixedNow).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			} else {
				mock.ExpectRollback()
			}

			err := s.Update(context.Background(), "app-1", sampleForm())
			if tt.wantCode == "" {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperrors.HasCode(err, tt.wantCode), "got %v", err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStore_UpdateMissing(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q(lockQuery)).WithArgs("nope").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := s.Update(context.Background(), "nope", sampleForm())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeApplicationNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Submit(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q(lockQuery)).WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("draft"))
	mock.ExpectExec(q(`UPDATE applications SET status = $2, submitted_at = $3, updated_at = $3 WHERE id = $1`)).
		WithArgs("app-1", "submitted", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q(`INSERT INTO application_status_history`)).
		WithArgs("id-1", "app-1", "draft", "submitted", fixedNow, SystemActor, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tr, err := s.Submit(context.Background(), "app-1", SystemActor)
	require.NoError(t, err)
	assert.Equal(t, "id-1", tr.ID)
	assert.Equal(t, lifecycle.StatusDraft, tr.PreviousStatus)
	assert.Equal(t, lifecycle.StatusSubmitted, tr.NewStatus)
	assert.Nil(t, tr.Comments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SubmitTwiceDoesNotDuplicateHistory(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q(lockQuery)).WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("submitted"))
	mock.ExpectCommit()

	tr, err := s.Submit(context.Background(), "app-1", SystemActor)
	require.NoError(t, err)
	assert.Empty(t, tr.ID)
	assert.Equal(t, lifecycle.StatusSubmitted, tr.NewStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SubmitHistoryFailureRollsBack(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q(lockQuery)).WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("draft"))
	mock.ExpectExec(q(`UPDATE applications SET status`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q(`INSERT INTO application_status_history`)).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := s.Submit(context.Background(), "app-1", SystemActor)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSubmitFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SubmitLockedStatus(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q(lockQuery)).WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("approved"))
	mock.ExpectRollback()

	_, err := s.Submit(context.Background(), "app-1", SystemActor)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotEditable))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RecordTransition(t *testing.T) {
	s, mock := newTestStore(t)
	note := "Credit pulled"

	mock.ExpectBegin()
	mock.ExpectQuery(q(lockQuery)).WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("in_review"))
	mock.ExpectExec(q(`UPDATE applications SET status = $2, updated_at = $3 WHERE id = $1`)).
		WithArgs("app-1", "approved", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q(`INSERT INTO application_status_history`)).
		WithArgs("id-1", "app-1", "in_review", "approved", fixedNow, "underwriter-7", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tr, err := s.RecordTransition(context.Background(), "app-1", lifecycle.StatusApproved, "underwriter-7", &note)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusInReview, tr.PreviousStatus)
	assert.Equal(t, lifecycle.StatusApproved, tr.NewStatus)
	require.NotNil(t, tr.Comments)
	assert.Equal(t, note, *tr.Comments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RecordTransitionRejectsUnknownStatus(t *testing.T) {
	s, mock := newTestStore(t)

	_, err := s.RecordTransition(context.Background(), "app-1", lifecycle.Status("on_hold"), "ops", nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidStatus))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Get(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(q(`FROM applications WHERE id = $1`)).WithArgs("app-1").
		WillReturnRows(applicationRow(t, "app-1", lifecycle.StatusSubmitted, fixedNow))

	app, err := s.Get(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusSubmitted, app.Status)
	assert.Equal(t, "Maya", app.FormData.BorrowerInfo.FirstName)
	assert.Equal(t, float64(18000), app.FormData.LoanDetails.RequestedAmount)
	assert.False(t, app.FormData.HasCoBorrower())
	require.NotNil(t, app.SubmittedAt)
	assert.True(t, fixedNow.Equal(*app.SubmittedAt))
}

func TestStore_GetMissing(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(q(`FROM applications WHERE id = $1`)).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), "ghost")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeApplicationNotFound))
}

func TestStore_ListByStatus(t *testing.T) {
	s, mock := newTestStore(t)

	rows := applicationRow(t, "app-1", lifecycle.StatusIncomplete, nil)
	mock.ExpectQuery(q(`WHERE status = ANY($1) ORDER BY updated_at ASC LIMIT $2`)).
		WithArgs(sqlmock.AnyArg(), 25).
		WillReturnRows(rows)

	apps, err := s.ListByStatus(context.Background(), []lifecycle.Status{lifecycle.StatusIncomplete, lifecycle.StatusRevisionRequested}, 25)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Nil(t, apps[0].SubmittedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetStatusHistory(t *testing.T) {
	s, mock := newTestStore(t)

	rows := sqlmock.NewRows([]string{"id", "application_id", "previous_status", "new_status", "changed_at", "changed_by", "comments"}).
		AddRow("h1", "app-1", "draft", "submitted", fixedNow, SystemActor, nil).
		AddRow("h2", "app-1", "submitted", "in_review", fixedNow.Add(time.Hour), "underwriting", "queued")
	mock.ExpectQuery(q(`FROM application_status_history`)).WithArgs("app-1").WillReturnRows(rows)

	hist, err := s.GetStatusHistory(context.Background(), "app-1")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Nil(t, hist[0].Comments)
	require.NotNil(t, hist[1].Comments)
	assert.Equal(t, "queued", *hist[1].Comments)
	assert.Equal(t, lifecycle.StatusInReview, hist[1].NewStatus)
}

func TestStore_GetStatusHistoryFailure(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(q(`FROM application_status_history`)).WillReturnError(errors.New("timeout"))

	_, err := s.GetStatusHistory(context.Background(), "app-1")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeHistoryFetchFailed))
}
