// internal/applications/store.go
package applications

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"loan-origination/internal/common/database"
	apperrors "loan-origination/internal/common/errors"
	"loan-origination/internal/common/metrics"
	"loan-origination/internal/lifecycle"
	"loan-origination/internal/models"
)

// SystemActor is recorded as changed_by for transitions the borrower triggers.
const SystemActor = "borrower-portal"

// editable statuses accept borrower form changes and resubmission.
var editable = map[lifecycle.Status]bool{
	lifecycle.StatusDraft:             true,
	lifecycle.StatusRevisionRequested: true,
	lifecycle.StatusIncomplete:        true,
}

// Store persists applications and their append-only status history in Postgres.
type Store struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:    db,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

func observe(op string, start time.Time) {
	metrics.PersistenceDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Create inserts a new draft and returns its id. A non-empty draftKey makes
// the insert idempotent: a second create with the same key updates the form
// of the application the first one made and returns its id, as long as that
// application is still editable. An empty key always inserts.
func (s *Store) Create(ctx context.Context, draftKey string, form models.FormData) (string, error) {
	defer observe("create", time.Now())

	payload, err := json.Marshal(form)
	if err != nil {
		return "", apperrors.NewPersistenceFailedError("create", err)
	}

	var key sql.NullString
	if draftKey != "" {
		key = sql.NullString{String: draftKey, Valid: true}
	}

	var id string
	err = s.db.QueryRowContext(ctx, createQuery,
		s.newID(), key, string(lifecycle.StatusDraft), payload, s.now(), pq.Array(editableStatuses()),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.NewNotEditableError("draft "+draftKey, "not editable")
	}
	if err != nil {
		return "", apperrors.NewPersistenceFailedError("create", err)
	}
	return id, nil
}

const createQuery = `
		INSERT INTO applications (id, draft_key, status, form_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (draft_key) DO UPDATE
			SET form_data = EXCLUDED.form_data, updated_at = EXCLUDED.updated_at
			WHERE applications.status = ANY($6)
		RETURNING id`

func editableStatuses() []string {
	out := make([]string, 0, len(editable))
	for st := range editable {
		out = append(out, string(st))
	}
	slices.Sort(out)
	return out
}

// Update replaces the form data of an editable application.
func (s *Store) Update(ctx context.Context, id string, form models.FormData) error {
	defer observe("update", time.Now())

	payload, err := json.Marshal(form)
	if err != nil {
		return apperrors.NewPersistenceFailedError("update", err)
	}

	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		status, err := lockStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		if !editable[status] {
			return apperrors.NewNotEditableError(id, string(status))
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE applications SET form_data = $2, updated_at = $3 WHERE id = $1`,
			id, payload, s.now(),
		); err != nil {
			return apperrors.NewPersistenceFailedError("update", err)
		}
		return nil
	})
}

// Submit moves an editable application to submitted and appends the history
// entry in the same transaction. Submitting an already submitted application
// is a no-op so a retried call does not duplicate history.
func (s *Store) Submit(ctx context.Context, id, changedBy string) (lifecycle.StatusTransition, error) {
	defer observe("submit", time.Now())

	var out lifecycle.StatusTransition
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		status, err := lockStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		if status == lifecycle.StatusSubmitted {
			out = lifecycle.StatusTransition{ApplicationID: id, PreviousStatus: status, NewStatus: status}
			return nil
		}
		if !editable[status] {
			return apperrors.NewNotEditableError(id, string(status))
		}

		now := s.now()
		if _, err := tx.ExecContext(ctx, `
			UPDATE applications SET status = $2, submitted_at = $3, updated_at = $3 WHERE id = $1`,
			id, string(lifecycle.StatusSubmitted), now,
		); err != nil {
			return apperrors.NewSubmitFailedError(id, err)
		}

		out, err = s.appendHistory(ctx, tx, id, status, lifecycle.StatusSubmitted, changedBy, nil, now)
		if err != nil {
			return apperrors.NewSubmitFailedError(id, err)
		}
		return nil
	})
	return out, err
}

// RecordTransition sets the application's status and appends a history entry
// whose previous_status is the status read under the row lock. Legality of
// the move is not checked here.
func (s *Store) RecordTransition(ctx context.Context, id string, newStatus lifecycle.Status, changedBy string, comments *string) (lifecycle.StatusTransition, error) {
	defer observe("record_transition", time.Now())

	if !newStatus.Valid() {
		return lifecycle.StatusTransition{}, apperrors.NewInvalidStatusError(string(newStatus))
	}

	var out lifecycle.StatusTransition
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		prev, err := lockStatus(ctx, tx, id)
		if err != nil {
			return err
		}

		now := s.now()
		if _, err := tx.ExecContext(ctx, `
			UPDATE applications SET status = $2, updated_at = $3 WHERE id = $1`,
			id, string(newStatus), now,
		); err != nil {
			return apperrors.NewTransitionFailedError(id, err)
		}

		out, err = s.appendHistory(ctx, tx, id, prev, newStatus, changedBy, comments, now)
		if err != nil {
			return apperrors.NewTransitionFailedError(id, err)
		}
		return nil
	})
	return out, err
}

func (s *Store) appendHistory(ctx context.Context, tx *sql.Tx, appID string, prev, next lifecycle.Status, changedBy string, comments *string, at time.Time) (lifecycle.StatusTransition, error) {
	t := lifecycle.StatusTransition{
		ID:             s.newID(),
		ApplicationID:  appID,
		PreviousStatus: prev,
		NewStatus:      next,
		ChangedAt:      at,
		ChangedBy:      changedBy,
		Comments:       comments,
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO application_status_history
			(id, application_id, previous_status, new_status, changed_at, changed_by, comments)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.ApplicationID, string(t.PreviousStatus), string(t.NewStatus), t.ChangedAt, t.ChangedBy, t.Comments,
	)
	return t, err
}

// lockStatus reads the current status with SELECT ... FOR UPDATE.
func lockStatus(ctx context.Context, tx *sql.Tx, id string) (lifecycle.Status, error) {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM applications WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.NewApplicationNotFoundError(id)
	}
	if err != nil {
		return "", apperrors.NewPersistenceFailedError("lock", err)
	}
	return lifecycle.Status(status), nil
}

const selectApplication = `
	SELECT id, status, form_data, created_at, updated_at, submitted_at
	FROM applications`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row rowScanner) (models.Application, error) {
	var (
		app       models.Application
		status    string
		payload   []byte
		submitted sql.NullTime
	)
	if err := row.Scan(&app.ID, &status, &payload, &app.CreatedAt, &app.UpdatedAt, &submitted); err != nil {
		return app, err
	}
	app.Status = lifecycle.Status(status)
	if err := json.Unmarshal(payload, &app.FormData); err != nil {
		return app, fmt.Errorf("decode form_data for %s: %w", app.ID, err)
	}
	if submitted.Valid {
		t := submitted.Time
		app.SubmittedAt = &t
	}
	return app, nil
}

// Get loads one application.
func (s *Store) Get(ctx context.Context, id string) (*models.Application, error) {
	defer observe("get", time.Now())

	app, err := scanApplication(s.db.QueryRowContext(ctx, selectApplication+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewApplicationNotFoundError(id)
	}
	if err != nil {
		return nil, apperrors.NewPersistenceFailedError("get", err)
	}
	return &app, nil
}

// ListByStatus returns the oldest-updated applications in any of statuses.
func (s *Store) ListByStatus(ctx context.Context, statuses []lifecycle.Status, limit int) ([]models.Application, error) {
	defer observe("list", time.Now())

	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	rows, err := s.db.QueryContext(ctx,
		selectApplication+` WHERE status = ANY($1) ORDER BY updated_at ASC LIMIT $2`,
		pq.Array(names), limit,
	)
	if err != nil {
		return nil, apperrors.NewPersistenceFailedError("list", err)
	}
	defer rows.Close()

	var out []models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, apperrors.NewPersistenceFailedError("list", err)
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceFailedError("list", err)
	}
	return out, nil
}

// GetStatusHistory returns entries in insertion order.
func (s *Store) GetStatusHistory(ctx context.Context, applicationID string) ([]lifecycle.StatusTransition, error) {
	defer observe("history", time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, application_id, previous_status, new_status, changed_at, changed_by, comments
		FROM application_status_history
		WHERE application_id = $1
		ORDER BY seq ASC`, applicationID)
	if err != nil {
		return nil, apperrors.NewHistoryFetchFailedError(applicationID, err)
	}
	defer rows.Close()

	var out []lifecycle.StatusTransition
	for rows.Next() {
		var (
			t         lifecycle.StatusTransition
			prev, nxt string
			comments  sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.ApplicationID, &prev, &nxt, &t.ChangedAt, &t.ChangedBy, &comments); err != nil {
			return nil, apperrors.NewHistoryFetchFailedError(applicationID, err)
		}
		t.PreviousStatus = lifecycle.Status(prev)
		t.NewStatus = lifecycle.Status(nxt)
		if comments.Valid {
			c := comments.String
			t.Comments = &c
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewHistoryFetchFailedError(applicationID, err)
	}
	return out, nil
}
