package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "loan-origination/internal/common/errors"
	"loan-origination/internal/common/logger"
	"loan-origination/internal/common/validation"
	"loan-origination/internal/lifecycle"
	"loan-origination/internal/models"
	"loan-origination/internal/search"
	"loan-origination/internal/wizard"
)

const (
	defaultRequestTimeout = 5 * time.Second
	maxBodyBytes          = 1 << 20
	staffActor            = "staff"
)

// SessionStore caches wizard sessions between requests.
type SessionStore interface {
	Save(ctx context.Context, sess *wizard.Session) error
	Load(ctx context.Context, id string) (*wizard.Session, error)
	Delete(ctx context.Context, id string) error
	Lock(ctx context.Context, id string) (func(), error)
}

// Applications is the system of record as seen by the API.
type Applications interface {
	Get(ctx context.Context, id string) (*models.Application, error)
	Timeline(ctx context.Context, id string) (*models.Application, []lifecycle.HistoryEntry, error)
	RecordTransition(ctx context.Context, id string, newStatus lifecycle.Status, changedBy string, comments *string) (lifecycle.StatusTransition, error)
	SaveDraft(ctx context.Context, id string, form models.FormData) (models.Envelope[models.ApplicationRef], error)
	ListByStatus(ctx context.Context, statuses []lifecycle.Status, limit int) ([]models.Application, error)
}

type QueueSearcher interface {
	Search(ctx context.Context, query search.Query) (*search.Result, error)
}

// Pinger is a dependency checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a plain function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Handler struct {
	wizard    *wizard.Controller
	sessions  SessionStore
	apps      Applications
	schema    *validation.SchemaValidator
	queue     QueueSearcher
	readiness map[string]Pinger
	timeout   time.Duration
	log       logger.Logger
}

type Option func(*Handler)

// WithQueue serves /v1/queue from the search index instead of the database.
func WithQueue(q QueueSearcher) Option {
	return func(h *Handler) { h.queue = q }
}

// WithReadiness adds a named dependency to the readiness probe.
func WithReadiness(name string, p Pinger) Option {
	return func(h *Handler) { h.readiness[name] = p }
}

func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func NewHandler(ctrl *wizard.Controller, sessions SessionStore, apps Applications, schema *validation.SchemaValidator, log logger.Logger, opts ...Option) *Handler {
	h := &Handler{
		wizard:    ctrl,
		sessions:  sessions,
		apps:      apps,
		schema:    schema,
		readiness: map[string]Pinger{},
		timeout:   defaultRequestTimeout,
		log:       logger.ForComponent(log, "api"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ==========================
// Request / response types
// ==========================

type createSessionRequest struct {
	ApplicationID string `json:"application_id"`
}

type fieldChangeRequest struct {
	Path  string `json:"path"`
	Value string `json:"value"`
}

type blurRequest struct {
	Path string `json:"path"`
}

type coBorrowerRequest struct {
	HasCoBorrower bool `json:"has_co_borrower"`
}

type termsRequest struct {
	Accepted bool `json:"accepted"`
}

type jumpRequest struct {
	Step int `json:"step"`
}

type stepResponse struct {
	Moved   bool        `json:"moved"`
	Session wizard.View `json:"session"`
}

type submitResponse struct {
	Status  lifecycle.Status `json:"status"`
	Session wizard.View      `json:"session"`
}

type transitionRequest struct {
	Status    string  `json:"status"`
	ChangedBy string  `json:"changed_by"`
	Comments  *string `json:"comments,omitempty"`
}

type historyResponse struct {
	ApplicationID  string                   `json:"application_id"`
	Status         lifecycle.Status         `json:"status"`
	Classification lifecycle.Classification `json:"classification"`
	History        []lifecycle.HistoryEntry `json:"history"`
}

type actionsResponse struct {
	ApplicationID string             `json:"application_id"`
	Status        lifecycle.Status   `json:"status"`
	Terminal      bool               `json:"terminal"`
	Actions       []lifecycle.Action `json:"actions"`
}

type statusInfo struct {
	Status         lifecycle.Status         `json:"status"`
	Label          string                   `json:"label"`
	Classification lifecycle.Classification `json:"classification"`
	BadgeColor     string                   `json:"badge_color"`
	Terminal       bool                     `json:"terminal"`
}

// ==========================
// Wizard sessions
// ==========================

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req createSessionRequest
	if err := decodeOptional(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON payload"})
		return
	}

	sess := wizard.NewSession()
	if id := strings.TrimSpace(req.ApplicationID); id != "" {
		app, err := h.apps.Get(ctx, id)
		if err != nil {
			h.writeError(w, err, nil)
			return
		}
		if res := h.schema.Validate(app.FormData); !res.Valid {
			h.writeError(w, apperrors.NewSchemaValidationError(strings.Join(res.Messages(), "; ")), nil)
			return
		}
		sess = wizard.Hydrate(*app)
	}

	if err := h.sessions.Save(ctx, sess); err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, sess.View())
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess, err := h.sessions.Load(ctx, sessionID)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	release, err := h.sessions.Lock(ctx, sessionID)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	defer release()

	if err := h.sessions.Delete(ctx, sessionID); err != nil {
		h.writeError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ChangeField(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req fieldChangeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.mutate(w, r, sessionID, func(_ context.Context, s *wizard.Session) (any, error) {
		if err := h.wizard.HandleChange(s, wizard.FieldPath(req.Path), req.Value); err != nil {
			return nil, err
		}
		return s.View(), nil
	})
}

func (h *Handler) BlurField(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req blurRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.mutate(w, r, sessionID, func(_ context.Context, s *wizard.Session) (any, error) {
		if err := h.wizard.HandleBlur(s, wizard.FieldPath(req.Path)); err != nil {
			return nil, err
		}
		return s.View(), nil
	})
}

func (h *Handler) SetCoBorrower(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req coBorrowerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.mutate(w, r, sessionID, func(_ context.Context, s *wizard.Session) (any, error) {
		if s.IsSubmitting() {
			return nil, apperrors.NewSubmissionInProgressError(s.ID)
		}
		h.wizard.SetHasCoBorrower(s, req.HasCoBorrower)
		return s.View(), nil
	})
}

func (h *Handler) AcceptTerms(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req termsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.mutate(w, r, sessionID, func(_ context.Context, s *wizard.Session) (any, error) {
		h.wizard.AcceptTerms(s, req.Accepted)
		return s.View(), nil
	})
}

func (h *Handler) Advance(w http.ResponseWriter, r *http.Request, sessionID string) {
	h.mutate(w, r, sessionID, func(_ context.Context, s *wizard.Session) (any, error) {
		moved := h.wizard.Advance(s)
		return stepResponse{Moved: moved, Session: s.View()}, nil
	})
}

func (h *Handler) Retreat(w http.ResponseWriter, r *http.Request, sessionID string) {
	h.mutate(w, r, sessionID, func(_ context.Context, s *wizard.Session) (any, error) {
		moved := h.wizard.Retreat(s)
		return stepResponse{Moved: moved, Session: s.View()}, nil
	})
}

func (h *Handler) JumpBack(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req jumpRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.mutate(w, r, sessionID, func(_ context.Context, s *wizard.Session) (any, error) {
		moved := h.wizard.JumpBack(s, wizard.StepID(req.Step))
		return stepResponse{Moved: moved, Session: s.View()}, nil
	})
}

func (h *Handler) SaveDraft(w http.ResponseWriter, r *http.Request, sessionID string) {
	h.mutate(w, r, sessionID, func(ctx context.Context, s *wizard.Session) (any, error) {
		if err := h.wizard.SaveDraft(ctx, s); err != nil {
			return nil, err
		}
		return s.View(), nil
	})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request, sessionID string) {
	h.mutate(w, r, sessionID, func(ctx context.Context, s *wizard.Session) (any, error) {
		status, err := h.wizard.SubmitFinal(ctx, s)
		if err != nil {
			return nil, err
		}
		return submitResponse{Status: status, Session: s.View()}, nil
	})
}

// mutate runs fn on the session under its lock and stores the result. The
// session is saved even when fn fails, so field errors and the submit error
// survive to the next read.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, sessionID string, fn func(context.Context, *wizard.Session) (any, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	release, err := h.sessions.Lock(ctx, sessionID)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	defer release()

	sess, err := h.sessions.Load(ctx, sessionID)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}

	payload, fnErr := fn(ctx, sess)
	if err := h.sessions.Save(ctx, sess); err != nil {
		h.writeError(w, err, nil)
		return
	}
	if fnErr != nil {
		view := sess.View()
		h.writeError(w, fnErr, map[string]any{"session": view})
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// ==========================
// Applications
// ==========================

func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request, applicationID string) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	app, err := h.apps.Get(ctx, applicationID)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request, applicationID string) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	app, entries, err := h.apps.Timeline(ctx, applicationID)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	if entries == nil {
		entries = []lifecycle.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, historyResponse{
		ApplicationID:  app.ID,
		Status:         app.Status,
		Classification: lifecycle.Classify(app.Status),
		History:        entries,
	})
}

func (h *Handler) GetActions(w http.ResponseWriter, r *http.Request, applicationID string) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	app, err := h.apps.Get(ctx, applicationID)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, actionsResponse{
		ApplicationID: app.ID,
		Status:        app.Status,
		Terminal:      lifecycle.IsTerminal(app.Status),
		Actions:       lifecycle.StaffActions(app.Status),
	})
}

func (h *Handler) RecordTransition(w http.ResponseWriter, r *http.Request, applicationID string) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req transitionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	status, err := lifecycle.ParseStatus(req.Status)
	if err != nil {
		h.writeError(w, apperrors.NewInvalidStatusError(req.Status), nil)
		return
	}
	changedBy := strings.TrimSpace(req.ChangedBy)
	if changedBy == "" {
		changedBy = staffActor
	}

	t, err := h.apps.RecordTransition(ctx, applicationID, status, changedBy, req.Comments)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// ImportApplication accepts raw form JSON, checks it against the form schema
// and stores it as a new draft.
func (h *Handler) ImportApplication(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil || len(raw) > maxBodyBytes {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "failed to read payload"})
		return
	}
	if res := h.schema.ValidateJSON(raw); !res.Valid {
		h.writeError(w, apperrors.NewSchemaValidationError(strings.Join(res.Messages(), "; ")), map[string]any{
			"violations": res.Errors,
		})
		return
	}

	var form models.FormData
	if err := json.Unmarshal(raw, &form); err != nil {
		h.writeError(w, apperrors.NewSchemaValidationError(err.Error()), nil)
		return
	}
	form.Recompute()

	env, err := h.apps.SaveDraft(ctx, "", form)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	if !env.Success || env.Data == nil {
		h.writeError(w, apperrors.NewPersistenceFailedError("import", errors.New(env.Message)), nil)
		return
	}
	writeJSON(w, http.StatusCreated, env)
}

// ==========================
// Work queue & reference data
// ==========================

func (h *Handler) Queue(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	params := r.URL.Query()
	query := search.Query{
		From: atoiOr(params.Get("from"), 0),
		Size: atoiOr(params.Get("size"), 0),
	}
	if raw := params.Get("classification"); raw != "" {
		c, err := lifecycle.ParseClassification(raw)
		if err != nil {
			h.writeError(w, apperrors.NewInvalidClassificationError(raw), nil)
			return
		}
		query.Classification = c
	}
	for _, raw := range params["status"] {
		s, err := lifecycle.ParseStatus(raw)
		if err != nil {
			h.writeError(w, apperrors.NewInvalidStatusError(raw), nil)
			return
		}
		query.Statuses = append(query.Statuses, s)
	}

	var (
		result *search.Result
		err    error
	)
	if h.queue != nil {
		result, err = h.queue.Search(ctx, query)
	} else {
		result, err = h.queueFromStore(ctx, query)
	}
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// queueFromStore answers a queue query from PostgreSQL when no index is configured.
func (h *Handler) queueFromStore(ctx context.Context, query search.Query) (*search.Result, error) {
	statuses := query.Statuses
	if len(statuses) == 0 {
		if query.Classification != "" {
			statuses = lifecycle.StatusesIn(query.Classification)
		} else {
			statuses = lifecycle.AllStatuses()
		}
	}
	_, size := search.PageBounds(query.From, query.Size)

	start := time.Now()
	apps, err := h.apps.ListByStatus(ctx, statuses, size)
	if err != nil {
		return nil, apperrors.NewSearchFailedError(err)
	}
	items := make([]search.QueueDocument, 0, len(apps))
	for _, app := range apps {
		items = append(items, search.DocumentFor(app))
	}
	return &search.Result{
		Items:     items,
		TotalHits: int64(len(items)),
		Took:      time.Since(start).Milliseconds(),
	}, nil
}

func (h *Handler) Statuses(w http.ResponseWriter, r *http.Request) {
	all := lifecycle.AllStatuses()
	out := make([]statusInfo, 0, len(all))
	for _, s := range all {
		c := lifecycle.Classify(s)
		out = append(out, statusInfo{
			Status:         s,
			Label:          s.Label(),
			Classification: c,
			BadgeColor:     c.BadgeColor(),
			Terminal:       lifecycle.IsTerminal(s),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"statuses": out, "steps": wizard.StepLabels()})
}

// ==========================
// Probes
// ==========================

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	ready := true
	for name, p := range h.readiness {
		if err := p.Ping(ctx); err != nil {
			checks[name] = "unavailable"
			ready = false
			continue
		}
		checks[name] = "ok"
	}
	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "checks": checks})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "checks": checks})
}

// ==========================
// Helpers
// ==========================

func (h *Handler) writeError(w http.ResponseWriter, err error, extra map[string]any) {
	stdErr := apperrors.AsStandard(err)
	status := apperrors.HTTPStatus(stdErr.Code)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", map[string]interface{}{
			"code":    string(stdErr.Code),
			"details": stdErr.Details,
		})
	}

	body := map[string]any{"error": stdErr.Message, "code": stdErr.Code}
	if fields, ok := stdErr.Metadata["fields"]; ok {
		body["fields"] = fields
	}
	if step, ok := stdErr.Metadata["firstInvalidStep"]; ok {
		body["first_invalid_step"] = step
	}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}

// decodeBody decodes a required JSON body, answering 400 itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON payload"})
		return false
	}
	return true
}

// decodeOptional accepts an empty body.
func decodeOptional(r *http.Request, dst any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func atoiOr(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func sessionParam(r *http.Request) string { return chi.URLParam(r, "sessionId") }

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
