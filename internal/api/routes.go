package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loan-origination/internal/common/logger"
	"loan-origination/internal/common/metrics"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/statuses", h.Statuses)
		r.Get("/queue", h.Queue)

		r.Post("/sessions", h.CreateSession)
		r.Route("/sessions/{sessionId}", func(r chi.Router) {
			r.Get("/", withSession(h.GetSession))
			r.Delete("/", withSession(h.DeleteSession))
			r.Patch("/fields", withSession(h.ChangeField))
			r.Post("/blur", withSession(h.BlurField))
			r.Post("/co-borrower", withSession(h.SetCoBorrower))
			r.Post("/terms", withSession(h.AcceptTerms))
			r.Post("/advance", withSession(h.Advance))
			r.Post("/retreat", withSession(h.Retreat))
			r.Post("/jump", withSession(h.JumpBack))
			r.Post("/draft", withSession(h.SaveDraft))
			r.Post("/submit", withSession(h.Submit))
		})

		r.Post("/applications/import", h.ImportApplication)
		r.Route("/applications/{applicationId}", func(r chi.Router) {
			r.Get("/", withApplication(h.GetApplication))
			r.Get("/history", withApplication(h.GetHistory))
			r.Get("/actions", withApplication(h.GetActions))
			r.Post("/transitions", withApplication(h.RecordTransition))
		})
	})

	return r
}

type idHandler func(w http.ResponseWriter, r *http.Request, id string)

func withSession(fn idHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, sessionParam(r))
	}
}

func withApplication(fn idHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, chi.URLParam(r, "applicationId"))
	}
}

// requestLogger logs each request through the service logger and records its
// duration against the matched route pattern.
func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())

			log.Debug("request served", map[string]interface{}{
				"method":    r.Method,
				"route":     route,
				"status":    status,
				"requestId": middleware.GetReqID(r.Context()),
				"duration":  elapsed.String(),
			})
		})
	}
}
