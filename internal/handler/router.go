package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/efreitasn/marketlab/internal/service"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter creates a chi router with all routes registered, request logging,
// and Content-Type validation middleware. A nil pinger makes /readyz always
// succeed.
func NewRouter(
	participantSvc *service.ParticipantService,
	roundSvc *service.RoundService,
	marketSvc *service.MarketService,
	webhookSvc *service.WebhookService,
	pinger Pinger,
	logger *slog.Logger,
) chi.Router {
	r := chi.NewRouter()

	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	participantH := NewParticipantHandler(participantSvc, roundSvc, marketSvc)
	adminH := NewAdminHandler(participantSvc, roundSvc, marketSvc)
	webhookH := NewWebhookHandler(webhookSvc)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if pinger != nil {
			if err := pinger.Ping(r.Context()); err != nil {
				logger.Warn("readiness check failed", slog.String("error", err.Error()))
				WriteError(w, http.StatusServiceUnavailable, "store_unavailable", "Storage is not reachable")
				return
			}
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/classes/{class_id}", func(r chi.Router) {
		r.Post("/participants", participantH.Join)
		r.Get("/participants/{participant_id}", participantH.Get)
		r.Post("/participants/{participant_id}/submission", participantH.Submit)
		r.Get("/round", participantH.Round)
		r.Get("/curve", participantH.Curve)
	})

	r.Route("/admin/classes/{class_id}", func(r chi.Router) {
		r.Get("/participants", adminH.ListParticipants)
		r.Get("/round", adminH.Round)
		r.Get("/curve", adminH.Curve)
		r.Get("/book", adminH.Book)
		r.Post("/clear", adminH.Clear)
		r.Post("/confirm", adminH.Confirm)
		r.Post("/advance", adminH.Advance)
		r.Post("/reset", adminH.Reset)
		r.Get("/history", adminH.History)
		r.Get("/history.csv", adminH.HistoryCSV)

		r.Post("/webhooks", webhookH.Upsert)
		r.Get("/webhooks", webhookH.List)
		r.Get("/webhooks/{webhook_id}", webhookH.Get)
		r.Delete("/webhooks/{webhook_id}", webhookH.Delete)
	})

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// contentTypeJSON rejects POST, PUT and PATCH requests that carry a body
// without an application/json Content-Type. Bodiless lifecycle commands such
// as POST /admin/classes/{class_id}/clear pass through.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if r.ContentLength != 0 && !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
