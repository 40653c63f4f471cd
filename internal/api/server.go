// Package api exposes the daemon management surface over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"voice-pipeline-go/internal/daemon"
	"voice-pipeline-go/internal/logger"
	"voice-pipeline-go/internal/runlog"
	"voice-pipeline-go/internal/store"
	"voice-pipeline-go/internal/types"
)

const (
	serviceName    = "Pipeline Cron Manager API"
	serviceVersion = "1.0.0"

	defaultIntervalSeconds = 120
	defaultTailLines       = 50
	defaultStopTimeout     = 10 * time.Second
)

// Daemon is the lifecycle handle the server drives.
type Daemon interface {
	Start(interval time.Duration) error
	Stop(ctx context.Context) (int, error)
	Status() daemon.Status
}

// RecordReader serves the record statistics endpoint.
type RecordReader interface {
	Stats(ctx context.Context) (store.Stats, error)
	ListCompleted(ctx context.Context, limit int) ([]types.Record, error)
}

type Deps struct {
	Daemon  Daemon
	Runs    *runlog.Log
	Records RecordReader // optional
	Log     *logger.Logger
	// StopTimeout bounds how long a stop request waits for the loop to exit.
	StopTimeout time.Duration
}

type server struct {
	deps Deps
	log  *logger.Logger
	now  func() time.Time
}

// NewHandler builds the management router.
func NewHandler(deps Deps) http.Handler {
	if deps.StopTimeout <= 0 {
		deps.StopTimeout = defaultStopTimeout
	}
	s := &server{deps: deps, log: deps.Log.Component("api"), now: time.Now}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	r.Route("/api/cron", func(r chi.Router) {
		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)
		r.Get("/status", s.handleStatus)
		r.Get("/logs", s.handleLogs)
		r.Delete("/logs", s.handleClearLogs)
		r.Get("/logs/tail", s.handleTail)
	})
	if deps.Records != nil {
		r.Get("/api/records/stats", s.handleRecordStats)
	}
	return r
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := logger.RequestID(r)
		r.Header.Set("X-Request-ID", reqID)
		w.Header().Set("X-Request-ID", reqID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		entry := s.log.WithRequest(r).WithFields(map[string]any{
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if ww.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Info("request served")
	})
}
