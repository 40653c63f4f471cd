package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"voice-pipeline-go/internal/actionable"
	"voice-pipeline-go/internal/aggregator"
	"voice-pipeline-go/internal/config"
	"voice-pipeline-go/internal/daemon"
)

const timestampLayout = "2006-01-02T15:04:05.000000"

type startRequest struct {
	IntervalSeconds *int `json:"interval_seconds"`
}

type actionResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type statusResponse struct {
	IsRunning bool   `json:"is_running"`
	PID       *int   `json:"pid"`
	State     string `json:"state,omitempty"`
	Message   string `json:"message"`
}

type logsResponse struct {
	Logs      string `json:"logs"`
	LineCount int    `json:"line_count"`
}

type errorResponse struct {
	Error     bool   `json:"error"`
	Detail    string `json:"detail"`
	Timestamp string `json:"timestamp"`
}

func (s *server) timestamp() string {
	return s.now().Format(timestampLayout)
}

func (s *server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        serviceName,
		"version":     serviceVersion,
		"description": "Manage the call processing pipeline daemon",
		"endpoints": map[string]string{
			"POST /api/cron/start":    "Start the pipeline daemon with the given interval",
			"POST /api/cron/stop":     "Stop the running pipeline daemon",
			"GET /api/cron/status":    "Get the status of the pipeline daemon",
			"GET /api/cron/logs":      "Get the pipeline run log",
			"DELETE /api/cron/logs":   "Clear the pipeline run log",
			"GET /api/cron/logs/tail": "Get the last lines of the run log as text",
			"GET /api/records/stats":  "Get record counts, analysis insights and suggested actions",
			"GET /health":             "Health check",
		},
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": s.timestamp(),
	})
}

func (s *server) handleStart(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	seconds := defaultIntervalSeconds
	if req.IntervalSeconds != nil {
		seconds = *req.IntervalSeconds
	}
	if seconds < config.MinIntervalSeconds {
		s.writeError(w, http.StatusBadRequest, "Interval must be at least 10 seconds")
		return
	}
	if seconds > config.MaxIntervalSeconds {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Interval must be at most %d seconds", config.MaxIntervalSeconds))
		return
	}
	interval := config.Seconds(seconds)

	err := s.deps.Daemon.Start(interval)
	switch {
	case errors.Is(err, daemon.ErrAlreadyRunning):
		s.writeAction(w, false, "Daemon is already running. Stop it first with /api/cron/stop")
		return
	case err != nil:
		s.log.WithError(err).Error("daemon start failed")
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error starting cron: %v", err))
		return
	}

	st := s.deps.Daemon.Status()
	s.writeAction(w, true, fmt.Sprintf("Daemon started successfully with interval: %d seconds (PID: %d)", seconds, st.PID))
}

func (s *server) handleStop(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.deps.StopTimeout)
	defer cancel()

	pid, err := s.deps.Daemon.Stop(ctx)
	switch {
	case errors.Is(err, daemon.ErrNotRunning):
		s.writeAction(w, false, "Daemon is not running")
	case errors.Is(err, daemon.ErrStopFailed):
		s.log.WithError(err).WithField("pid", pid).Error("daemon stop failed")
		s.writeError(w, http.StatusInternalServerError, "Failed to stop daemon")
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error stopping cron: %v", err))
	default:
		s.writeAction(w, true, "Daemon stopped successfully")
	}
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Daemon.Status()
	resp := statusResponse{IsRunning: st.Running, State: st.State, Message: st.Message()}
	if st.Running {
		pid := st.PID
		resp.PID = &pid
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleLogs(w http.ResponseWriter, r *http.Request) {
	n, ok := s.linesParam(w, r, 0)
	if !ok {
		return
	}
	lines, err := s.deps.Runs.Tail(n)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error reading logs: %v", err))
		return
	}
	if lines == nil {
		writeJSON(w, http.StatusOK, logsResponse{Logs: "No logs available yet", LineCount: 0})
		return
	}
	writeJSON(w, http.StatusOK, logsResponse{Logs: strings.Join(lines, "\n"), LineCount: len(lines)})
}

func (s *server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	cleared, err := s.deps.Runs.Clear()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error clearing logs: %v", err))
		return
	}
	if !cleared {
		s.writeAction(w, false, "No log file to clear")
		return
	}
	s.writeAction(w, true, "Logs cleared successfully")
}

func (s *server) handleTail(w http.ResponseWriter, r *http.Request) {
	n, ok := s.linesParam(w, r, defaultTailLines)
	if !ok {
		return
	}
	lines, err := s.deps.Runs.Tail(n)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error reading logs: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if lines == nil {
		io.WriteString(w, "No logs available yet")
		return
	}
	io.WriteString(w, strings.Join(lines, "\n"))
}

func (s *server) handleRecordStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Records.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error reading stats: %v", err))
		return
	}
	completed, err := s.deps.Records.ListCompleted(r.Context(), 0)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error reading records: %v", err))
		return
	}
	insights := aggregator.Aggregate(completed)
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":    stats,
		"insights": insights,
		"actions":  actionable.Generate(insights),
	})
}

// linesParam parses ?lines=N. Zero or negative values mean all lines.
func (s *server) linesParam(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("lines")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "lines must be an integer")
		return 0, false
	}
	return n, true
}

func (s *server) writeAction(w http.ResponseWriter, ok bool, msg string) {
	writeJSON(w, http.StatusOK, actionResponse{Success: ok, Message: msg, Timestamp: s.timestamp()})
}

func (s *server) writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, errorResponse{Error: true, Detail: detail, Timestamp: s.timestamp()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
