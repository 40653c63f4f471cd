package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"voice-pipeline-go/internal/logger"
	"voice-pipeline-go/internal/pipeline"
	"voice-pipeline-go/internal/runlog"
)

// State is the scheduler lifecycle position.
type State string

const (
	StateIdle        State = "idle"
	StateRunning     State = "running"
	StateSleeping    State = "sleeping"
	StateTerminating State = "terminating"
)

// Cycler runs one pipeline cycle.
type Cycler interface {
	RunCycle(ctx context.Context) (pipeline.Summary, error)
}

// Scheduler runs cycles on a fixed interval while holding the marker.
type Scheduler struct {
	marker *Marker
	cycler Cycler
	runs   *runlog.Log
	log    *logger.Logger
	state  atomic.Value
}

func NewScheduler(marker *Marker, cycler Cycler, runs *runlog.Log, log *logger.Logger) *Scheduler {
	s := &Scheduler{
		marker: marker,
		cycler: cycler,
		runs:   runs,
		log:    log.Component("scheduler"),
	}
	s.state.Store(StateIdle)
	return s
}

// State reports the current lifecycle position.
func (s *Scheduler) State() State {
	return s.state.Load().(State)
}

// Marker returns the instance marker guarding this scheduler.
func (s *Scheduler) Marker() *Marker { return s.marker }

// Start runs the loop in the foreground until SIGINT or SIGTERM.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(sigCtx, interval)
}

// Run acquires the marker, then alternates cycles and sleeps until ctx is
// done. The marker is released on return.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	if err := checkInterval(interval); err != nil {
		return err
	}
	if err := s.marker.Acquire(); err != nil {
		return err
	}
	s.serve(ctx, interval)
	return nil
}

// serve assumes the marker is held and releases it on return.
func (s *Scheduler) serve(ctx context.Context, interval time.Duration) {
	s.appendRun(fmt.Sprintf("Pipeline daemon started (PID: %d, Interval: %ds)", os.Getpid(), int(interval.Seconds())))
	s.log.WithFields(map[string]any{
		"pid":      os.Getpid(),
		"interval": interval.String(),
		"marker":   s.marker.Path(),
	}).Info("scheduler started")

	for ctx.Err() == nil {
		s.state.Store(StateRunning)
		s.cycle(ctx)
		if ctx.Err() != nil {
			break
		}
		s.state.Store(StateSleeping)
		if err := sleepContext(ctx, interval); err != nil {
			break
		}
	}

	s.state.Store(StateTerminating)
	s.appendRun("Daemon shutting down")
	if err := s.marker.Release(); err != nil {
		s.log.WithError(err).Warn("marker release failed")
	}
	s.log.Info("scheduler stopped")
	s.state.Store(StateIdle)
}

func (s *Scheduler) cycle(ctx context.Context) {
	s.appendRun("========== Pipeline execution started ==========")
	sum, err := s.cycler.RunCycle(ctx)
	msg := sum.Message()
	if err != nil {
		msg = "cycle failed: " + err.Error()
		s.log.WithError(err).Error("pipeline cycle failed")
	}
	s.appendRun("Pipeline completed: " + runlog.Truncate(msg, runlog.MaxMessageLen))
	s.appendRun("========== Pipeline execution completed ==========")
}

func (s *Scheduler) appendRun(msg string) {
	if err := s.runs.Append(msg); err != nil {
		s.log.WithError(err).Warn("run log write failed")
	}
}
