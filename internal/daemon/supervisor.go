package daemon

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"voice-pipeline-go/internal/logger"
)

// Supervisor owns an in-process scheduler loop for long-running hosts such
// as the management server. When no local loop exists it falls back to the
// Controller, so a daemon started from the CLI can still be seen and
// stopped.
type Supervisor struct {
	sched *Scheduler
	ctrl  *Controller
	log   *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSupervisor(sched *Scheduler, ctrl *Controller, log *logger.Logger) *Supervisor {
	return &Supervisor{sched: sched, ctrl: ctrl, log: log.Component("supervisor")}
}

// Start acquires the marker synchronously and launches the loop.
func (s *Supervisor) Start(interval time.Duration) error {
	if err := checkInterval(interval); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.localLocked() {
		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, os.Getpid())
	}
	if err := s.sched.marker.Acquire(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	go func() {
		defer close(done)
		s.sched.serve(ctx, interval)
	}()
	s.log.WithField("interval", interval.String()).Info("background loop started")
	return nil
}

// Stop ends the local loop, waiting for the in-flight stage to finish, or
// signals a daemon running in another process. A ctx expiring first yields
// ErrStopFailed; the local loop keeps winding down and a later Stop waits
// for it again.
func (s *Supervisor) Stop(ctx context.Context) (int, error) {
	s.mu.Lock()
	if !s.localLocked() {
		s.mu.Unlock()
		return s.ctrl.Stop(ctx)
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
		s.log.Info("background loop stopped")
		return os.Getpid(), nil
	case <-ctx.Done():
		return os.Getpid(), fmt.Errorf("%w: %v", ErrStopFailed, ctx.Err())
	}
}

// Status reports the local loop when present, otherwise the marker.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	local := s.localLocked()
	s.mu.Unlock()
	if local {
		return Status{Running: true, PID: os.Getpid(), State: string(s.sched.State())}
	}
	return s.ctrl.Status()
}

// Shutdown stops a local loop only; it never signals other processes.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	local := s.localLocked()
	s.mu.Unlock()
	if !local {
		return nil
	}
	_, err := s.Stop(ctx)
	return err
}

// localLocked reports whether a local loop is still alive. Callers hold mu.
func (s *Supervisor) localLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		s.cancel()
		s.cancel, s.done = nil, nil
		return false
	default:
		return true
	}
}
