package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"voice-pipeline-go/internal/logger"
)

// Status describes the daemon as seen through its marker.
type Status struct {
	Running bool   `json:"is_running"`
	PID     int    `json:"pid,omitempty"`
	State   string `json:"state,omitempty"`
}

// Message renders the status for humans.
func (s Status) Message() string {
	if !s.Running {
		return "Daemon is not running"
	}
	if s.State != "" {
		return fmt.Sprintf("Daemon is running (PID: %d, %s)", s.PID, s.State)
	}
	return fmt.Sprintf("Daemon is running (PID: %d)", s.PID)
}

// Controller inspects and stops a daemon that may live in another process.
type Controller struct {
	marker   *Marker
	attempts int
	delay    time.Duration
	log      *logger.Logger
	signal   func(pid int) error
	alive    func(pid int) bool
}

func NewController(marker *Marker, attempts int, delay time.Duration, log *logger.Logger) *Controller {
	if attempts <= 0 {
		attempts = 1
	}
	return &Controller{
		marker:   marker,
		attempts: attempts,
		delay:    delay,
		log:      log.Component("daemon"),
		signal:   terminate,
		alive:    ProcessAlive,
	}
}

// Status reads the marker and probes the recorded process. Markers naming a
// dead process, or holding garbage, are removed.
func (c *Controller) Status() Status {
	pid, err := c.marker.Read()
	if errors.Is(err, os.ErrNotExist) {
		return Status{}
	}
	if err != nil {
		c.log.WithError(err).Warn("removing unreadable marker")
		c.cleanup(0)
		return Status{}
	}
	if c.alive(pid) {
		return Status{Running: true, PID: pid}
	}
	c.log.WithField("pid", pid).Info("removing stale marker")
	c.cleanup(pid)
	return Status{}
}

// Stop sends SIGTERM to the marked process and polls until it exits.
func (c *Controller) Stop(ctx context.Context) (int, error) {
	st := c.Status()
	if !st.Running {
		return 0, ErrNotRunning
	}
	if st.PID == os.Getpid() {
		return st.PID, fmt.Errorf("%w: marker names this process", ErrStopFailed)
	}
	if err := c.signal(st.PID); err != nil {
		return st.PID, fmt.Errorf("%w: signal pid %d: %v", ErrStopFailed, st.PID, err)
	}

	for i := 0; i < c.attempts; i++ {
		if !c.alive(st.PID) {
			c.cleanup(st.PID)
			c.log.WithField("pid", st.PID).Info("daemon stopped")
			return st.PID, nil
		}
		if err := sleepContext(ctx, c.delay); err != nil {
			return st.PID, fmt.Errorf("%w: %v", ErrStopFailed, err)
		}
	}
	if !c.alive(st.PID) {
		c.cleanup(st.PID)
		return st.PID, nil
	}
	return st.PID, fmt.Errorf("%w: pid %d still alive after %d checks", ErrStopFailed, st.PID, c.attempts)
}

func (c *Controller) cleanup(pid int) {
	if err := c.marker.removeIf(pid); err != nil {
		c.log.WithError(err).Warn("marker cleanup failed")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
