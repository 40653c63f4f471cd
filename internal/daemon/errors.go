package daemon

import (
	"errors"
	"time"
)

// Accepted pause between cycles.
const (
	MinInterval = 10 * time.Second
	MaxInterval = 7 * 24 * time.Hour
)

var (
	ErrAlreadyRunning   = errors.New("daemon already running")
	ErrNotRunning       = errors.New("daemon not running")
	ErrStopFailed       = errors.New("daemon did not stop")
	ErrIntervalTooShort = errors.New("interval must be at least 10 seconds")
	ErrIntervalTooLong  = errors.New("interval must be at most 7 days")
)

func checkInterval(interval time.Duration) error {
	if interval < MinInterval {
		return ErrIntervalTooShort
	}
	if interval > MaxInterval {
		return ErrIntervalTooLong
	}
	return nil
}
