package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// Marker is the single-instance guard: an advisory lock on "<path>.lock"
// plus a PID file at path that other processes read for status and stop.
// Whoever holds the lock owns the marker; a PID file found while taking the
// lock is stale and gets overwritten.
type Marker struct {
	path string
	lock *flock.Flock
}

func NewMarker(path string) *Marker {
	return &Marker{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the PID file location.
func (m *Marker) Path() string { return m.path }

// Acquire takes the lock and writes the current PID. It fails with
// ErrAlreadyRunning when another holder exists.
func (m *Marker) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create marker dir: %w", err)
	}
	ok, err := m.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		if pid, readErr := m.Read(); readErr == nil {
			return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
		}
		return ErrAlreadyRunning
	}
	if err := writePIDFile(m.path); err != nil {
		_ = m.lock.Unlock()
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// Release removes the PID file when it still names this process and drops
// the lock.
func (m *Marker) Release() error {
	var errs []error
	if pid, err := m.Read(); err == nil && pid == os.Getpid() {
		if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove pid file: %w", err))
		}
	}
	if err := m.lock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("release lock: %w", err))
	}
	return errors.Join(errs...)
}

// Read returns the PID recorded in the marker. A missing marker yields an
// error matching os.ErrNotExist.
func (m *Marker) Read() (int, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %s: %q", m.path, strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// removeIf deletes the PID file while it still names pid. A file with
// unreadable contents is removed too.
func (m *Marker) removeIf(pid int) error {
	current, err := m.Read()
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err == nil && current != pid {
		return nil
	}
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale pid file: %w", err)
	}
	return nil
}

// writePIDFile replaces the marker atomically so readers never see a
// half-written PID.
func writePIDFile(path string) error {
	value := strconv.Itoa(os.Getpid()) + "\n"
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
