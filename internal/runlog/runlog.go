// Package runlog writes the pipeline run log: an append-only text file with
// one "[YYYY-MM-DD HH:MM:SS] message" line per stage event.
package runlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	timestampLayout = "2006-01-02 15:04:05"
	// MaxMessageLen bounds cycle summary lines written by the scheduler.
	MaxMessageLen = 200
)

// Log is safe for concurrent use within one process.
type Log struct {
	path string
	echo io.Writer
	now  func() time.Time
	mu   sync.Mutex
}

// Option customizes a Log.
type Option func(*Log)

// WithEcho mirrors each appended line to w.
func WithEcho(w io.Writer) Option {
	return func(l *Log) { l.echo = w }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// New returns a run log writing to path.
func New(path string, opts ...Option) *Log {
	l := &Log{path: path, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the log file location.
func (l *Log) Path() string { return l.path }

// Append writes one timestamped line. Newlines inside message are flattened.
func (l *Log) Append(message string) error {
	if l == nil {
		return nil
	}
	message = strings.ReplaceAll(strings.TrimRight(message, "\n"), "\n", " ")
	line := fmt.Sprintf("[%s] %s\n", l.now().Format(timestampLayout), message)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create run log dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write run log: %w", err)
	}
	if l.echo != nil {
		_, _ = io.WriteString(l.echo, line)
	}
	return nil
}

// Appendf formats and appends a line.
func (l *Log) Appendf(format string, args ...any) error {
	return l.Append(fmt.Sprintf(format, args...))
}

// Tail returns the last n lines, or every line when n <= 0. A missing file
// yields no lines and no error.
func (l *Log) Tail(n int) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if n > 0 && len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read run log: %w", err)
	}
	return lines, nil
}

// Clear removes the log file. It reports false when there was nothing to clear.
func (l *Log) Clear() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	err := os.Remove(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("clear run log: %w", err)
	}
	return true, nil
}

// Truncate shortens s to at most max runes, marking the cut with "...".
func Truncate(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
