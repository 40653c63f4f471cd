package runlog

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

var linePattern = regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] .+$`)

func TestAppendFormatsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pipeline_execution.log")
	fixed := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	var echo bytes.Buffer
	log := New(path, WithClock(func() time.Time { return fixed }), WithEcho(&echo))

	if err := log.Append("cycle started"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := log.Appendf("processed %d records\nwith detail", 3); err != nil {
		t.Fatalf("Appendf: %v", err)
	}

	lines, err := log.Tail(0)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %v", len(lines), lines)
	}
	if lines[0] != "[2025-03-04 05:06:07] cycle started" {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	for _, line := range lines {
		if !linePattern.MatchString(line) {
			t.Fatalf("line %q does not match format", line)
		}
	}
	if !strings.Contains(echo.String(), "processed 3 records with detail") {
		t.Fatalf("echo missing line: %q", echo.String())
	}
}

func TestTailReturnsLastLines(t *testing.T) {
	log := New(filepath.Join(t.TempDir(), "run.log"))
	for i := 0; i < 10; i++ {
		if err := log.Append(fmt.Sprintf("line %d", i)); err != nil {
			t.Fatal(err)
		}
	}
	lines, err := log.Tail(3)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(lines) != 3 || !strings.HasSuffix(lines[0], "line 7") || !strings.HasSuffix(lines[2], "line 9") {
		t.Fatalf("unexpected tail: %v", lines)
	}
}

func TestMissingFileAndClear(t *testing.T) {
	log := New(filepath.Join(t.TempDir(), "run.log"))
	lines, err := log.Tail(5)
	if err != nil || len(lines) != 0 {
		t.Fatalf("expected empty tail for missing file, got %v %v", lines, err)
	}
	cleared, err := log.Clear()
	if err != nil || cleared {
		t.Fatalf("Clear on missing file = %v, %v", cleared, err)
	}
	if err := log.Append("x"); err != nil {
		t.Fatal(err)
	}
	cleared, err = log.Clear()
	if err != nil || !cleared {
		t.Fatalf("Clear = %v, %v", cleared, err)
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("a", 250)
	got := Truncate(long, MaxMessageLen)
	if len(got) != MaxMessageLen || !strings.HasSuffix(got, "...") {
		t.Fatalf("Truncate length = %d", len(got))
	}
	if Truncate("short", MaxMessageLen) != "short" {
		t.Fatal("short strings must be unchanged")
	}
}
