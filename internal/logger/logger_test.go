package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestJSONFormatCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "debug", Format: "json", Output: &buf}).Component("pipeline")

	log.WithRecord("CA123", "download").Info("downloaded")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["component"] != "pipeline" || entry["sid"] != "CA123" || entry["stage"] != "download" {
		t.Fatalf("missing fields: %v", entry)
	}
}

func TestAutoFormatFollowsEnvironment(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Environment: "production", Output: &buf}).Info("hello")
	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("expected json output for production, got %q", buf.String())
	}

	buf.Reset()
	New(Options{Environment: "local", Output: &buf}).Info("hello")
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("expected text output for local, got %q", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "warn", Format: "text", Output: &buf})
	log.Info("hidden")
	log.WithError(errors.New("boom")).Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info should be filtered: %q", out)
	}
	if !strings.Contains(out, "boom") {
		t.Fatalf("error field missing: %q", out)
	}
}

func TestRequestIDPrefersHeader(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/cron/status", nil)
	req.Header.Set("X-Request-ID", "abc")
	if got := RequestID(req); got != "abc" {
		t.Fatalf("RequestID = %q", got)
	}
	req.Header.Del("X-Request-ID")
	if got := RequestID(req); len(got) != 36 {
		t.Fatalf("expected generated uuid, got %q", got)
	}
}
