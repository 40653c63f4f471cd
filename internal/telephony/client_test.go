package telephony

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"voice-pipeline-go/internal/config"
	"voice-pipeline-go/internal/logger"
)

const callResponse = `<?xml version="1.0" encoding="UTF-8"?>
<TwilioResponse>
  <Call>
    <Sid>CA100</Sid>
    <Status>completed</Status>
    <RecordingUrl>%s</RecordingUrl>
    <From>09800000001</From>
    <To>08000000002</To>
    <Direction>inbound</Direction>
    <Duration>42</Duration>
    <StartTime>2025-01-02 10:00:00</StartTime>
    <EndTime>2025-01-02 10:00:42</EndTime>
  </Call>
</TwilioResponse>`

func newTestClient(t *testing.T, srv *httptest.Server, retrySeconds int) *Client {
	t.Helper()
	cfg := config.Telephony{
		APIKey:         "key",
		APIToken:       "token",
		TimeoutSeconds: 5,
		RetrySeconds:   retrySeconds,
	}
	return New(cfg, logger.Discard(), WithBaseURL(srv.URL+"/v1/Accounts/acme"), WithHTTPClient(srv.Client()))
}

func TestGetCallParsesMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/v1/Accounts/acme/Calls/CA100" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, callResponse, "https://recordings.example/CA100.mp3")
	}))
	defer srv.Close()

	meta, err := newTestClient(t, srv, 0).GetCall(context.Background(), "CA100")
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if meta.SID != "CA100" || meta.Status != "completed" || meta.Duration != 42 {
		t.Fatalf("unexpected meta: %+v", meta)
	}
	if meta.RecordingURL != "https://recordings.example/CA100.mp3" {
		t.Fatalf("recording url = %q", meta.RecordingURL)
	}
}

func TestGetCallNotFoundIsPermanent(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 5).GetCall(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("4xx should not be retried, got %d requests", hits.Load())
	}
}

func TestGetCallRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, callResponse, "")
	}))
	defer srv.Close()

	meta, err := newTestClient(t, srv, 10).GetCall(context.Background(), "CA100")
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if meta.RecordingURL != "" {
		t.Fatalf("expected empty recording url, got %q", meta.RecordingURL)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 requests, got %d", hits.Load())
	}
}

func TestListCallsReadsNestedMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("Page") != "2" || r.URL.Query().Get("PageSize") != "2" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		fmt.Fprint(w, `<TwilioResponse>
  <Metadata><Total>7</Total><PageSize>2</PageSize></Metadata>
  <Calls>
    <Call><Sid>CA1</Sid><Status>completed</Status></Call>
    <Call><Sid>CA2</Sid><Status>in-progress</Status></Call>
  </Calls>
</TwilioResponse>`)
	}))
	defer srv.Close()

	page, err := newTestClient(t, srv, 0).ListCalls(context.Background(), 2, 2)
	if err != nil {
		t.Fatalf("ListCalls: %v", err)
	}
	if page.Total != 7 || page.PageSize != 2 || len(page.Calls) != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Calls[1].SID != "CA2" || page.Calls[1].Status != "in-progress" {
		t.Fatalf("unexpected second call: %+v", page.Calls[1])
	}
}

func TestDownloadWritesFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != downloadUserAgent {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("ID3-audio-bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "rec", "CA1.mp3")
	if err := newTestClient(t, srv, 0).Download(context.Background(), srv.URL+"/rec.mp3", dest); err != nil {
		t.Fatalf("Download: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "ID3-audio-bytes" {
		t.Fatalf("unexpected file contents %q, %v", data, err)
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestDownloadFailureLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "CA1.mp3")
	err := newTestClient(t, srv, 5).Download(context.Background(), srv.URL+"/rec.mp3", dest)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusForbidden {
		t.Fatalf("err = %v, want 403 StatusError", err)
	}
	for _, p := range []string{dest, dest + ".part"} {
		if _, statErr := os.Stat(p); !os.IsNotExist(statErr) {
			t.Fatalf("%s should not exist", p)
		}
	}
}
