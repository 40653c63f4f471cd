// Package telephony talks to the Exotel v1 REST API: call metadata, paged
// call listings and recording downloads.
package telephony

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"voice-pipeline-go/internal/config"
	"voice-pipeline-go/internal/logger"
	"voice-pipeline-go/internal/types"
)

const downloadUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

var (
	// ErrTimeout marks a request that exceeded its time budget.
	ErrTimeout = errors.New("telephony request timed out")
	// ErrNotFound is returned for an unknown call sid.
	ErrNotFound = errors.New("call not found")
)

// StatusError carries a non-success HTTP response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("telephony api returned %d: %s", e.Code, e.Body)
}

// Page is one page of the bulk call listing.
type Page struct {
	Calls    []types.CallMeta
	Total    int
	PageSize int
}

// Client is safe for concurrent use.
type Client struct {
	baseURL  string
	apiKey   string
	apiToken string
	timeout  time.Duration
	retryFor time.Duration
	http     *http.Client
	log      *logger.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithBaseURL overrides the account base URL.
func WithBaseURL(u string) Option {
	return func(cl *Client) { cl.baseURL = strings.TrimRight(u, "/") }
}

// New builds a client from telephony settings.
func New(cfg config.Telephony, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		apiToken: cfg.APIToken,
		timeout:  config.Seconds(cfg.TimeoutSeconds),
		retryFor: config.Seconds(cfg.RetrySeconds),
		log:      log.Component("telephony"),
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	c.http = &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: c.timeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetCall fetches current metadata for one call.
func (c *Client) GetCall(ctx context.Context, sid string) (types.CallMeta, error) {
	endpoint := fmt.Sprintf("%s/Calls/%s", c.baseURL, url.PathEscape(sid))
	body, err := c.getWithRetry(ctx, endpoint)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return types.CallMeta{}, fmt.Errorf("call %s: %w", sid, ErrNotFound)
		}
		return types.CallMeta{}, fmt.Errorf("get call %s: %w", sid, err)
	}
	calls, _, err := parseCalls(body)
	if err != nil {
		return types.CallMeta{}, fmt.Errorf("get call %s: %w", sid, err)
	}
	if len(calls) == 0 {
		return types.CallMeta{}, fmt.Errorf("call %s: %w", sid, ErrNotFound)
	}
	return calls[0], nil
}

// ListCalls fetches one page of the bulk listing. Pages start at 1.
func (c *Client) ListCalls(ctx context.Context, page, pageSize int) (Page, error) {
	q := url.Values{}
	q.Set("Page", strconv.Itoa(page))
	q.Set("PageSize", strconv.Itoa(pageSize))
	endpoint := c.baseURL + "/Calls?" + q.Encode()

	body, err := c.getWithRetry(ctx, endpoint)
	if err != nil {
		return Page{}, fmt.Errorf("list calls page %d: %w", page, err)
	}
	calls, meta, err := parseCalls(body)
	if err != nil {
		return Page{}, fmt.Errorf("list calls page %d: %w", page, err)
	}
	out := Page{Calls: calls, Total: meta.total, PageSize: meta.pageSize}
	if out.PageSize == 0 {
		out.PageSize = pageSize
	}
	return out, nil
}

// Download streams the recording at recordingURL to dest. On failure no
// file is left at dest.
func (c *Client) Download(ctx context.Context, recordingURL, dest string) error {
	log := c.log.With("dest", filepath.Base(dest))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	tmp := dest + ".part"

	var lastErr error
	op := func() error {
		lastErr = c.downloadOnce(ctx, recordingURL, tmp)
		if lastErr == nil {
			return nil
		}
		_ = os.Remove(tmp)
		log.WithError(lastErr).Warn("recording download attempt failed")
		var se *StatusError
		if errors.As(lastErr, &se) && se.Code >= 400 && se.Code < 500 {
			return backoff.Permanent(lastErr)
		}
		return lastErr
	}
	if err := backoff.Retry(op, c.backoff(ctx)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("download recording: %w", lastErr)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("finalize recording: %w", err)
	}
	return nil
}

func (c *Client) downloadOnce(ctx context.Context, recordingURL, tmp string) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, recordingURL, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build download request: %w", err))
	}
	req.SetBasicAuth(c.apiKey, c.apiToken)
	req.Header.Set("User-Agent", downloadUserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return classify(reqCtx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	f, err := os.Create(tmp)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create artifact: %w", err))
	}
	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		return classify(reqCtx, copyErr)
	}
	if closeErr != nil {
		return closeErr
	}
	if n == 0 {
		return errors.New("empty recording body")
	}
	return nil
}

func (c *Client) getWithRetry(ctx context.Context, endpoint string) ([]byte, error) {
	var (
		body    []byte
		lastErr error
	)
	op := func() error {
		body, lastErr = c.getOnce(ctx, endpoint)
		if lastErr == nil {
			return nil
		}
		var se *StatusError
		if errors.As(lastErr, &se) && se.Code >= 400 && se.Code < 500 {
			return backoff.Permanent(lastErr)
		}
		c.log.WithError(lastErr).Warn("telephony request failed, retrying")
		return lastErr
	}
	if err := backoff.Retry(op, c.backoff(ctx)); err != nil {
		return nil, lastErr
	}
	return body, nil
}

func (c *Client) getOnce(ctx context.Context, endpoint string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.SetBasicAuth(c.apiKey, c.apiToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(reqCtx, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(reqCtx, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(strings.TrimSpace(string(body)), 512)}
	}
	return body, nil
}

func (c *Client) backoff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = c.retryFor
	if c.retryFor <= 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	return backoff.WithContext(bo, ctx)
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
