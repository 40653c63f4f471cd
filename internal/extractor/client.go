package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"voice-pipeline-go/internal/config"
	"voice-pipeline-go/internal/logger"
	"voice-pipeline-go/internal/types"
)

const defaultRetryWindow = 45 * time.Second

// APIError is a non-success chat completion response.
type APIError struct {
	Code int
	Body string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat completion returned %d: %s", e.Code, e.Body)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Client turns transcripts into validated analyses via chat completions.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	timeout     time.Duration
	retryWindow time.Duration
	http        *http.Client
	log         *logger.Logger
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

// WithRetryWindow bounds the total time spent retrying transient failures.
// Zero disables retries.
func WithRetryWindow(d time.Duration) Option {
	return func(cl *Client) { cl.retryWindow = d }
}

func New(cfg config.OpenAI, log *logger.Logger, opts ...Option) *Client {
	connect := config.Seconds(cfg.ConnectTimeoutSeconds)
	if connect <= 0 {
		connect = 10 * time.Second
	}
	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.AnalysisModel,
		temperature: cfg.Temperature,
		timeout:     config.Seconds(cfg.AnalysisTimeoutSeconds),
		retryWindow: defaultRetryWindow,
		http: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				DialContext:         (&net.Dialer{Timeout: connect}).DialContext,
				TLSHandshakeTimeout: connect,
			},
		},
		log: log.Component("extractor"),
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Minute
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Analyze sends the transcript for analysis and validates the response.
// Transport failures and 5xx responses are retried; client errors and
// schema violations are not.
func (c *Client) Analyze(ctx context.Context, transcript string) (types.Analysis, error) {
	if strings.TrimSpace(transcript) == "" {
		return types.Analysis{}, errors.New("analyze: transcript is empty")
	}
	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: BuildPrompt(transcript)}},
		Temperature: c.temperature,
	})
	if err != nil {
		return types.Analysis{}, fmt.Errorf("encode chat request: %w", err)
	}

	var (
		result  types.Analysis
		lastErr error
	)
	op := func() error {
		content, err := c.complete(ctx, payload)
		if err != nil {
			lastErr = err
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			c.log.WithError(err).Warn("chat completion failed")
			return err
		}
		parsed, err := ParseAnalysis(content)
		if err != nil {
			lastErr = err
			c.log.WithError(err).WithField("content_len", len(content)).Warn("analysis rejected")
			return backoff.Permanent(err)
		}
		result = parsed
		lastErr = nil
		return nil
	}

	var bo backoff.BackOff = &backoff.StopBackOff{}
	if c.retryWindow > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.MaxElapsedTime = c.retryWindow
		bo = exp
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return types.Analysis{}, fmt.Errorf("analyze: %w", lastErr)
	}
	return result, nil
}

func (c *Client) complete(ctx context.Context, payload []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("chat response has no choices")
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("chat response has empty content (finish_reason=%q)", parsed.Choices[0].FinishReason)
	}
	return content, nil
}
