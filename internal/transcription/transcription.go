package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voice-pipeline-go/internal/config"
	"voice-pipeline-go/internal/logger"
)

// Tier selects the transcription quality path.
type Tier string

const (
	TierDiarized Tier = "diarized"
	TierPlain    Tier = "plain"
)

var (
	// ErrTimeout marks a transcription that exceeded its tier budget.
	ErrTimeout = errors.New("transcription timed out")
	// ErrEmptyTranscript is returned when the service produced no text.
	ErrEmptyTranscript = errors.New("empty transcript")
)

// APIError is a non-success response from the transcription endpoint.
type APIError struct {
	Code int
	Body string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("transcription api returned %d: %s", e.Code, e.Body)
}

type Segment struct {
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

type transcriptResponse struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// Client calls an OpenAI-compatible /audio/transcriptions endpoint. It does
// not retry; the caller falls back between tiers instead.
type Client struct {
	baseURL        string
	apiKey         string
	diarizeModel   string
	plainModel     string
	diarizeTimeout time.Duration
	plainTimeout   time.Duration
	http           *http.Client
	log            *logger.Logger
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

// WithTimeouts overrides the per-tier budgets.
func WithTimeouts(diarized, plain time.Duration) Option {
	return func(cl *Client) {
		cl.diarizeTimeout = diarized
		cl.plainTimeout = plain
	}
}

func New(cfg config.OpenAI, log *logger.Logger, opts ...Option) *Client {
	connect := config.Seconds(cfg.ConnectTimeoutSeconds)
	if connect <= 0 {
		connect = 10 * time.Second
	}
	c := &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		diarizeModel:   cfg.DiarizeModel,
		plainModel:     cfg.PlainModel,
		diarizeTimeout: config.Seconds(cfg.DiarizeTimeoutSeconds),
		plainTimeout:   config.Seconds(cfg.PlainTimeoutSeconds),
		http: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				DialContext:         (&net.Dialer{Timeout: connect}).DialContext,
				TLSHandshakeTimeout: connect,
			},
		},
		log: log.Component("transcription"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe converts the audio file at path to text using tier. Diarized
// output is rendered as "User N: text" lines, numbered by first appearance.
func (c *Client) Transcribe(ctx context.Context, tier Tier, path string) (string, error) {
	model, budget := c.plainModel, c.plainTimeout
	if tier == TierDiarized {
		model, budget = c.diarizeModel, c.diarizeTimeout
	}
	log := c.log.WithFields(map[string]any{"tier": string(tier), "model": model, "file": filepath.Base(path)})

	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	body, contentType, err := buildForm(tier, model, path)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return "", fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", classify(ctx, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classify(ctx, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var parsed transcriptResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	var text string
	if tier == TierDiarized {
		text = FormatDiarized(parsed.Segments)
	} else {
		text = strings.TrimSpace(parsed.Text)
	}
	if text == "" {
		return "", ErrEmptyTranscript
	}
	log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("transcription finished")
	return text, nil
}

func buildForm(tier Tier, model, path string) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("read audio: %w", err)
	}
	_ = w.WriteField("model", model)
	if tier == TierDiarized {
		_ = w.WriteField("response_format", "diarized_json")
		_ = w.WriteField("chunking_strategy", "auto")
	} else {
		_ = w.WriteField("response_format", "json")
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &b, w.FormDataContentType(), nil
}

// FormatDiarized renders speaker segments as "User N: text" lines.
func FormatDiarized(segments []Segment) string {
	speakers := map[string]string{}
	var lines []string
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		spk := seg.Speaker
		if spk == "" {
			spk = "unknown"
		}
		label, ok := speakers[spk]
		if !ok {
			label = fmt.Sprintf("User %d", len(speakers)+1)
			speakers[spk] = label
		}
		lines = append(lines, label+": "+text)
	}
	return strings.Join(lines, "\n")
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("transcription request: %w", err)
}
