package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Scheduler interval bounds accepted anywhere.
const (
	MinIntervalSeconds = 10
	MaxIntervalSeconds = 7 * 24 * 60 * 60
)

// Config is the full runtime configuration. It is built once at process
// start and passed to constructors; nothing reads the environment afterwards.
type Config struct {
	Telephony Telephony `toml:"telephony" yaml:"telephony"`
	OpenAI    OpenAI    `toml:"openai" yaml:"openai"`
	Paths     Paths     `toml:"paths" yaml:"paths"`
	Scheduler Scheduler `toml:"scheduler" yaml:"scheduler"`
	Pipeline  Pipeline  `toml:"pipeline" yaml:"pipeline"`
	Ingest    Ingest    `toml:"ingest" yaml:"ingest"`
	Logging   Logging   `toml:"logging" yaml:"logging"`
	Server    Server    `toml:"server" yaml:"server"`
}

// Telephony holds Exotel account settings.
type Telephony struct {
	APIKey         string `toml:"api_key" yaml:"api_key"`
	APIToken       string `toml:"api_token" yaml:"api_token"`
	AccountSID     string `toml:"account_sid" yaml:"account_sid"`
	Subdomain      string `toml:"subdomain" yaml:"subdomain"`
	BaseURL        string `toml:"base_url" yaml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
	RetrySeconds   int    `toml:"retry_seconds" yaml:"retry_seconds"`
}

// OpenAI holds transcription and analysis settings.
type OpenAI struct {
	APIKey                 string  `toml:"api_key" yaml:"api_key"`
	BaseURL                string  `toml:"base_url" yaml:"base_url"`
	AnalysisModel          string  `toml:"analysis_model" yaml:"analysis_model"`
	Temperature            float64 `toml:"temperature" yaml:"temperature"`
	DiarizeModel           string  `toml:"diarize_model" yaml:"diarize_model"`
	PlainModel             string  `toml:"plain_model" yaml:"plain_model"`
	DiarizeTimeoutSeconds  int     `toml:"diarize_timeout_seconds" yaml:"diarize_timeout_seconds"`
	PlainTimeoutSeconds    int     `toml:"plain_timeout_seconds" yaml:"plain_timeout_seconds"`
	AnalysisTimeoutSeconds int     `toml:"analysis_timeout_seconds" yaml:"analysis_timeout_seconds"`
	ConnectTimeoutSeconds  int     `toml:"connect_timeout_seconds" yaml:"connect_timeout_seconds"`
}

// Paths groups filesystem locations.
type Paths struct {
	DataDir      string `toml:"data_dir" yaml:"data_dir"`
	ArtifactDir  string `toml:"artifact_dir" yaml:"artifact_dir"`
	MarkerFile   string `toml:"marker_file" yaml:"marker_file"`
	RunLogFile   string `toml:"run_log_file" yaml:"run_log_file"`
	DatabasePath string `toml:"database_path" yaml:"database_path"`
}

// Scheduler controls the daemon loop and stop polling.
type Scheduler struct {
	IntervalSeconds int `toml:"interval_seconds" yaml:"interval_seconds"`
	StopAttempts    int `toml:"stop_attempts" yaml:"stop_attempts"`
	StopDelayMillis int `toml:"stop_delay_millis" yaml:"stop_delay_millis"`
}

// Pipeline tunes per-cycle record processing.
type Pipeline struct {
	StatusFilter         string `toml:"status_filter" yaml:"status_filter"`
	RecordDelayMillis    int    `toml:"record_delay_millis" yaml:"record_delay_millis"`
	CheckpointTranscript bool   `toml:"checkpoint_transcript" yaml:"checkpoint_transcript"`
}

// Ingest controls the bulk listing sync run before each cycle.
type Ingest struct {
	Enabled  bool `toml:"enabled" yaml:"enabled"`
	PageSize int  `toml:"page_size" yaml:"page_size"`
}

// Logging configures the structured logger.
type Logging struct {
	Level       string `toml:"level" yaml:"level"`
	Format      string `toml:"format" yaml:"format"`
	Environment string `toml:"environment" yaml:"environment"`
}

// Server configures the management HTTP server.
type Server struct {
	Addr string `toml:"addr" yaml:"addr"`
}

// Default returns a configuration populated with built-in defaults.
func Default() Config {
	return Config{
		Telephony: Telephony{
			Subdomain:      "api.exotel.in",
			TimeoutSeconds: 30,
			RetrySeconds:   20,
		},
		OpenAI: OpenAI{
			BaseURL:                "https://api.openai.com/v1",
			AnalysisModel:          "gpt-4.1",
			Temperature:            0.3,
			DiarizeModel:           "gpt-4o-transcribe-diarize",
			PlainModel:             "gpt-4o-mini-transcribe",
			DiarizeTimeoutSeconds:  180,
			PlainTimeoutSeconds:    600,
			AnalysisTimeoutSeconds: 600,
			ConnectTimeoutSeconds:  10,
		},
		Paths: Paths{
			DataDir: "data",
		},
		Scheduler: Scheduler{
			IntervalSeconds: 120,
			StopAttempts:    10,
			StopDelayMillis: 500,
		},
		Pipeline: Pipeline{
			StatusFilter:      "in-progress",
			RecordDelayMillis: 1000,
		},
		Ingest: Ingest{
			PageSize: 100,
		},
		Logging: Logging{
			Level:  "info",
			Format: "auto",
		},
		Server: Server{
			Addr: ":8000",
		},
	}
}

// Load reads configuration from path (TOML or YAML by extension), applies
// environment overrides and fills derived paths. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path = strings.TrimSpace(path); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse yaml config: %w", err)
			}
		case ".toml", "":
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse toml config: %w", err)
			}
		default:
			return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
		}
	}
	cfg.applyEnv(os.LookupEnv)
	cfg.normalize()
	return &cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) {
	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}

	setString("EXOTEL_API_KEY", &c.Telephony.APIKey)
	setString("EXOTEL_API_TOKEN", &c.Telephony.APIToken)
	setString("EXOTEL_SID", &c.Telephony.AccountSID)
	setString("EXOTEL_SUBDOMAIN", &c.Telephony.Subdomain)
	setString("OPENAI_API_KEY", &c.OpenAI.APIKey)
	setString("OPENAI_BASE_URL", &c.OpenAI.BaseURL)
	setString("PIPELINE_DATA_DIR", &c.Paths.DataDir)
	setString("PIPELINE_DATABASE_PATH", &c.Paths.DatabasePath)
	setInt("PIPELINE_INTERVAL_SECONDS", &c.Scheduler.IntervalSeconds)
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("ENVIRONMENT", &c.Logging.Environment)
	if v, ok := lookup("PORT"); ok && strings.TrimSpace(v) != "" {
		c.Server.Addr = ":" + strings.TrimSpace(v)
	}
}

func (c *Config) normalize() {
	c.Paths.DataDir = expandHome(c.Paths.DataDir)
	if c.Paths.ArtifactDir == "" {
		c.Paths.ArtifactDir = filepath.Join(c.Paths.DataDir, "recordings")
	}
	if c.Paths.MarkerFile == "" {
		c.Paths.MarkerFile = filepath.Join(c.Paths.DataDir, "pipeline_daemon.pid")
	}
	if c.Paths.RunLogFile == "" {
		c.Paths.RunLogFile = filepath.Join(c.Paths.DataDir, "pipeline_execution.log")
	}
	if c.Paths.DatabasePath == "" {
		c.Paths.DatabasePath = filepath.Join(c.Paths.DataDir, "calls.db")
	}
	c.Paths.ArtifactDir = expandHome(c.Paths.ArtifactDir)
	c.Paths.MarkerFile = expandHome(c.Paths.MarkerFile)
	c.Paths.RunLogFile = expandHome(c.Paths.RunLogFile)
	c.Paths.DatabasePath = expandHome(c.Paths.DatabasePath)

	if c.Telephony.BaseURL == "" && c.Telephony.AccountSID != "" {
		c.Telephony.BaseURL = fmt.Sprintf("https://%s/v1/Accounts/%s", c.Telephony.Subdomain, c.Telephony.AccountSID)
	}
	c.OpenAI.BaseURL = strings.TrimRight(c.OpenAI.BaseURL, "/")
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// EnsureDirectories creates the data and artifact directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.DataDir,
		c.Paths.ArtifactDir,
		filepath.Dir(c.Paths.MarkerFile),
		filepath.Dir(c.Paths.RunLogFile),
	}
	if c.Paths.DatabasePath != ":memory:" {
		dirs = append(dirs, filepath.Dir(c.Paths.DatabasePath))
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Interval returns the configured scheduler interval.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Scheduler.IntervalSeconds) * time.Second
}

// Seconds converts a whole-second setting into a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Millis converts a millisecond setting into a duration.
func Millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
