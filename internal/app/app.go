// Package app assembles the pipeline object graph from configuration.
package app

import (
	"errors"
	"fmt"
	"io"

	"voice-pipeline-go/internal/config"
	"voice-pipeline-go/internal/daemon"
	"voice-pipeline-go/internal/extractor"
	"voice-pipeline-go/internal/ingest"
	"voice-pipeline-go/internal/logger"
	"voice-pipeline-go/internal/pipeline"
	"voice-pipeline-go/internal/runlog"
	"voice-pipeline-go/internal/store"
	"voice-pipeline-go/internal/telephony"
	"voice-pipeline-go/internal/transcription"
)

// Options adjusts process-specific wiring.
type Options struct {
	// LogOutput receives structured logs; stdout when nil.
	LogOutput io.Writer
	// RunLogEcho mirrors run log lines, as a foreground daemon does to stdout.
	RunLogEcho io.Writer
}

// App holds every long-lived component. Close releases the store.
type App struct {
	Config     *config.Config
	Log        *logger.Logger
	Runs       *runlog.Log
	Store      *store.Store
	Telephony  *telephony.Client
	Ingest     *ingest.Syncer
	Pipeline   *pipeline.Pipeline
	Marker     *daemon.Marker
	Controller *daemon.Controller
	Scheduler  *daemon.Scheduler
	Supervisor *daemon.Supervisor
}

// NewLogger builds the process logger from configuration.
func NewLogger(cfg *config.Config, out io.Writer) *logger.Logger {
	return logger.New(logger.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Environment: cfg.Logging.Environment,
		Output:      out,
	})
}

// Control is the subset needed to inspect or stop a daemon and read its run
// log. It needs no credentials and never opens the store.
type Control struct {
	Marker     *daemon.Marker
	Controller *daemon.Controller
	Runs       *runlog.Log
}

func NewControl(cfg *config.Config, log *logger.Logger) *Control {
	marker := daemon.NewMarker(cfg.Paths.MarkerFile)
	return &Control{
		Marker:     marker,
		Controller: daemon.NewController(marker, cfg.Scheduler.StopAttempts, config.Millis(cfg.Scheduler.StopDelayMillis), log),
		Runs:       runlog.New(cfg.Paths.RunLogFile),
	}
}

// OpenStore prepares directories and opens the record store without
// requiring provider credentials.
func OpenStore(cfg *config.Config) (*store.Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.Paths.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// New validates cfg and wires the full pipeline. Configuration and store
// errors are fatal here, before any loop starts.
func New(cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := NewLogger(cfg, opts.LogOutput)

	st, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}

	var runOpts []runlog.Option
	if opts.RunLogEcho != nil {
		runOpts = append(runOpts, runlog.WithEcho(opts.RunLogEcho))
	}
	runs := runlog.New(cfg.Paths.RunLogFile, runOpts...)

	tel := telephony.New(cfg.Telephony, log)
	deps := pipeline.Deps{
		Source:      tel,
		Fetcher:     tel,
		Transcriber: transcription.New(cfg.OpenAI, log),
		Analyzer:    extractor.New(cfg.OpenAI, log),
		Store:       st,
	}
	syncer := ingest.NewSyncer(tel, st, cfg.Ingest.PageSize, log)
	if cfg.Ingest.Enabled {
		deps.Ingestor = syncer
	}

	p, err := pipeline.New(deps, pipeline.Options{
		ArtifactDir:          cfg.Paths.ArtifactDir,
		StatusFilter:         cfg.Pipeline.StatusFilter,
		RecordDelay:          config.Millis(cfg.Pipeline.RecordDelayMillis),
		CheckpointTranscript: cfg.Pipeline.CheckpointTranscript,
	}, log, runs)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	marker := daemon.NewMarker(cfg.Paths.MarkerFile)
	ctrl := daemon.NewController(marker, cfg.Scheduler.StopAttempts, config.Millis(cfg.Scheduler.StopDelayMillis), log)
	sched := daemon.NewScheduler(marker, p, runs, log)

	return &App{
		Config:     cfg,
		Log:        log,
		Runs:       runs,
		Store:      st,
		Telephony:  tel,
		Ingest:     syncer,
		Pipeline:   p,
		Marker:     marker,
		Controller: ctrl,
		Scheduler:  sched,
		Supervisor: daemon.NewSupervisor(sched, ctrl, log),
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	if a == nil || a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
