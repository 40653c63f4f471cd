// Package pipeline advances call records through metadata fetch, recording
// download, transcription, analysis and a single completing write.
//
// A record only changes in the store when every stage succeeded; any failure
// leaves it eligible for the next cycle. Stages already started always run
// to completion: cancellation is honoured between stages and between records.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"voice-pipeline-go/internal/ingest"
	"voice-pipeline-go/internal/logger"
	"voice-pipeline-go/internal/runlog"
	"voice-pipeline-go/internal/transcription"
	"voice-pipeline-go/internal/types"
)

// MetadataSource returns current provider metadata for a call.
type MetadataSource interface {
	GetCall(ctx context.Context, sid string) (types.CallMeta, error)
}

// ArtifactFetcher downloads a recording to dest, leaving no file on failure.
type ArtifactFetcher interface {
	Download(ctx context.Context, recordingURL, dest string) error
}

// Transcriber converts audio to text on the requested tier.
type Transcriber interface {
	Transcribe(ctx context.Context, tier transcription.Tier, path string) (string, error)
}

// Analyzer produces a schema-valid analysis for a transcript.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (types.Analysis, error)
}

// RecordStore is the durable checkpoint.
type RecordStore interface {
	ListIncomplete(ctx context.Context, statusFilter string) ([]types.Record, error)
	SaveTranscript(ctx context.Context, sid, transcript string, status types.TranscriptStatus) error
	Complete(ctx context.Context, c types.Completion) error
}

// Ingestor refreshes the store from the provider listing before a cycle.
type Ingestor interface {
	Sync(ctx context.Context) (ingest.Report, error)
}

// Deps are the collaborators a Pipeline drives. Ingestor may be nil.
type Deps struct {
	Source      MetadataSource
	Fetcher     ArtifactFetcher
	Transcriber Transcriber
	Analyzer    Analyzer
	Store       RecordStore
	Ingestor    Ingestor
}

// Options tune a Pipeline.
type Options struct {
	ArtifactDir  string
	StatusFilter string
	RecordDelay  time.Duration
	// CheckpointTranscript saves the transcript as soon as it exists and lets
	// later cycles reuse it instead of downloading and transcribing again.
	CheckpointTranscript bool
}

type Pipeline struct {
	deps  Deps
	opts  Options
	log   *logger.Logger
	runs  *runlog.Log
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(deps Deps, opts Options, log *logger.Logger, runs *runlog.Log) (*Pipeline, error) {
	if deps.Source == nil || deps.Fetcher == nil || deps.Transcriber == nil || deps.Analyzer == nil || deps.Store == nil {
		return nil, errors.New("pipeline requires source, fetcher, transcriber, analyzer and store")
	}
	if opts.ArtifactDir == "" {
		return nil, errors.New("pipeline requires an artifact directory")
	}
	return &Pipeline{
		deps:  deps,
		opts:  opts,
		log:   log.Component("pipeline"),
		runs:  runs,
		now:   time.Now,
		sleep: sleepContext,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunCycle processes every eligible record once, sequentially in store
// order. Per-record failures are counted in the summary; the returned error
// is only set when records could not be enumerated.
func (p *Pipeline) RunCycle(ctx context.Context) (Summary, error) {
	sum := Summary{CycleID: uuid.NewString(), Started: p.now()}
	log := p.log.With("cycle_id", sum.CycleID)

	if p.deps.Ingestor != nil {
		rep, err := p.deps.Ingestor.Sync(ctx)
		sum.Ingest = &rep
		if err != nil {
			log.WithError(err).Warn("ingest sync failed")
			p.appendRun("ingest failed: %v", err)
		} else {
			p.appendRun("ingest: fetched=%d inserted=%d pages=%d stop=%s", rep.Fetched, rep.Inserted, rep.Pages, rep.Reason)
		}
		if ctx.Err() != nil {
			sum.Interrupted = true
			sum.Finished = p.now()
			log.WithField("pages", rep.Pages).Info("cycle interrupted during ingest")
			return sum, nil
		}
	}

	records, err := p.deps.Store.ListIncomplete(context.WithoutCancel(ctx), p.opts.StatusFilter)
	if err != nil {
		sum.Finished = p.now()
		return sum, fmt.Errorf("list eligible records: %w", err)
	}
	sum.Eligible = len(records)
	if len(records) == 0 {
		log.Info("no eligible records")
		sum.Finished = p.now()
		return sum, nil
	}
	log.WithField("eligible", len(records)).Info("cycle started")

	for i, rec := range records {
		if ctx.Err() != nil {
			sum.Interrupted = true
			break
		}
		if i > 0 && p.opts.RecordDelay > 0 {
			if err := p.sleep(ctx, p.opts.RecordDelay); err != nil {
				sum.Interrupted = true
				break
			}
		}
		sum.add(p.ProcessRecord(ctx, rec))
	}

	sum.Finished = p.now()
	log.WithFields(map[string]any{
		"persisted":   sum.Persisted,
		"failed":      sum.Failed(),
		"interrupted": sum.Interrupted,
	}).Info("cycle finished")
	return sum, nil
}

// ProcessRecord advances one record through every stage. Nothing is written
// to the store unless the final completing write succeeds, except the
// optional transcript checkpoint.
func (p *Pipeline) ProcessRecord(ctx context.Context, rec types.Record) RecordResult {
	start := p.now()
	res := RecordResult{SID: rec.SID, State: StateDiscovered}
	log := p.log.With("sid", rec.SID)
	stageCtx := context.WithoutCancel(ctx)

	fail := func(stage Stage, cause error) RecordResult {
		res.Err = newStageError(stage, rec.SID, cause)
		res.Duration = p.now().Sub(start)
		p.log.WithRecord(rec.SID, string(stage)).WithField("error", res.Err.Error()).Warn("record skipped")
		p.appendRun("%s %s failed: %v", rec.SID, stage, cause)
		return res
	}
	interrupted := func() bool {
		if ctx.Err() == nil {
			return false
		}
		res.Err = ctx.Err()
		res.Interrupted = true
		res.Duration = p.now().Sub(start)
		log.WithField("state", string(res.State)).Info("record interrupted between stages")
		return true
	}

	meta, err := p.deps.Source.GetCall(stageCtx, rec.SID)
	if err != nil {
		return fail(StageMetadata, err)
	}
	res.State = StateMetadataFetched
	if interrupted() {
		return res
	}

	recordingURL := meta.RecordingURL
	if recordingURL == "" {
		recordingURL = rec.RecordingURL
	}
	if recordingURL == "" {
		return fail(StageRecording, fmt.Errorf("no recording url (call status %q)", meta.Status))
	}
	res.State = StateRecordingAvailable

	audioPath := filepath.Join(p.opts.ArtifactDir, rec.SID+".mp3")
	transcriptPath := filepath.Join(p.opts.ArtifactDir, rec.SID+".txt")

	transcript := ""
	if p.opts.CheckpointTranscript && rec.TranscriptStatus == types.TranscriptCompleted && rec.Transcript != "" {
		transcript = rec.Transcript
		res.Tier = "checkpoint"
		res.State = StateTranscribed
		log.Info("reusing checkpointed transcript")
	} else {
		if interrupted() {
			return res
		}
		if err := p.deps.Fetcher.Download(stageCtx, recordingURL, audioPath); err != nil {
			_ = os.Remove(audioPath)
			return fail(StageDownload, err)
		}
		res.State = StateDownloaded
		p.appendRun("%s downloaded", rec.SID)
		if interrupted() {
			return res
		}

		var tier transcription.Tier
		transcript, tier, err = p.transcribe(stageCtx, log, audioPath)
		if err != nil {
			return fail(StageTranscribe, err)
		}
		res.Tier = string(tier)
		res.State = StateTranscribed
		p.appendRun("%s transcribed (%s)", rec.SID, tier)

		if err := os.WriteFile(transcriptPath, []byte(transcript+"\n"), 0o644); err != nil {
			log.WithError(err).Warn("failed to write transcript artifact")
		}
		if p.opts.CheckpointTranscript {
			if err := p.deps.Store.SaveTranscript(stageCtx, rec.SID, transcript, types.TranscriptCompleted); err != nil {
				log.WithError(err).Warn("failed to checkpoint transcript")
			}
		}
	}
	if interrupted() {
		return res
	}

	analysis, err := p.deps.Analyzer.Analyze(stageCtx, transcript)
	if err != nil {
		return fail(StageAnalyze, err)
	}
	res.State = StateAnalyzed
	if interrupted() {
		return res
	}

	err = p.deps.Store.Complete(stageCtx, types.Completion{
		SID:        rec.SID,
		CallStatus: meta.Status,
		Transcript: transcript,
		Analysis:   analysis.Structured(),
	})
	if err != nil {
		return fail(StagePersist, err)
	}
	res.State = StatePersisted
	res.Duration = p.now().Sub(start)
	p.appendRun("%s persisted", rec.SID)
	log.WithFields(map[string]any{
		"tier":        res.Tier,
		"priority":    analysis.Priority,
		"duration_ms": res.Duration.Milliseconds(),
	}).Info("record completed")

	p.cleanup(log, audioPath, transcriptPath)
	return res
}

// transcribe tries the diarized tier first and falls back to plain on any
// error, including its timeout.
func (p *Pipeline) transcribe(ctx context.Context, log *logger.Logger, audioPath string) (string, transcription.Tier, error) {
	text, diarErr := p.deps.Transcriber.Transcribe(ctx, transcription.TierDiarized, audioPath)
	if diarErr == nil {
		return text, transcription.TierDiarized, nil
	}
	log.WithError(diarErr).Warn("diarized transcription failed, falling back to plain")

	text, plainErr := p.deps.Transcriber.Transcribe(ctx, transcription.TierPlain, audioPath)
	if plainErr == nil {
		return text, transcription.TierPlain, nil
	}
	return "", "", errors.Join(
		fmt.Errorf("diarized: %w", diarErr),
		fmt.Errorf("plain: %w", plainErr),
	)
}

func (p *Pipeline) cleanup(log *logger.Logger, paths ...string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).WithField("path", path).Warn("artifact cleanup failed")
		}
	}
}

func (p *Pipeline) appendRun(format string, args ...any) {
	if err := p.runs.Appendf(format, args...); err != nil {
		p.log.WithError(err).Warn("run log write failed")
	}
}
