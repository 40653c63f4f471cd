package pipeline

import (
	"errors"
	"fmt"
)

// Stage names one ordered step of per-record processing.
type Stage string

const (
	StageMetadata   Stage = "metadata"
	StageRecording  Stage = "recording"
	StageDownload   Stage = "download"
	StageTranscribe Stage = "transcribe"
	StageAnalyze    Stage = "analyze"
	StagePersist    Stage = "persist"
)

// Stage failure kinds. A record failing with any of these keeps its last
// durable state and is retried on the next cycle.
var (
	ErrMetadataUnavailable = errors.New("metadata unavailable")
	ErrRecordingNotReady   = errors.New("recording not ready")
	ErrDownloadFailed      = errors.New("download failed")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrAnalysisFailed      = errors.New("analysis failed")
	ErrPersistFailed       = errors.New("persist failed")
)

var stageKinds = map[Stage]error{
	StageMetadata:   ErrMetadataUnavailable,
	StageRecording:  ErrRecordingNotReady,
	StageDownload:   ErrDownloadFailed,
	StageTranscribe: ErrTranscriptionFailed,
	StageAnalyze:    ErrAnalysisFailed,
	StagePersist:    ErrPersistFailed,
}

// StageError reports a per-record failure. errors.Is matches both the kind
// sentinel and the underlying cause.
type StageError struct {
	Stage Stage
	SID   string
	Kind  error
	Err   error
}

func newStageError(stage Stage, sid string, cause error) *StageError {
	return &StageError{Stage: stage, SID: sid, Kind: stageKinds[stage], Err: cause}
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.SID, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.SID, e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
