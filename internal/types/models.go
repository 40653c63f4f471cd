package types

import "time"

// TranscriptStatus tracks the transcript checkpoint of a record.
type TranscriptStatus string

const (
	TranscriptPending   TranscriptStatus = "pending"
	TranscriptCompleted TranscriptStatus = "completed"
	TranscriptFailed    TranscriptStatus = "failed"
)

// CallMeta is call metadata as reported by the telephony provider.
type CallMeta struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	RecordingURL string `json:"recording_url,omitempty"`
	From         string `json:"from,omitempty"`
	To           string `json:"to,omitempty"`
	Direction    string `json:"direction,omitempty"`
	Duration     int    `json:"duration,omitempty"`
	StartTime    string `json:"start_time,omitempty"`
	EndTime      string `json:"end_time,omitempty"`
}

// Record is one call tracked through the pipeline. Analysis columns hold JSON
// blobs and stay empty until the record completes.
type Record struct {
	CallMeta
	Transcript        string           `json:"transcript,omitempty"`
	TranscriptStatus  TranscriptStatus `json:"transcript_status"`
	Summary           string           `json:"summary,omitempty"`
	Threat            string           `json:"threat,omitempty"`
	Priority          string           `json:"priority,omitempty"`
	HumanIntervention string           `json:"human_intervention,omitempty"`
	Satisfaction      string           `json:"satisfaction,omitempty"`
	Frustration       string           `json:"frustration,omitempty"`
	Nuisance          string           `json:"nuisance,omitempty"`
	RepeatedComplaint string           `json:"repeated_complaint,omitempty"`
	NextBestAction    string           `json:"next_best_action,omitempty"`
	OpenQuestions     string           `json:"open_questions,omitempty"`
	PIIDetails        string           `json:"pii_details,omitempty"`
	Completed         bool             `json:"completed"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
}

// HasAnalysis reports whether any analysis column is set.
func (r Record) HasAnalysis() bool {
	for _, v := range r.analysisColumns() {
		if v != "" {
			return true
		}
	}
	return false
}

// AnalysisComplete reports whether every analysis column is set.
func (r Record) AnalysisComplete() bool {
	for _, v := range r.analysisColumns() {
		if v == "" {
			return false
		}
	}
	return true
}

func (r Record) analysisColumns() []string {
	return []string{
		r.Summary, r.Threat, r.Priority, r.HumanIntervention, r.Satisfaction,
		r.Frustration, r.Nuisance, r.RepeatedComplaint, r.NextBestAction,
		r.OpenQuestions, r.PIIDetails,
	}
}

// Completion is the single atomic update that finishes a record.
type Completion struct {
	SID        string
	CallStatus string
	Transcript string
	Analysis   StructuredAnalysis
}
