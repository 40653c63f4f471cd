package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"voice-pipeline-go/internal/ingest"
)

// State is how far a record advanced during one attempt.
type State string

const (
	StateDiscovered         State = "discovered"
	StateMetadataFetched    State = "metadata_fetched"
	StateRecordingAvailable State = "recording_available"
	StateDownloaded         State = "downloaded"
	StateTranscribed        State = "transcribed"
	StateAnalyzed           State = "analyzed"
	StatePersisted          State = "persisted"
)

// RecordResult is the outcome of one record attempt.
type RecordResult struct {
	SID      string
	State    State
	Tier     string
	Err      error
	Duration time.Duration
	// Interrupted is set when cancellation stopped the record between stages.
	Interrupted bool
}

// Failed reports whether a stage failed.
func (r RecordResult) Failed() bool {
	return r.Err != nil && !r.Interrupted
}

// Summary is the outcome of one cycle.
type Summary struct {
	CycleID     string
	Started     time.Time
	Finished    time.Time
	Eligible    int
	Persisted   int
	Failures    map[Stage]int
	Interrupted bool
	Ingest      *ingest.Report
	Results     []RecordResult
}

// Failed returns the total number of failed records.
func (s Summary) Failed() int {
	n := 0
	for _, c := range s.Failures {
		n += c
	}
	return n
}

// Message renders a one-line summary for the run log.
func (s Summary) Message() string {
	if s.Eligible == 0 && !s.Interrupted {
		return "no eligible records"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "eligible=%d persisted=%d failed=%d", s.Eligible, s.Persisted, s.Failed())
	if len(s.Failures) > 0 {
		stages := make([]string, 0, len(s.Failures))
		for st, n := range s.Failures {
			stages = append(stages, fmt.Sprintf("%s=%d", st, n))
		}
		sort.Strings(stages)
		fmt.Fprintf(&b, " (%s)", strings.Join(stages, " "))
	}
	if s.Interrupted {
		b.WriteString(" interrupted")
	}
	return b.String()
}

func (s *Summary) add(r RecordResult) {
	s.Results = append(s.Results, r)
	switch {
	case r.Interrupted:
		s.Interrupted = true
	case r.Err == nil:
		s.Persisted++
	default:
		if s.Failures == nil {
			s.Failures = map[Stage]int{}
		}
		var se *StageError
		if errors.As(r.Err, &se) {
			s.Failures[se.Stage]++
		}
	}
}
