package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"voice-pipeline-go/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleAnalysis() types.StructuredAnalysis {
	return types.Analysis{
		Summary:                   "Caller reports a late delivery.",
		ThreatFlag:                types.VerdictNo,
		ThreatEvidence:            "No threats made.",
		Priority:                  types.PriorityMedium,
		PriorityReason:            "Order delayed two days.",
		HumanInterventionRequired: types.VerdictYes,
		HumanInterventionReason:   "Refund needs approval.",
		Satisfied:                 types.VerdictUnclear,
		Nuisance:                  types.VerdictNo,
		NuisanceEvidence:          "Genuine query.",
		FrustrationLevel:          types.FrustrationMedium,
		FrustrationEvidence:       "Raised voice once.",
		RepeatedComplaint:         types.VerdictNo,
		RepeatedComplaintEvidence: "First call.",
		NextBestAction:            "Escalate refund.",
		OpenQuestions:             []string{"Was the courier contacted?"},
		PIIDetected:               types.VerdictNo,
		PIITypes:                  []types.PIIType{types.PIINone},
	}.Structured()
}

func TestInsertNeverOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ok, err := s.Insert(ctx, types.CallMeta{SID: "CA1", Status: "in-progress", RecordingURL: "https://rec/1"})
	if err != nil || !ok {
		t.Fatalf("first insert = %v, %v", ok, err)
	}
	ok, err = s.Insert(ctx, types.CallMeta{SID: "CA1", Status: "completed"})
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if ok {
		t.Fatal("expected duplicate insert to be ignored")
	}
	rec, err := s.Get(ctx, "CA1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != "in-progress" || rec.RecordingURL != "https://rec/1" {
		t.Fatalf("existing row modified: %+v", rec.CallMeta)
	}
	if rec.TranscriptStatus != types.TranscriptPending || rec.Completed {
		t.Fatalf("unexpected initial state: %+v", rec)
	}
}

func TestListIncompleteOrderAndFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	metas := []types.CallMeta{
		{SID: "CA3", Status: "in-progress"},
		{SID: "CA1", Status: "completed"},
		{SID: "CA2", Status: "in-progress"},
	}
	if n, err := s.InsertMany(ctx, metas); err != nil || n != 3 {
		t.Fatalf("InsertMany = %d, %v", n, err)
	}

	all, err := s.ListIncomplete(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].SID != "CA3" || all[1].SID != "CA1" || all[2].SID != "CA2" {
		t.Fatalf("unexpected order: %v", sids(all))
	}
	filtered, err := s.ListIncomplete(ctx, "in-progress")
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 2 || filtered[0].SID != "CA3" || filtered[1].SID != "CA2" {
		t.Fatalf("unexpected filtered list: %v", sids(filtered))
	}
}

func TestCompleteIsAtomicAndOneShot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.Insert(ctx, types.CallMeta{SID: "CA1", Status: "in-progress"}); err != nil {
		t.Fatal(err)
	}

	err := s.Complete(ctx, types.Completion{
		SID:        "CA1",
		CallStatus: "completed",
		Transcript: "User 1: hello",
		Analysis:   sampleAnalysis(),
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	rec, err := s.Get(ctx, "CA1")
	if err != nil {
		t.Fatal(err)
	}
	if !rec.Completed || rec.CompletedAt == nil {
		t.Fatalf("record not completed: %+v", rec)
	}
	if !rec.AnalysisComplete() {
		t.Fatalf("analysis columns missing: %+v", rec)
	}
	if rec.Status != "completed" || rec.Transcript != "User 1: hello" || rec.TranscriptStatus != types.TranscriptCompleted {
		t.Fatalf("unexpected record: %+v", rec)
	}
	decoded, err := types.DecodeStructured(*rec)
	if err != nil {
		t.Fatalf("DecodeStructured: %v", err)
	}
	if decoded.Priority.Level != types.PriorityMedium || decoded.OpenQuestions[0] != "Was the courier contacted?" {
		t.Fatalf("unexpected decoded analysis: %+v", decoded)
	}

	err = s.Complete(ctx, types.Completion{SID: "CA1", Transcript: "other", Analysis: sampleAnalysis()})
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("second Complete err = %v, want ErrAlreadyCompleted", err)
	}
	incomplete, err := s.ListIncomplete(ctx, "")
	if err != nil || len(incomplete) != 0 {
		t.Fatalf("completed record still eligible: %v %v", sids(incomplete), err)
	}
}

func TestCompleteMissingRecord(t *testing.T) {
	s := openTestStore(t)
	err := s.Complete(context.Background(), types.Completion{SID: "nope", Analysis: sampleAnalysis()})
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("err = %v", err)
	}
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get err = %v", err)
	}
}

func TestSaveTranscriptCheckpoint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.Insert(ctx, types.CallMeta{SID: "CA1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveTranscript(ctx, "CA1", "text", types.TranscriptCompleted); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}
	rec, _ := s.Get(ctx, "CA1")
	if rec.Transcript != "text" || rec.Completed || rec.HasAnalysis() {
		t.Fatalf("unexpected checkpoint state: %+v", rec)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 1 || st.Pending != 1 || st.WithTranscript != 1 || st.Completed != 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestOpenFileReappliesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Insert(context.Background(), types.CallMeta{SID: "CA9"}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, err := s.Get(context.Background(), "CA9"); err != nil {
		t.Fatalf("record lost across reopen: %v", err)
	}
}

func sids(records []types.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.SID
	}
	return out
}
