package dataset

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"voice-pipeline-go/internal/types"
)

func writeSheet(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		if err := writeRow(f, "Sheet1", i+1, row); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), "calls.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadCallsDetectsColumns(t *testing.T) {
	path := writeSheet(t, [][]any{
		{"Sid", "To", "From", "Status", "Duration", "RecordingUrl", "StartTime", "EndTime"},
		{"CA1", "0800", "0999", "completed", "42", "https://rec/CA1.mp3", "2025-12-01 10:00:00", "2025-12-01 10:00:42"},
		{"", "0800", "0999", "completed", "1", "https://rec/x.mp3", "", ""},
		{"CA2", "0800", "0998", "in-progress", "", "n/a", "", ""},
		{"CA1", "dup", "dup", "dup", "", "", "", ""},
	})

	calls, err := LoadCalls(path)
	if err != nil {
		t.Fatalf("LoadCalls: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("got %d calls: %+v", len(calls), calls)
	}
	want := types.CallMeta{
		SID: "CA1", To: "0800", From: "0999", Status: "completed", Duration: 42,
		RecordingURL: "https://rec/CA1.mp3", StartTime: "2025-12-01 10:00:00", EndTime: "2025-12-01 10:00:42",
	}
	if calls[0] != want {
		t.Fatalf("calls[0] = %+v", calls[0])
	}
	if calls[1].SID != "CA2" || calls[1].RecordingURL != "" {
		t.Fatalf("calls[1] = %+v", calls[1])
	}
}

func TestLoadCallsRequiresIDColumn(t *testing.T) {
	path := writeSheet(t, [][]any{{"Phone", "Notes"}, {"1", "x"}})
	if _, err := LoadCalls(path); err == nil {
		t.Fatal("expected error without id column")
	}
}

func TestWriteReport(t *testing.T) {
	a := types.StructuredAnalysis{
		Summary:           "Refund delayed.",
		Threat:            types.FlagEvidence{Flag: types.VerdictNo, Evidence: "calm"},
		Priority:          types.PriorityBlock{Level: types.PriorityHigh, Reason: "money"},
		HumanIntervention: types.InterventionBlock{Required: types.VerdictYes, Reason: "manager"},
		Satisfaction:      types.ValueEvidence{Value: types.VerdictNo, Evidence: "upset"},
		Frustration:       types.FrustrationBlock{Level: types.FrustrationHigh, Evidence: "third call"},
		Nuisance:          types.ValueEvidence{Value: types.VerdictNo, Evidence: "polite"},
		RepeatedComplaint: types.ValueEvidence{Value: types.VerdictYes, Evidence: "third call"},
		NextBestAction:    "Escalate.",
		OpenQuestions:     []string{"Which order?"},
		PIIDetails:        types.PIIBlock{Detected: types.VerdictYes, Types: []types.PIIType{types.PIIPhone}},
	}
	c, err := a.Columns()
	if err != nil {
		t.Fatal(err)
	}
	records := []types.Record{
		{
			CallMeta: types.CallMeta{SID: "CA1", Status: "completed"},
			Summary:  c.Summary, Threat: c.Threat, Priority: c.Priority, HumanIntervention: c.HumanIntervention,
			Satisfaction: c.Satisfaction, Frustration: c.Frustration, Nuisance: c.Nuisance,
			RepeatedComplaint: c.RepeatedComplaint, NextBestAction: c.NextBestAction,
			OpenQuestions: c.OpenQuestions, PIIDetails: c.PIIDetails, Completed: true,
		},
		{CallMeta: types.CallMeta{SID: "CA2", Status: "in-progress"}},
	}

	path := filepath.Join(t.TempDir(), "report.xlsx")
	if err := WriteReport(path, records); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows(callsSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[0][0] != "SID" {
		t.Fatalf("calls sheet rows = %v", rows)
	}
	if rows[1][0] != "CA1" || rows[1][6] != "High" || rows[1][14] != "Phone" {
		t.Fatalf("completed row = %v", rows[1])
	}
	if rows[2][0] != "CA2" || len(rows[2]) != 6 {
		t.Fatalf("pending row = %v", rows[2])
	}

	insights, err := f.GetRows(insightsSheet)
	if err != nil {
		t.Fatal(err)
	}
	if insights[0][0] != "Completed records" || insights[0][1] != "1" {
		t.Fatalf("insights = %v", insights)
	}
}
