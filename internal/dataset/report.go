package dataset

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"voice-pipeline-go/internal/actionable"
	"voice-pipeline-go/internal/aggregator"
	"voice-pipeline-go/internal/types"
)

const (
	callsSheet    = "Calls"
	insightsSheet = "Insights"
)

var reportHeader = []string{
	"SID", "Status", "From", "To", "Duration", "Completed",
	"Priority", "Priority Reason", "Threat", "Human Intervention", "Satisfied",
	"Frustration", "Nuisance", "Repeated Complaint", "PII",
	"Summary", "Next Best Action", "Open Questions",
}

// WriteReport exports records to an xlsx workbook: one row per record on
// the Calls sheet, aggregate counts and suggested actions on the Insights
// sheet.
func WriteReport(path string, records []types.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", callsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeRow(f, callsSheet, 1, toAny(reportHeader)); err != nil {
		return err
	}
	for i, r := range records {
		row, err := reportRow(r)
		if err != nil {
			return fmt.Errorf("record %s: %w", r.SID, err)
		}
		if err := writeRow(f, callsSheet, i+2, row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(insightsSheet); err != nil {
		return fmt.Errorf("create insights sheet: %w", err)
	}
	in := aggregator.Aggregate(records)
	rows := [][]any{
		{"Completed records", in.Records},
		{"Threats", in.Threats},
		{"Human intervention", in.HumanIntervention},
		{"Repeated complaints", in.RepeatedComplaints},
		{"Nuisance", in.Nuisance},
		{"PII detected", in.PIIDetected},
		{"Satisfaction rate", in.SatisfactionRate},
	}
	rows = append(rows, countRows("Priority", in.ByPriority)...)
	rows = append(rows, countRows("Frustration", in.ByFrustration)...)
	rows = append(rows, countRows("PII", in.PIITypes)...)
	rows = append(rows, []any{})
	for _, c := range actionable.Generate(in) {
		rows = append(rows, []any{c.Insight, c.Action, c.Impact})
	}
	for i, row := range rows {
		if err := writeRow(f, insightsSheet, i+1, row); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func reportRow(r types.Record) ([]any, error) {
	row := []any{r.SID, r.Status, r.From, r.To, r.Duration, r.Completed}
	if !r.Completed {
		return row, nil
	}
	a, err := types.DecodeStructured(r)
	if err != nil {
		return nil, err
	}
	pii := make([]string, 0, len(a.PIIDetails.Types))
	for _, t := range a.PIIDetails.Types {
		pii = append(pii, string(t))
	}
	return append(row,
		string(a.Priority.Level), a.Priority.Reason,
		string(a.Threat.Flag), string(a.HumanIntervention.Required),
		string(a.Satisfaction.Value), string(a.Frustration.Level),
		string(a.Nuisance.Value), string(a.RepeatedComplaint.Value),
		strings.Join(pii, ", "),
		a.Summary, a.NextBestAction, strings.Join(a.OpenQuestions, "; "),
	), nil
}

func countRows(label string, counts map[string]int) [][]any {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, []any{label + ": " + k, counts[k]})
	}
	return out
}

func writeRow(f *excelize.File, sheet string, n int, values []any) error {
	addr, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, addr, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, n, err)
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
