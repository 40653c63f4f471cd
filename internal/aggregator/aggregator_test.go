package aggregator

import (
	"testing"

	"voice-pipeline-go/internal/types"
)

func completed(t *testing.T, sid string, a types.StructuredAnalysis) types.Record {
	t.Helper()
	c, err := a.Columns()
	if err != nil {
		t.Fatal(err)
	}
	return types.Record{
		CallMeta:          types.CallMeta{SID: sid},
		Summary:           c.Summary,
		Threat:            c.Threat,
		Priority:          c.Priority,
		HumanIntervention: c.HumanIntervention,
		Satisfaction:      c.Satisfaction,
		Frustration:       c.Frustration,
		Nuisance:          c.Nuisance,
		RepeatedComplaint: c.RepeatedComplaint,
		NextBestAction:    c.NextBestAction,
		OpenQuestions:     c.OpenQuestions,
		PIIDetails:        c.PIIDetails,
		Completed:         true,
	}
}

func analysis(priority types.Priority, intervene, satisfied types.Verdict, pii ...types.PIIType) types.StructuredAnalysis {
	detected := types.VerdictNo
	if len(pii) > 0 {
		detected = types.VerdictYes
	} else {
		pii = []types.PIIType{types.PIINone}
	}
	return types.StructuredAnalysis{
		Summary:           "s",
		Threat:            types.FlagEvidence{Flag: types.VerdictNo, Evidence: "e"},
		Priority:          types.PriorityBlock{Level: priority, Reason: "r"},
		HumanIntervention: types.InterventionBlock{Required: intervene, Reason: "r"},
		Satisfaction:      types.ValueEvidence{Value: satisfied, Evidence: "e"},
		Frustration:       types.FrustrationBlock{Level: types.FrustrationLow, Evidence: "e"},
		Nuisance:          types.ValueEvidence{Value: types.VerdictNo, Evidence: "e"},
		RepeatedComplaint: types.ValueEvidence{Value: types.VerdictYes, Evidence: "e"},
		NextBestAction:    "n",
		OpenQuestions:     []string{},
		PIIDetails:        types.PIIBlock{Detected: detected, Types: pii},
	}
}

func TestAggregate(t *testing.T) {
	records := []types.Record{
		completed(t, "a", analysis(types.PriorityHigh, types.VerdictYes, types.VerdictNo, types.PIIPhone, types.PIIEmail)),
		completed(t, "b", analysis(types.PriorityHigh, types.VerdictNo, types.VerdictYes)),
		completed(t, "c", analysis(types.PriorityLow, types.VerdictNo, types.VerdictUnclear)),
		{CallMeta: types.CallMeta{SID: "pending"}},
		{CallMeta: types.CallMeta{SID: "broken"}, Completed: true, Priority: "{not json"},
	}

	in := Aggregate(records)
	if in.Records != 3 || in.Undecodable != 1 {
		t.Fatalf("records=%d undecodable=%d", in.Records, in.Undecodable)
	}
	if in.ByPriority["High"] != 2 || in.ByPriority["Low"] != 1 {
		t.Fatalf("by priority %v", in.ByPriority)
	}
	if in.HumanIntervention != 1 || in.RepeatedComplaints != 3 || in.Threats != 0 {
		t.Fatalf("unexpected counts %+v", in)
	}
	if in.InterventionRateByPriority["High"] != 0.5 || in.InterventionRateByPriority["Low"] != 0 {
		t.Fatalf("intervention rates %v", in.InterventionRateByPriority)
	}
	if in.SatisfactionRate != 0.5 {
		t.Fatalf("satisfaction rate %v", in.SatisfactionRate)
	}
	if in.PIIDetected != 1 || in.PIITypes["Phone"] != 1 || in.PIITypes["Email"] != 1 || in.PIITypes["None"] != 0 {
		t.Fatalf("pii %d %v", in.PIIDetected, in.PIITypes)
	}
}

func TestAggregateEmpty(t *testing.T) {
	in := Aggregate(nil)
	if in.Records != 0 || in.SatisfactionRate != 0 || len(in.InterventionRateByPriority) != 0 {
		t.Fatalf("unexpected insight %+v", in)
	}
}
