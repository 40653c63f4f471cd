package aggregator

import "voice-pipeline-go/internal/types"

// Insight summarizes analysis outcomes across completed records.
type Insight struct {
	Records                    int                `json:"records"`
	ByPriority                 map[string]int     `json:"by_priority"`
	ByFrustration              map[string]int     `json:"by_frustration"`
	Threats                    int                `json:"threats"`
	HumanIntervention          int                `json:"human_intervention"`
	RepeatedComplaints         int                `json:"repeated_complaints"`
	Nuisance                   int                `json:"nuisance"`
	PIIDetected                int                `json:"pii_detected"`
	PIITypes                   map[string]int     `json:"pii_types"`
	SatisfactionRate           float64            `json:"satisfaction_rate"`
	InterventionRateByPriority map[string]float64 `json:"intervention_rate_by_priority"`
	Undecodable                int                `json:"undecodable"`
}

// Aggregate counts verdicts over completed records. Incomplete records and
// records whose blobs fail to decode are skipped; the latter are counted.
func Aggregate(records []types.Record) Insight {
	in := Insight{
		ByPriority:    map[string]int{},
		ByFrustration: map[string]int{},
		PIITypes:      map[string]int{},
	}
	total := map[string]int{}
	escalated := map[string]int{}
	satisfied, rated := 0, 0

	for _, r := range records {
		if !r.Completed {
			continue
		}
		a, err := types.DecodeStructured(r)
		if err != nil {
			in.Undecodable++
			continue
		}
		in.Records++

		p := string(a.Priority.Level)
		in.ByPriority[p]++
		total[p]++
		if a.HumanIntervention.Required == types.VerdictYes {
			in.HumanIntervention++
			escalated[p]++
		}
		in.ByFrustration[string(a.Frustration.Level)]++

		if a.Threat.Flag == types.VerdictYes {
			in.Threats++
		}
		if a.RepeatedComplaint.Value == types.VerdictYes {
			in.RepeatedComplaints++
		}
		if a.Nuisance.Value == types.VerdictYes {
			in.Nuisance++
		}
		switch a.Satisfaction.Value {
		case types.VerdictYes:
			satisfied++
			rated++
		case types.VerdictNo:
			rated++
		}
		if a.PIIDetails.Detected == types.VerdictYes {
			in.PIIDetected++
			for _, t := range a.PIIDetails.Types {
				if t != types.PIINone {
					in.PIITypes[string(t)]++
				}
			}
		}
	}

	if rated > 0 {
		in.SatisfactionRate = float64(satisfied) / float64(rated)
	}
	in.InterventionRateByPriority = map[string]float64{}
	for k := range total {
		if total[k] > 0 {
			in.InterventionRateByPriority[k] = float64(escalated[k]) / float64(total[k])
		} else {
			in.InterventionRateByPriority[k] = 0
		}
	}
	return in
}
