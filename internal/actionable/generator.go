package actionable

import (
	"fmt"
	"sort"

	"voice-pipeline-go/internal/aggregator"
)

type ActionCard struct {
	Insight string `json:"insight"`
	Action  string `json:"action"`
	Impact  string `json:"impact"`
}

const (
	escalationThreshold = 0.35
	repeatThreshold     = 0.25
	satisfactionFloor   = 0.5
)

// Generate turns aggregate counts into follow-up cards, most urgent first.
// A quiet dataset yields a single monitoring card.
func Generate(ins aggregator.Insight) []ActionCard {
	var cards []ActionCard

	if ins.Threats > 0 {
		cards = append(cards, ActionCard{
			Insight: fmt.Sprintf("%d call(s) flagged as threatening", ins.Threats),
			Action:  "Review flagged transcripts with the safety team",
			Impact:  "Protect agents and meet escalation obligations",
		})
	}

	worst, highest := "", 0.0
	levels := make([]string, 0, len(ins.InterventionRateByPriority))
	for k := range ins.InterventionRateByPriority {
		levels = append(levels, k)
	}
	sort.Strings(levels)
	for _, k := range levels {
		if v := ins.InterventionRateByPriority[k]; v > highest {
			highest, worst = v, k
		}
	}
	if highest >= escalationThreshold && worst != "" {
		cards = append(cards, ActionCard{
			Insight: fmt.Sprintf("High human intervention for %s priority calls (%.0f%%)", worst, highest*100),
			Action:  "Route these calls to senior agents and add a self-service path for the common cases",
			Impact:  "Reduce escalations and handling time",
		})
	}

	if ins.Records > 0 && float64(ins.RepeatedComplaints)/float64(ins.Records) >= repeatThreshold {
		cards = append(cards, ActionCard{
			Insight: fmt.Sprintf("%d of %d callers are repeating a complaint", ins.RepeatedComplaints, ins.Records),
			Action:  "Audit first-contact resolution for the recurring issues",
			Impact:  "Cut repeat call volume",
		})
	}

	if ins.Records > 0 && ins.SatisfactionRate < satisfactionFloor {
		cards = append(cards, ActionCard{
			Insight: fmt.Sprintf("Satisfaction rate is %.0f%%", ins.SatisfactionRate*100),
			Action:  "Sample unsatisfied calls and coach on the next best actions",
			Impact:  "Improve customer satisfaction",
		})
	}

	if ins.PIIDetected > 0 {
		cards = append(cards, ActionCard{
			Insight: fmt.Sprintf("PII spoken on %d call(s)", ins.PIIDetected),
			Action:  "Restrict transcript access and review redaction",
			Impact:  "Lower data exposure",
		})
	}

	if len(cards) == 0 {
		cards = append(cards, ActionCard{
			Insight: "No strong pattern detected",
			Action:  "Monitor and collect more data",
			Impact:  "Low immediate intervention",
		})
	}
	return cards
}
