package actionable

import (
	"strings"
	"testing"

	"voice-pipeline-go/internal/aggregator"
)

func TestGenerateQuiet(t *testing.T) {
	cards := Generate(aggregator.Insight{Records: 4, SatisfactionRate: 0.9})
	if len(cards) != 1 || cards[0].Action != "Monitor and collect more data" {
		t.Fatalf("cards = %+v", cards)
	}
}

func TestGenerateOrdersUrgentFirst(t *testing.T) {
	cards := Generate(aggregator.Insight{
		Records:                    4,
		Threats:                    1,
		RepeatedComplaints:         2,
		PIIDetected:                1,
		SatisfactionRate:           0.25,
		InterventionRateByPriority: map[string]float64{"High": 0.5, "Low": 0},
	})
	if len(cards) != 5 {
		t.Fatalf("got %d cards: %+v", len(cards), cards)
	}
	if !strings.Contains(cards[0].Insight, "threatening") {
		t.Fatalf("first card = %+v", cards[0])
	}
	if !strings.Contains(cards[1].Insight, "High priority") || !strings.Contains(cards[1].Insight, "50%") {
		t.Fatalf("escalation card = %+v", cards[1])
	}
}
