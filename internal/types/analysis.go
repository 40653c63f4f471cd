package types

import (
	"encoding/json"
	"fmt"
)

// Verdict is the tri-state answer used by most analysis flags.
type Verdict string

const (
	VerdictYes     Verdict = "Yes"
	VerdictNo      Verdict = "No"
	VerdictUnclear Verdict = "Unclear"
)

func (v Verdict) Valid() bool {
	switch v {
	case VerdictYes, VerdictNo, VerdictUnclear:
		return true
	}
	return false
}

type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

type FrustrationLevel string

const (
	FrustrationLow     FrustrationLevel = "Low"
	FrustrationMedium  FrustrationLevel = "Medium"
	FrustrationHigh    FrustrationLevel = "High"
	FrustrationUnclear FrustrationLevel = "Unclear"
)

func (f FrustrationLevel) Valid() bool {
	switch f {
	case FrustrationLow, FrustrationMedium, FrustrationHigh, FrustrationUnclear:
		return true
	}
	return false
}

type PIIType string

const (
	PIIEmail   PIIType = "Email"
	PIIPhone   PIIType = "Phone"
	PIIAddress PIIType = "Address"
	PIICard    PIIType = "Card"
	PIIOther   PIIType = "Other"
	PIINone    PIIType = "None"
)

func (p PIIType) Valid() bool {
	switch p {
	case PIIEmail, PIIPhone, PIIAddress, PIICard, PIIOther, PIINone:
		return true
	}
	return false
}

// Analysis is the flat object returned by the language model.
type Analysis struct {
	Summary                   string           `json:"summary"`
	ThreatFlag                Verdict          `json:"threat_flag"`
	ThreatEvidence            string           `json:"threat_evidence"`
	Priority                  Priority         `json:"priority"`
	PriorityReason            string           `json:"priority_reason"`
	HumanInterventionRequired Verdict          `json:"human_intervention_required"`
	HumanInterventionReason   string           `json:"human_intervention_reason"`
	Satisfied                 Verdict          `json:"satisfied"`
	SatisfiedEvidence         string           `json:"satisfied_evidence"`
	Nuisance                  Verdict          `json:"nuisance"`
	NuisanceEvidence          string           `json:"nuisance_evidence"`
	FrustrationLevel          FrustrationLevel `json:"frustration_level"`
	FrustrationEvidence       string           `json:"frustration_evidence"`
	RepeatedComplaint         Verdict          `json:"repeated_complaint"`
	RepeatedComplaintEvidence string           `json:"repeated_complaint_evidence"`
	NextBestAction            string           `json:"next_best_action"`
	OpenQuestions             []string         `json:"open_questions"`
	PIIDetected               Verdict          `json:"pii_detected"`
	PIITypes                  []PIIType        `json:"pii_types"`
}

// AnalysisKeys lists every key of the analysis object, in prompt order.
var AnalysisKeys = []string{
	"summary",
	"threat_flag", "threat_evidence",
	"priority", "priority_reason",
	"human_intervention_required", "human_intervention_reason",
	"satisfied", "satisfied_evidence",
	"nuisance", "nuisance_evidence",
	"frustration_level", "frustration_evidence",
	"repeated_complaint", "repeated_complaint_evidence",
	"next_best_action",
	"open_questions",
	"pii_detected", "pii_types",
}

type FlagEvidence struct {
	Flag     Verdict `json:"flag"`
	Evidence string  `json:"evidence"`
}

type PriorityBlock struct {
	Level  Priority `json:"level"`
	Reason string   `json:"reason"`
}

type InterventionBlock struct {
	Required Verdict `json:"required"`
	Reason   string  `json:"reason"`
}

type ValueEvidence struct {
	Value    Verdict `json:"value"`
	Evidence string  `json:"evidence"`
}

type FrustrationBlock struct {
	Level    FrustrationLevel `json:"level"`
	Evidence string           `json:"evidence"`
}

type PIIBlock struct {
	Detected Verdict   `json:"detected"`
	Types    []PIIType `json:"types"`
}

// StructuredAnalysis is the persisted shape: each pair becomes its own blob.
type StructuredAnalysis struct {
	Summary           string            `json:"summary"`
	Threat            FlagEvidence      `json:"threat"`
	Priority          PriorityBlock     `json:"priority"`
	HumanIntervention InterventionBlock `json:"human_intervention"`
	Satisfaction      ValueEvidence     `json:"satisfaction"`
	Frustration       FrustrationBlock  `json:"frustration"`
	Nuisance          ValueEvidence     `json:"nuisance"`
	RepeatedComplaint ValueEvidence     `json:"repeated_complaint"`
	NextBestAction    string            `json:"next_best_action"`
	OpenQuestions     []string          `json:"open_questions"`
	PIIDetails        PIIBlock          `json:"pii_details"`
}

// Structured regroups the flat model output into persisted blocks.
func (a Analysis) Structured() StructuredAnalysis {
	openQuestions := a.OpenQuestions
	if openQuestions == nil {
		openQuestions = []string{}
	}
	piiTypes := a.PIITypes
	if piiTypes == nil {
		piiTypes = []PIIType{}
	}
	return StructuredAnalysis{
		Summary:           a.Summary,
		Threat:            FlagEvidence{Flag: a.ThreatFlag, Evidence: a.ThreatEvidence},
		Priority:          PriorityBlock{Level: a.Priority, Reason: a.PriorityReason},
		HumanIntervention: InterventionBlock{Required: a.HumanInterventionRequired, Reason: a.HumanInterventionReason},
		Satisfaction:      ValueEvidence{Value: a.Satisfied, Evidence: a.SatisfiedEvidence},
		Frustration:       FrustrationBlock{Level: a.FrustrationLevel, Evidence: a.FrustrationEvidence},
		Nuisance:          ValueEvidence{Value: a.Nuisance, Evidence: a.NuisanceEvidence},
		RepeatedComplaint: ValueEvidence{Value: a.RepeatedComplaint, Evidence: a.RepeatedComplaintEvidence},
		NextBestAction:    a.NextBestAction,
		OpenQuestions:     openQuestions,
		PIIDetails:        PIIBlock{Detected: a.PIIDetected, Types: piiTypes},
	}
}

// Columns holds the JSON-encoded blobs written to the record store.
type Columns struct {
	Summary           string
	Threat            string
	Priority          string
	HumanIntervention string
	Satisfaction      string
	Frustration       string
	Nuisance          string
	RepeatedComplaint string
	NextBestAction    string
	OpenQuestions     string
	PIIDetails        string
}

// Columns encodes each block for storage.
func (s StructuredAnalysis) Columns() (Columns, error) {
	var (
		c   Columns
		err error
	)
	enc := func(dst *string, v any, name string) {
		if err != nil {
			return
		}
		b, e := json.Marshal(v)
		if e != nil {
			err = fmt.Errorf("encode %s: %w", name, e)
			return
		}
		*dst = string(b)
	}
	c.Summary = s.Summary
	c.NextBestAction = s.NextBestAction
	enc(&c.Threat, s.Threat, "threat")
	enc(&c.Priority, s.Priority, "priority")
	enc(&c.HumanIntervention, s.HumanIntervention, "human_intervention")
	enc(&c.Satisfaction, s.Satisfaction, "satisfaction")
	enc(&c.Frustration, s.Frustration, "frustration")
	enc(&c.Nuisance, s.Nuisance, "nuisance")
	enc(&c.RepeatedComplaint, s.RepeatedComplaint, "repeated_complaint")
	enc(&c.OpenQuestions, s.OpenQuestions, "open_questions")
	enc(&c.PIIDetails, s.PIIDetails, "pii_details")
	return c, err
}

// DecodeStructured rebuilds the blocks from a completed record.
func DecodeStructured(r Record) (StructuredAnalysis, error) {
	out := StructuredAnalysis{Summary: r.Summary, NextBestAction: r.NextBestAction}
	fields := []struct {
		raw  string
		dst  any
		name string
	}{
		{r.Threat, &out.Threat, "threat"},
		{r.Priority, &out.Priority, "priority"},
		{r.HumanIntervention, &out.HumanIntervention, "human_intervention"},
		{r.Satisfaction, &out.Satisfaction, "satisfaction"},
		{r.Frustration, &out.Frustration, "frustration"},
		{r.Nuisance, &out.Nuisance, "nuisance"},
		{r.RepeatedComplaint, &out.RepeatedComplaint, "repeated_complaint"},
		{r.OpenQuestions, &out.OpenQuestions, "open_questions"},
		{r.PIIDetails, &out.PIIDetails, "pii_details"},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return StructuredAnalysis{}, fmt.Errorf("decode %s: %w", f.name, err)
		}
	}
	return out, nil
}
