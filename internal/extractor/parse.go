package extractor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"voice-pipeline-go/internal/types"
)

// ErrSchemaViolation is returned when model output does not match the
// analysis schema exactly.
var ErrSchemaViolation = errors.New("analysis schema violation")

func violation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchemaViolation, fmt.Sprintf(format, args...))
}

// stripCodeFence removes one surrounding markdown fence, with or without a
// language tag. Anything else around the JSON is left in place.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	inner := s[3 : len(s)-3]
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 {
		tag := strings.TrimSpace(inner[:nl])
		if tag == "" || isWord(tag) {
			inner = inner[nl+1:]
		}
	}
	return strings.TrimSpace(inner)
}

func isWord(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

// ParseAnalysis validates raw model content against the analysis schema.
func ParseAnalysis(content string) (types.Analysis, error) {
	body := stripCodeFence(content)
	if body == "" {
		return types.Analysis{}, violation("empty response")
	}
	if !strings.HasPrefix(body, "{") || !strings.HasSuffix(body, "}") {
		return types.Analysis{}, violation("response is not a bare JSON object")
	}

	var fields map[string]json.RawMessage
	dec := json.NewDecoder(strings.NewReader(body))
	if err := dec.Decode(&fields); err != nil {
		return types.Analysis{}, violation("invalid json: %v", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return types.Analysis{}, violation("trailing content after json object")
	}
	if err := checkKeys(fields); err != nil {
		return types.Analysis{}, err
	}

	var a types.Analysis
	strict := json.NewDecoder(bytes.NewReader([]byte(body)))
	strict.DisallowUnknownFields()
	if err := strict.Decode(&a); err != nil {
		return types.Analysis{}, violation("field types: %v", err)
	}
	if err := validate(a); err != nil {
		return types.Analysis{}, err
	}
	return a, nil
}

func checkKeys(fields map[string]json.RawMessage) error {
	want := make(map[string]struct{}, len(types.AnalysisKeys))
	var missing []string
	for _, k := range types.AnalysisKeys {
		want[k] = struct{}{}
		raw, ok := fields[k]
		if !ok {
			missing = append(missing, k)
			continue
		}
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return violation("key %q is null", k)
		}
	}
	var extra []string
	for k := range fields {
		if _, ok := want[k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	if len(missing) > 0 {
		return violation("missing keys: %s", strings.Join(missing, ", "))
	}
	if len(extra) > 0 {
		return violation("unexpected keys: %s", strings.Join(extra, ", "))
	}
	return nil
}

func validate(a types.Analysis) error {
	if strings.TrimSpace(a.Summary) == "" {
		return violation("summary is empty")
	}
	if strings.TrimSpace(a.NextBestAction) == "" {
		return violation("next_best_action is empty")
	}

	verdicts := []struct {
		key      string
		value    types.Verdict
		evidence string
		evKey    string
	}{
		{"threat_flag", a.ThreatFlag, a.ThreatEvidence, "threat_evidence"},
		{"human_intervention_required", a.HumanInterventionRequired, a.HumanInterventionReason, "human_intervention_reason"},
		{"satisfied", a.Satisfied, a.SatisfiedEvidence, "satisfied_evidence"},
		{"nuisance", a.Nuisance, a.NuisanceEvidence, "nuisance_evidence"},
		{"repeated_complaint", a.RepeatedComplaint, a.RepeatedComplaintEvidence, "repeated_complaint_evidence"},
	}
	for _, v := range verdicts {
		if !v.value.Valid() {
			return violation("%s has disallowed value %q", v.key, v.value)
		}
		if v.value != types.VerdictUnclear && strings.TrimSpace(v.evidence) == "" {
			return violation("%s is empty for %s=%s", v.evKey, v.key, v.value)
		}
	}

	if !a.Priority.Valid() {
		return violation("priority has disallowed value %q", a.Priority)
	}
	if strings.TrimSpace(a.PriorityReason) == "" {
		return violation("priority_reason is empty")
	}
	if !a.FrustrationLevel.Valid() {
		return violation("frustration_level has disallowed value %q", a.FrustrationLevel)
	}
	if a.FrustrationLevel != types.FrustrationUnclear && strings.TrimSpace(a.FrustrationEvidence) == "" {
		return violation("frustration_evidence is empty for frustration_level=%s", a.FrustrationLevel)
	}
	if !a.PIIDetected.Valid() {
		return violation("pii_detected has disallowed value %q", a.PIIDetected)
	}
	return validatePIITypes(a.PIIDetected, a.PIITypes)
}

func validatePIITypes(detected types.Verdict, piiTypes []types.PIIType) error {
	seen := map[types.PIIType]bool{}
	for _, t := range piiTypes {
		if !t.Valid() {
			return violation("pii_types has disallowed value %q", t)
		}
		if seen[t] {
			return violation("pii_types repeats %q", t)
		}
		seen[t] = true
	}
	if seen[types.PIINone] && len(piiTypes) > 1 {
		return violation("pii_types combines None with other types")
	}
	concrete := len(piiTypes) > 0 && !seen[types.PIINone]
	switch detected {
	case types.VerdictYes:
		if !concrete {
			return violation("pii_detected=Yes without a concrete pii type")
		}
	case types.VerdictNo:
		if concrete {
			return violation("pii_detected=No with pii types listed")
		}
	}
	return nil
}
