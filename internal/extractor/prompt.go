package extractor

import (
	"fmt"
	"strings"
)

const analysisPrompt = `You are a senior call QA, compliance and triage analyst.

Analyze the call transcript and return ONLY a valid JSON object that follows
the schema and rules below.

========================
OUTPUT RULES
========================
1) Output valid JSON only. Double quotes only. No markdown, no comments,
   no trailing commas, no text before or after the JSON.
2) Use ONLY the keys listed in the schema. No extra keys, no missing keys.
3) Enum fields MUST use one of the allowed values exactly as written.
   If evidence is insufficient, use "Unclear".
4) Every classification field needs a short direct quote from the transcript
   (max 20 words) as evidence. Evidence may be "" ONLY when the value is
   "Unclear". "priority_reason" is always required.
5) Evidence must be verbatim or lightly trimmed. Never fabricate quotes.
6) Render non-English text directly. Do NOT use \uXXXX escape sequences.

========================
SPEAKERS
========================
"Customer" is the person raising an issue or seeking help.
"Call_Assistant" is the agent, IVR, support rep or automated system.

========================
CLASSIFICATION RULES
========================
threat_flag: "Yes" only for explicit police complaints, legal action,
  regulator or media escalation, violence, self-harm or intimidation.
  Vague or emotional language is "Unclear". No threat language is "No".
priority: High for safety risk, legal or police threats, fraud, account lock,
  payment loss or demands for immediate resolution. Medium when follow-up is
  needed. Low for information requests.
nuisance: "Yes" only for profanity, harassment, abuse or personal attacks.
  Complaints alone are not nuisance.
satisfied: "Yes" on explicit thanks or confirmed resolution, "No" when the
  call ends unresolved or angry, "Unclear" without a closing signal.
frustration_level: High for anger, threats or repeated complaints; Medium for
  impatience; Low when calm.
pii_detected / pii_types: only PII explicitly spoken. Use ["None"] when none.

========================
SCHEMA (RETURN EXACTLY)
========================
{
  "summary": "string (factual, no assumptions)",
  "threat_flag": "Yes|No|Unclear",
  "threat_evidence": "string",
  "priority": "High|Medium|Low",
  "priority_reason": "string",
  "human_intervention_required": "Yes|No|Unclear",
  "human_intervention_reason": "string",
  "satisfied": "Yes|No|Unclear",
  "satisfied_evidence": "string",
  "nuisance": "Yes|No|Unclear",
  "nuisance_evidence": "string",
  "frustration_level": "Low|Medium|High|Unclear",
  "frustration_evidence": "string",
  "repeated_complaint": "Yes|No|Unclear",
  "repeated_complaint_evidence": "string",
  "next_best_action": "string (single clear next step)",
  "open_questions": ["string"],
  "pii_detected": "Yes|No|Unclear",
  "pii_types": ["Email|Phone|Address|Card|Other|None"]
}

========================
CALL TRANSCRIPT
========================
%s

Return JSON ONLY.
`

// BuildPrompt renders the analysis prompt for a transcript.
func BuildPrompt(transcript string) string {
	return fmt.Sprintf(analysisPrompt, strings.TrimSpace(transcript))
}
