package extractor

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"hccpipe.dev/clinical"
	"hccpipe.dev/llmclient"
)

// llmCondition is the shape the extraction prompt asks the LLM to return per
// condition.
type llmCondition struct {
	ID             string
	Name           string
	ICDCode        string
	ICDCodeNoDot   string
	ICDDescription string
	Details        string
	Status         string
	Confidence     float64
}

func decodeLLMConditions(raw []map[string]any) []llmCondition {
	out := make([]llmCondition, 0, len(raw))
	for _, m := range raw {
		out = append(out, llmCondition{
			ID:             stringField(m, "id"),
			Name:           stringField(m, "name"),
			ICDCode:        stringField(m, "icd_code"),
			ICDCodeNoDot:   stringField(m, "icd_code_no_dot"),
			ICDDescription: stringField(m, "icd_description"),
			Details:        stringField(m, "details"),
			Status:         stringField(m, "status"),
			Confidence:     floatField(m, "confidence", 0.9),
		})
	}
	return out
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func floatField(m map[string]any, key string, fallback float64) float64 {
	v, ok := m[key]
	if !ok || v == nil {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return n
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
	}
	return fallback
}

// mergeConditions combines rule-based and LLM-assisted results: an LLM
// condition not matching a rule-based one by lower-cased name is appended as
// llm_only; a rule-based condition also surfaced by the LLM is annotated
// with the LLM's confidence rather than replaced.
func mergeConditions(ruleBased []clinical.Condition, llmConditions []llmCondition) (merged []clinical.Condition, ruleCount, llmCount int) {
	byName := make(map[string]int, len(ruleBased))
	merged = make([]clinical.Condition, len(ruleBased))
	copy(merged, ruleBased)
	for i, c := range merged {
		byName[strings.ToLower(c.Name)] = i
	}
	ruleCount = len(ruleBased)

	for idx, lc := range llmConditions {
		key := strings.ToLower(lc.Name)
		if i, ok := byName[key]; ok {
			if merged[i].Metadata == nil {
				merged[i].Metadata = clinical.JSONMap{}
			}
			merged[i].Metadata["also_found_by_llm"] = true
			merged[i].Metadata["llm_confidence"] = lc.Confidence
			continue
		}

		id := lc.ID
		if id == "" {
			id = fmt.Sprintf("llm-%d", idx+1)
		}
		merged = append(merged, clinical.Condition{
			ID:             id,
			Name:           lc.Name,
			ICDCode:        lc.ICDCode,
			ICDCodeNoDot:   lc.ICDCodeNoDot,
			ICDDescription: lc.ICDDescription,
			Details:        lc.Details,
			Status:         lc.Status,
			Confidence:     lc.Confidence,
			Metadata:       clinical.JSONMap{"extraction_method": "llm_only"},
		})
		llmCount++
	}

	return merged, ruleCount, llmCount
}

// extractionPrompt builds the fixed-schema prompt the LLM must answer with
// a {"conditions": [...]} JSON object.
func extractionPrompt(documentContent string) string {
	return fmt.Sprintf(`You are a medical coding assistant extracting diagnosed conditions from a clinical progress note.

Read the note below and return every condition mentioned in its Assessment/Plan section as a JSON object of this exact shape:
{
  "conditions": [
    {
      "id": "condition-id",
      "name": "Condition name",
      "icd_code": "ICD-10 code (dotted form, e.g. E11.9)",
      "icd_code_no_dot": "same code without the dot, e.g. E119",
      "icd_description": "ICD-10 description",
      "details": "the supporting text for this condition",
      "status": "free-text clinical status, e.g. Stable",
      "confidence": 0.9
    }
  ]
}

Return just the JSON object. Do not include code fences or any other text.

Clinical note:
%s`, documentContent)
}

// runExtractionLLM submits the document to the LLM and returns the parsed
// conditions plus a non-nil error only when the call itself failed; a
// malformed or empty response is not an error, it yields zero conditions.
func runExtractionLLM(ctx context.Context, client llmclient.Client, prompt string) ([]llmCondition, error) {
	raw, err := client.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return decodeLLMConditions(llmclient.ParseConditions(raw)), nil
}
