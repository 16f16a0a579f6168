package analyzer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"hccpipe.dev/clinical"
	"hccpipe.dev/hccref"
	"hccpipe.dev/llmclient"
)

// minConfidenceForSkip mirrors the threshold the analysis graph uses to
// decide whether a rule-based pass is already confident enough everywhere.
const minConfidenceForSkip = 0.9

// allConfident reports whether every condition has already cleared
// minConfidenceForSkip, making the LLM enrichment pass unnecessary.
func allConfident(conditions []clinical.Condition) bool {
	for _, c := range conditions {
		if c.Confidence < minConfidenceForSkip {
			return false
		}
	}
	return true
}

// enrichWithLLM is step 4: submit every condition plus a capped reference
// sample, and for each LLM verdict matched by id, overwrite the rule-based
// fields only when the LLM is more confident; otherwise attach its opinion
// as metadata. LLM failure degrades every condition to rule_based and
// returns the error for the caller to record.
func enrichWithLLM(ctx context.Context, client llmclient.Client, conditions []clinical.Condition, ref *hccref.Reference) error {
	if allConfident(conditions) {
		return nil
	}

	sample := ref.Sample(50)
	prompt := analysisPrompt(conditions, sample)

	raw, err := client.Complete(ctx, prompt)
	if err != nil {
		markAllRuleBased(conditions)
		return err
	}

	results := llmclient.ParseConditions(raw)
	byID := make(map[string]*clinical.Condition, len(conditions))
	for i := range conditions {
		byID[conditions[i].ID] = &conditions[i]
	}

	for _, r := range results {
		id := stringField(r, "id")
		c, ok := byID[id]
		if !ok {
			continue
		}

		llmConfidence := floatField(r, "confidence", 0.0)
		if c.Metadata == nil {
			c.Metadata = clinical.JSONMap{}
		}

		if llmConfidence > c.Confidence {
			c.HCCRelevant = boolField(r, "hcc_relevant", c.HCCRelevant)
			c.HCCCode = stringFieldOr(r, "hcc_code", c.HCCCode)
			c.HCCCategory = stringFieldOr(r, "hcc_category", c.HCCCategory)
			c.Confidence = llmConfidence
			c.Reasoning = stringFieldOr(r, "reasoning", c.Reasoning)
			c.Metadata["analysis_source"] = "llm"
		} else {
			c.Metadata["llm_hcc_relevant"] = boolField(r, "hcc_relevant", false)
			c.Metadata["llm_confidence"] = llmConfidence
			c.Metadata["llm_reasoning"] = stringField(r, "reasoning")
			c.Metadata["analysis_source"] = "rule_based"
		}
	}

	return nil
}

func markAllRuleBased(conditions []clinical.Condition) {
	for i := range conditions {
		if conditions[i].Metadata == nil {
			conditions[i].Metadata = clinical.JSONMap{}
		}
		conditions[i].Metadata["analysis_source"] = "rule_based"
	}
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func stringFieldOr(m map[string]any, key, fallback string) string {
	if s := stringField(m, key); s != "" {
		return s
	}
	return fallback
}

func boolField(m map[string]any, key string, fallback bool) bool {
	v, ok := m[key]
	if !ok || v == nil {
		return fallback
	}
	b, ok := v.(bool)
	if !ok {
		return fallback
	}
	return b
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

// analysisPrompt builds the fixed-schema HCC-relevance analysis prompt.
func analysisPrompt(conditions []clinical.Condition, sample []clinical.HCCEntry) string {
	var conditionLines strings.Builder
	for _, c := range conditions {
		fmt.Fprintf(&conditionLines, "- id=%s name=%q icd_code=%q confidence=%.2f\n", c.ID, c.Name, c.ICDCode, c.Confidence)
	}

	var sampleLines strings.Builder
	for _, e := range sample {
		fmt.Fprintf(&sampleLines, "- %s: %s (%s)\n", e.ICDCode, e.Description, e.Category)
	}

	return fmt.Sprintf(`You are a medical coding expert specializing in HCC (Hierarchical Condition Categories) analysis.

Given the extracted conditions below and a sample of HCC-relevant ICD-10 codes, determine which conditions are HCC-relevant. Even if a condition's code is not in the sample, use your knowledge to judge relevance.

Return a JSON object of this exact shape, one entry per input condition:
{
  "conditions": [
    {"id": "condition-id", "hcc_relevant": true, "hcc_code": "...", "hcc_category": "...", "confidence": 0.95, "reasoning": "..."}
  ]
}

Return just the JSON object, no code fences, no extra text.

Extracted conditions:
%s
Sample of HCC-relevant codes:
%s`, conditionLines.String(), sampleLines.String())
}
