package rules

import (
	"strings"

	"hccpipe.dev/clinical"
	"hccpipe.dev/hccref"
)

// NewValidatorEngine registers the four built-in compliance rules the
// Validator stage applies to every condition (see §4.7).
func NewValidatorEngine(ref *hccref.Reference) *Engine {
	e := New()

	e.Register("valid_icd_code", "condition has a recognized ICD-10 code", func(c clinical.Condition) bool {
		if c.ICDCode == "" {
			return false
		}
		return ref.IsHCCRelevant(c.ICDCode)
	})

	e.Register("hcc_relevance_verified", "HCC relevance claim is backed by the reference table", func(c clinical.Condition) bool {
		if !c.HCCRelevant {
			return true
		}
		return c.HCCCode != "" && ref.IsHCCRelevant(c.ICDCode)
	})

	e.Register("sufficient_confidence", "confidence meets the minimum threshold", func(c clinical.Condition) bool {
		return c.Confidence >= 0.7
	})

	e.Register("code_description_match", "stated description matches the reference description for the code", func(c clinical.Condition) bool {
		if c.ICDCode == "" || c.ICDDescription == "" {
			return true
		}
		entry, ok := ref.Get(c.ICDCode)
		if !ok {
			return true
		}
		return strings.EqualFold(strings.TrimSpace(entry.Description), strings.TrimSpace(c.ICDDescription))
	})

	return e
}
