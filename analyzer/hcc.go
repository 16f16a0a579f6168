package analyzer

import (
	"fmt"

	"hccpipe.dev/clinical"
	"hccpipe.dev/hccref"
)

// determineHCCRelevance is step 3 of the analysis algorithm: a direct
// lookup against the HCC reference, run before any LLM enrichment.
func determineHCCRelevance(conditions []clinical.Condition, ref *hccref.Reference) {
	for i := range conditions {
		c := &conditions[i]
		c.NormalizeICDCodes()

		entry, ok := ref.Get(c.ICDCode)
		if !ok {
			entry, ok = ref.Get(c.ICDCodeNoDot)
		}

		if ok {
			c.HCCRelevant = true
			c.HCCCode = c.ICDCodeNoDot
			c.HCCCategory = entry.Category
			c.Confidence = 1.0
			c.Reasoning = fmt.Sprintf("Direct match with HCC-relevant code: %s", c.ICDCode)
		} else {
			c.HCCRelevant = false
			c.Confidence = 0.8
			c.Reasoning = "No exact match with a known HCC-relevant code"
		}
	}
}
